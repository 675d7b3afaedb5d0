package apperr

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorsIsMatchesKind(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", NotFound("get session", "session not found"))

	assert.ErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrValidation)
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestPersistenceKeepsCause(t *testing.T) {
	cause := errors.New("disk full")
	err := Persistence("append message", cause)

	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrPersistence)
	assert.Equal(t, "append message: disk full", err.Error())
	assert.Nil(t, Persistence("noop", nil))
}

func TestKindOfDeadline(t *testing.T) {
	err := fmt.Errorf("search: %w", context.DeadlineExceeded)
	assert.Equal(t, KindExternalService, KindOf(err))
	assert.Equal(t, KindUnknown, KindOf(errors.New("plain")))
}

func TestPersistenceTimeoutIsExternal(t *testing.T) {
	err := Persistence("append message", fmt.Errorf("get session failed: %w", context.DeadlineExceeded))

	assert.ErrorIs(t, err, ErrExternalService)
	assert.NotErrorIs(t, err, ErrPersistence)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
