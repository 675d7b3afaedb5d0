package app

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"notebookrag/internal/cache"
	"notebookrag/internal/model"
	"notebookrag/internal/pkg/apperr"
	"notebookrag/internal/rag"
)

func appendN(t *testing.T, svc *MessageService, sessionID string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		role := model.RoleUser
		if i%2 == 1 {
			role = model.RoleAssistant
		}
		_, err := svc.Append(context.Background(), AppendMessageInput{SessionID: sessionID, Role: role, Content: fmt.Sprintf("m%d", i)})
		require.NoError(t, err)
	}
}

func TestHistoryExcludesLatestByDefault(t *testing.T) {
	f := newFixture(t, rag.WindowExcludeLatest)
	s := f.createSession(t, "Physics Notes")
	appendN(t, f.messages, s.ID, 10)

	recent, err := f.messages.Recent(context.Background(), s.ID, 7)
	require.NoError(t, err)
	require.Len(t, recent, 7)
	assert.Equal(t, "m3", recent[0].Content)
	assert.Equal(t, "m9", recent[6].Content)

	history, err := f.messages.History(context.Background(), s.ID)
	require.NoError(t, err)
	require.Len(t, history, 6)
	assert.Equal(t, "m3", history[0].Content)
	assert.Equal(t, "m8", history[5].Content)
}

func TestHistoryIncludeLatest(t *testing.T) {
	f := newFixture(t, rag.WindowIncludeLatest)
	s := f.createSession(t, "Physics Notes")
	appendN(t, f.messages, s.ID, 10)

	history, err := f.messages.History(context.Background(), s.ID)
	require.NoError(t, err)
	require.Len(t, history, 7)
	assert.Equal(t, "m9", history[6].Content)
}

func TestAppendedMessageVisibility(t *testing.T) {
	f := newFixture(t, rag.WindowExcludeLatest)
	ctx := context.Background()
	s := f.createSession(t, "Physics Notes")

	_, err := f.messages.Append(ctx, AppendMessageInput{SessionID: s.ID, Role: model.RoleUser, Content: "first"})
	require.NoError(t, err)
	history, err := f.messages.History(ctx, s.ID)
	require.NoError(t, err)
	assert.Empty(t, history)

	_, err = f.messages.Append(ctx, AppendMessageInput{SessionID: s.ID, Role: model.RoleAssistant, Content: "second"})
	require.NoError(t, err)
	history, err = f.messages.History(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "first", history[0].Content)
}

func TestAppendValidation(t *testing.T) {
	f := newFixture(t, rag.WindowExcludeLatest)
	ctx := context.Background()
	s := f.createSession(t, "Physics Notes")

	_, err := f.messages.Append(ctx, AppendMessageInput{SessionID: s.ID, Role: model.RoleUser, Content: " "})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = f.messages.Append(ctx, AppendMessageInput{SessionID: s.ID, Role: "system", Content: "x"})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = f.messages.Append(ctx, AppendMessageInput{SessionID: "missing", Role: model.RoleUser, Content: "x"})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = f.messages.Recent(ctx, s.ID, maxWindowSize+1)
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestAppendTimeoutIsExternal(t *testing.T) {
	f := newFixture(t, rag.WindowExcludeLatest)
	s := f.createSession(t, "Physics Notes")

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()
	_, err := f.messages.Append(ctx, AppendMessageInput{SessionID: s.ID, Role: model.RoleUser, Content: "x"})
	assert.ErrorIs(t, err, apperr.ErrExternalService)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRecentUsesHistoryCache(t *testing.T) {
	f := newFixture(t, rag.WindowExcludeLatest)
	ctx := context.Background()
	history := cache.NewMemoryHistoryCache(time.Minute, 10*time.Millisecond)
	svc := NewMessageService(f.stores, history, 7, rag.WindowExcludeLatest, zap.NewNop())
	s := f.createSession(t, "Physics Notes")
	appendN(t, svc, s.ID, 3)

	time.Sleep(30 * time.Millisecond)
	first, err := svc.Recent(ctx, s.ID, 7)
	require.NoError(t, err)
	require.Len(t, first, 3)

	cached, hit, err := history.GetHistory(ctx, s.ID)
	require.NoError(t, err)
	require.True(t, hit)
	assert.Len(t, cached, 3)

	// an append invalidates the cached window
	appendN(t, svc, s.ID, 1)
	_, hit, err = history.GetHistory(ctx, s.ID)
	require.NoError(t, err)
	assert.False(t, hit)

	again, err := svc.Recent(ctx, s.ID, 7)
	require.NoError(t, err)
	assert.Len(t, again, 4)
}
