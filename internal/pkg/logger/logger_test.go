package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewWritesJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")

	log := New(path, "info", true)
	log.Info("session created", zap.String("session_id", "s-1"))
	log.Debug("hidden below level")
	_ = log.Sync()

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"message":"session created"`)
	assert.Contains(t, string(raw), `"session_id":"s-1"`)
	assert.NotContains(t, string(raw), "hidden below level")
}
