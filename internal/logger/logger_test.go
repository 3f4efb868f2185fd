package logger

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"pg-user-api/internal/config"
)

func TestLevelFromString(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, levelFromString("DEBUG"))
	assert.Equal(t, zapcore.WarnLevel, levelFromString("warning"))
	assert.Equal(t, zapcore.ErrorLevel, levelFromString("error"))
	assert.Equal(t, zapcore.InfoLevel, levelFromString("nonsense"))
}

func TestNewWritesRotatingFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "logs", "api.log")

	lg, err := New(config.LogConfig{
		Level:        "info",
		File:         file,
		MaxAge:       time.Hour,
		RotationTime: time.Hour,
	})
	require.NoError(t, err)

	lg.Info("hello from test")
	_ = lg.Sync()

	matches, err := filepath.Glob(file + ".*")
	require.NoError(t, err)
	require.NotEmpty(t, matches)

	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello from test")
}

func TestNewRespectsLevel(t *testing.T) {
	lg, err := New(config.LogConfig{Level: "error", Dev: true})
	require.NoError(t, err)
	assert.False(t, lg.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, lg.Core().Enabled(zapcore.ErrorLevel))
}
