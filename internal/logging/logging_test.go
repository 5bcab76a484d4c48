package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestConfig_SetDefaults(t *testing.T) {
	var c Config
	c.SetDefaults()

	assert.Equal(t, DefaultLevel, c.Level)
	assert.Equal(t, DefaultMaxSizeMB, c.MaxSizeMB)
	assert.Equal(t, DefaultMaxBackups, c.MaxBackups)
	assert.Equal(t, DefaultMaxAgeDays, c.MaxAgeDays)
}

func TestNew_NilConfig(t *testing.T) {
	logger, err := New(nil)
	require.NoError(t, err)
	require.NotNil(t, logger)

	assert.True(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, logger.Core().Enabled(zapcore.DebugLevel))
}

func TestNew_InvalidLevel(t *testing.T) {
	_, err := New(&Config{Level: "chatty"})
	assert.Error(t, err)
}

func TestNew_DebugLevel(t *testing.T) {
	logger, err := New(&Config{Level: "debug", Development: true})
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))
}

func TestNew_WritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meshpeer.log")

	logger, err := New(&Config{Level: "info", FilePath: path})
	require.NoError(t, err)

	logger.Info("peer conn added")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"peer conn added"`)
}
