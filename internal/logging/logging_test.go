package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	level, err := ParseLevel("DEBUG")
	require.NoError(t, err)
	assert.Equal(t, zapcore.DebugLevel, level)

	_, err = ParseLevel("loud")
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.Format = "xml"
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Level = "verbose"
	assert.Error(t, cfg.Validate())
}

func TestNew(t *testing.T) {
	logger, err := New(Config{Level: "warn", Format: "console"})
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))

	_, err = New(Config{Level: "info", Format: "yaml"})
	assert.Error(t, err)
}

func TestNewTestLogger(t *testing.T) {
	logger, observed := NewTestLogger()
	logger.Warn("store value corrupt", zap.String("key", "tasks"))

	entries := observed.FilterMessage("store value corrupt").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.Equal(t, "tasks", entries[0].ContextMap()["key"])
}
