package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestApplyDefaults(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()
	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, "json", cfg.Format)

	custom := Config{Level: "debug", Format: "console"}
	custom.ApplyDefaults()
	assert.Equal(t, "debug", custom.Level)
	assert.Equal(t, "console", custom.Format)
}

func TestValidate(t *testing.T) {
	valid := Config{Level: "warn", Format: "json"}
	require.NoError(t, valid.Validate())

	assert.Error(t, Config{Level: "loud", Format: "json"}.Validate())
	assert.Error(t, Config{Level: "info", Format: "xml"}.Validate())
}

func TestNew(t *testing.T) {
	logger, err := New(Config{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))

	logger, err = New(Config{})
	require.NoError(t, err, "empty config falls back to defaults")
	assert.False(t, logger.Core().Enabled(zapcore.DebugLevel))

	_, err = New(Config{Level: "bogus"})
	assert.Error(t, err)
}
