package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultMatchesSpecDefaults(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 10.0, cfg.Pipeline.PreambleThreshold)
	assert.Equal(t, 500, cfg.RateLimit.PositionMs)
	assert.Equal(t, 1000, cfg.RateLimit.VelocityMs)
	assert.Equal(t, 0, cfg.RateLimit.IdentificationMs)
	assert.Equal(t, 5000, cfg.RateLimit.MetadataMs)
	assert.Equal(t, 30005, cfg.Sinks.Beast.Port)
	assert.Equal(t, 30002, cfg.Sinks.Raw.Port)
	assert.Equal(t, 30001, cfg.Sinks.AVR.Port)
	assert.Equal(t, 30003, cfg.Sinks.SBS1.Port)
	assert.Equal(t, 8080, cfg.Sinks.WebSocket.Port)
	assert.True(t, cfg.Sinks.Beast.Enabled)
	assert.False(t, cfg.Sinks.AVR.Enabled)
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pipeline.toml")
	body := `
log_level = "debug"

[pipeline]
preamble_threshold = 12.5

[rate_limit]
enabled = true
position_ms = 250

[sinks.avr]
enabled = true
port = 30011
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 12.5, cfg.Pipeline.PreambleThreshold)
	assert.True(t, cfg.RateLimit.Enabled)
	assert.Equal(t, 250, cfg.RateLimit.PositionMs)
	assert.True(t, cfg.Sinks.AVR.Enabled)
	assert.Equal(t, 30011, cfg.Sinks.AVR.Port)
	// Unspecified fields retain defaults.
	assert.Equal(t, 30005, cfg.Sinks.Beast.Port)
}

func TestNewLoggerDefaultsOnBadLevel(t *testing.T) {
	l := NewLogger("not-a-level")
	assert.Equal(t, "info", l.GetLevel().String())
}
