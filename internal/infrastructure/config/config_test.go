package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	// Kernel config
	assert.Equal(t, uint32(262144), cfg.Kernel.MaxHandles)
	assert.Equal(t, uint32(32), cfg.Kernel.RootJobMaxHeight)
	assert.Equal(t, time.Second, cfg.Kernel.HandleWarnInterval)
	assert.Zero(t, cfg.Kernel.MaxChannelMessages)

	// Server config
	assert.Equal(t, "127.0.0.1:8070", cfg.Server.Addr())
	assert.True(t, cfg.Server.Enabled)

	// Logging config
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Logging.Development)

	// Rate limit config
	assert.True(t, cfg.RateLimit.Enabled)
	assert.False(t, cfg.RateLimit.Global)

	require.NoError(t, cfg.Validate())
}

func TestLoadWithEnvironmentVariables(t *testing.T) {
	envVars := map[string]string{
		"FIBER_MAX_HANDLES":          "1024",
		"FIBER_ROOT_JOB_MAX_HEIGHT":  "8",
		"FIBER_HANDLE_WARN_INTERVAL": "250ms",
		"FIBER_TRACE_ENABLED":        "true",
		"FIBER_HTTP_PORT":            "9090",
		"LOG_LEVEL":                  "debug",
		"RATE_LIMIT_ENABLED":         "false",
		"RATE_LIMIT_GLOBAL":          "true",
		"FIBER_BOOT_MANIFEST":        "/etc/fiber/boot.yaml",
	}
	for key, value := range envVars {
		t.Setenv(key, value)
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, uint32(1024), cfg.Kernel.MaxHandles)
	assert.Equal(t, uint32(8), cfg.Kernel.RootJobMaxHeight)
	assert.Equal(t, 250*time.Millisecond, cfg.Kernel.HandleWarnInterval)
	assert.True(t, cfg.Trace.Enabled)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.False(t, cfg.RateLimit.Enabled)
	assert.True(t, cfg.RateLimit.Global)
	assert.Equal(t, "/etc/fiber/boot.yaml", cfg.Boot.Manifest)
}

func TestLoadRejectsBadHandleCapacity(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{"not a power of two", "1000"},
		{"too small", "2"},
		{"too large", "33554432"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("FIBER_MAX_HANDLES", tt.value)

			_, err := Load()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestLoadOrDefaultFallsBack(t *testing.T) {
	t.Setenv("FIBER_MAX_HANDLES", "12")

	cfg := LoadOrDefault()
	assert.Equal(t, Default().Kernel.MaxHandles, cfg.Kernel.MaxHandles)
}
