package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all kernel and daemon configuration.
type Config struct {
	Kernel    KernelConfig
	Trace     TraceConfig
	Server    ServerConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
	Boot      BootConfig
}

// KernelConfig holds object-kernel limits.
type KernelConfig struct {
	MaxHandles         uint32        `envconfig:"FIBER_MAX_HANDLES" default:"262144"`
	RootJobMaxHeight   uint32        `envconfig:"FIBER_ROOT_JOB_MAX_HEIGHT" default:"32"`
	HandleWarnInterval time.Duration `envconfig:"FIBER_HANDLE_WARN_INTERVAL" default:"1s"`
	MaxChannelMessages uint32        `envconfig:"FIBER_MAX_CHANNEL_MESSAGES" default:"0"`
}

// TraceConfig holds syscall tracing configuration.
type TraceConfig struct {
	Enabled bool `envconfig:"FIBER_TRACE_ENABLED" default:"false"`
	Buffer  int  `envconfig:"FIBER_TRACE_BUFFER" default:"1024"`
}

// ServerConfig holds diagnostics HTTP server configuration.
type ServerConfig struct {
	Host    string `envconfig:"FIBER_HTTP_HOST" default:"127.0.0.1"`
	Port    string `envconfig:"FIBER_HTTP_PORT" default:"8070"`
	Enabled bool   `envconfig:"FIBER_HTTP_ENABLED" default:"true"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
	// Global shares one bucket between all clients instead of one per IP
	Global bool `envconfig:"RATE_LIMIT_GLOBAL" default:"false"`
}

// BootConfig holds userboot configuration.
type BootConfig struct {
	Manifest string `envconfig:"FIBER_BOOT_MANIFEST" default:""`
}

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Kernel: KernelConfig{
			MaxHandles:         256 * 1024,
			RootJobMaxHeight:   32,
			HandleWarnInterval: time.Second,
			MaxChannelMessages: 0,
		},
		Trace: TraceConfig{
			Enabled: false,
			Buffer:  1024,
		},
		Server: ServerConfig{
			Host:    "127.0.0.1",
			Port:    "8070",
			Enabled: true,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
			Global:            false,
		},
	}
}

// Validate checks the limits the handle encoding depends on.
func (c *Config) Validate() error {
	n := c.Kernel.MaxHandles
	switch {
	case n < 4:
		return fmt.Errorf("%w: FIBER_MAX_HANDLES %d is below 4", ErrInvalidConfig, n)
	case n&(n-1) != 0:
		return fmt.Errorf("%w: FIBER_MAX_HANDLES %d is not a power of two", ErrInvalidConfig, n)
	case n > 1<<24:
		return fmt.Errorf("%w: FIBER_MAX_HANDLES %d leaves no room for generations", ErrInvalidConfig, n)
	}
	if c.Kernel.RootJobMaxHeight == 0 {
		return fmt.Errorf("%w: FIBER_ROOT_JOB_MAX_HEIGHT must be positive", ErrInvalidConfig)
	}
	if c.Trace.Buffer < 0 {
		return fmt.Errorf("%w: FIBER_TRACE_BUFFER must not be negative", ErrInvalidConfig)
	}
	return nil
}

// Addr returns the diagnostics listen address.
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}
