package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all daemon configuration.
type Config struct {
	Server    ServerConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
	Policy    PolicyConfig
	Audit     AuditConfig
	Standby   StandbyConfig
	Device    DeviceConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8070"`
	Host            string        `envconfig:"HOST" default:"0.0.0.0"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration for the signal API.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"200"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"400"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// PolicyConfig locates the policy tracker's files.
type PolicyConfig struct {
	// Glob is a doublestar pattern; empty disables the policy tracker.
	Glob  string `envconfig:"POLICY_GLOB" default:""`
	Watch bool   `envconfig:"POLICY_WATCH" default:"true"`
}

// AuditConfig holds transition history configuration.
type AuditConfig struct {
	// Path of the sqlite database; empty disables the history.
	Path   string `envconfig:"AUDIT_DB" default:""`
	Buffer int    `envconfig:"AUDIT_BUFFER" default:"256"`
}

// StandbyConfig selects the standby-bucket collaborator.
type StandbyConfig struct {
	// URL of a remote standby service; empty uses the in-process device model.
	URL     string        `envconfig:"STANDBY_URL" default:""`
	Timeout time.Duration `envconfig:"STANDBY_TIMEOUT" default:"2s"`
}

// DeviceConfig seeds the in-process device model.
type DeviceConfig struct {
	ManifestPath string `envconfig:"DEVICE_MANIFEST" default:""`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
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
		Server: ServerConfig{
			Port:            "8070",
			Host:            "0.0.0.0",
			ShutdownTimeout: 10 * time.Second,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 200,
			Burst:             400,
			Enabled:           true,
		},
		Policy: PolicyConfig{
			Watch: true,
		},
		Audit: AuditConfig{
			Buffer: 256,
		},
		Standby: StandbyConfig{
			Timeout: 2 * time.Second,
		},
	}
}
