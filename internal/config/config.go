// Package config provides configuration types for the storefront CLI.
//
// Configuration is read from storefront.yaml, overridden by STOREFRONT_*
// environment variables (a .env file in the working directory is loaded
// first) and finally by command-line flags.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Store kinds accepted in session.store.
const (
	StoreFile   = "file"
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
	StoreMemory = "memory"
)

// Config is the top-level configuration.
type Config struct {
	// API configures the storefront backend client.
	API APIConfig `yaml:"api" mapstructure:"api"`

	// Session configures where the bearer credential is persisted.
	Session SessionConfig `yaml:"session" mapstructure:"session"`

	// LogLevel is one of debug, info, warn, error. Default: info.
	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn error"`

	// Telemetry configures the OpenTelemetry stdout exporters.
	Telemetry TelemetryConfig `yaml:"telemetry" mapstructure:"telemetry"`

	// MockBackend configures `storefront mock-backend`.
	MockBackend MockBackendConfig `yaml:"mock_backend" mapstructure:"mock_backend"`

	// DevMode forces debug logging.
	DevMode bool `yaml:"dev_mode" mapstructure:"dev_mode"`
}

// APIConfig configures the REST client.
type APIConfig struct {
	// BaseURL is the backend root. Default: http://localhost:8000.
	BaseURL string `yaml:"base_url" mapstructure:"base_url" validate:"required,url"`
	// Timeout bounds each request (e.g. "10s"). Default: "10s".
	Timeout string `yaml:"timeout" mapstructure:"timeout" validate:"omitempty,duration"`
	// Breaker configures the circuit breaker. Zero MaxFailures disables it.
	Breaker BreakerConfig `yaml:"breaker" mapstructure:"breaker"`
}

// BreakerConfig configures the client's circuit breaker.
type BreakerConfig struct {
	MaxFailures uint32 `yaml:"max_failures" mapstructure:"max_failures"`
	// OpenTimeout is how long the breaker stays open. Default: "30s".
	OpenTimeout string `yaml:"open_timeout" mapstructure:"open_timeout" validate:"omitempty,duration"`
}

// SessionConfig configures credential persistence.
type SessionConfig struct {
	// Store is one of:
	//   file://<path>    JSON file (default ~/.storefront/credentials.json)
	//   sqlite://<path>  SQLite database
	//   redis://host:port[/db]
	//   memory           not persisted
	Store string `yaml:"store" mapstructure:"store" validate:"required,credential_store"`
	// Profile separates credentials for several accounts or backends.
	Profile string `yaml:"profile" mapstructure:"profile"`
	// TTL expires Redis-stored credentials (e.g. "24h"). Empty keeps them.
	TTL string `yaml:"ttl" mapstructure:"ttl" validate:"omitempty,duration"`
}

// TelemetryConfig toggles the stdout trace and metric exporters.
type TelemetryConfig struct {
	Traces  bool `yaml:"traces" mapstructure:"traces"`
	Metrics bool `yaml:"metrics" mapstructure:"metrics"`
	// MetricInterval is the export period (e.g. "30s").
	MetricInterval string `yaml:"metric_interval" mapstructure:"metric_interval" validate:"omitempty,duration"`
}

// MockBackendConfig configures the in-process fake backend server.
type MockBackendConfig struct {
	// Addr is the listen address. Default: 127.0.0.1:8000.
	Addr string `yaml:"addr" mapstructure:"addr" validate:"omitempty,hostname_port"`
	// AllowedOrigins are the CORS origins. Empty allows any origin.
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	// Seed fills the backend with demo products and accounts. Default: true.
	Seed *bool `yaml:"seed" mapstructure:"seed"`
	// TokenTTL is the lifetime of issued tokens. Default: "30m".
	TokenTTL string `yaml:"token_ttl" mapstructure:"token_ttl" validate:"omitempty,duration"`
	// Secret signs issued tokens. Empty generates one per run.
	Secret string `yaml:"secret" mapstructure:"secret"`
	// LoginsPerMinute throttles POST /auth/login per client. Default: 10.
	// A negative value disables throttling.
	LoginsPerMinute int `yaml:"logins_per_minute" mapstructure:"logins_per_minute"`
	// LoginBurst is the number of back-to-back logins allowed. Default: 5.
	LoginBurst int `yaml:"login_burst" mapstructure:"login_burst" validate:"gte=0"`
}

// SetDefaults applies default values for optional fields.
func (c *Config) SetDefaults() {
	if c.API.BaseURL == "" {
		c.API.BaseURL = "http://localhost:8000"
	}
	if c.API.Timeout == "" {
		c.API.Timeout = "10s"
	}
	if c.API.Breaker.OpenTimeout == "" {
		c.API.Breaker.OpenTimeout = "30s"
	}
	if c.Session.Store == "" {
		c.Session.Store = "file://" + DefaultCredentialPath()
	}
	if c.Session.Profile == "" {
		c.Session.Profile = "default"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Telemetry.MetricInterval == "" {
		c.Telemetry.MetricInterval = "30s"
	}
	if c.MockBackend.Addr == "" {
		c.MockBackend.Addr = "127.0.0.1:8000"
	}
	if c.MockBackend.Seed == nil {
		seed := true
		c.MockBackend.Seed = &seed
	}
	if c.MockBackend.TokenTTL == "" {
		c.MockBackend.TokenTTL = "30m"
	}
	if c.MockBackend.LoginsPerMinute == 0 {
		c.MockBackend.LoginsPerMinute = 10
	}
	if c.MockBackend.LoginBurst == 0 {
		c.MockBackend.LoginBurst = 5
	}
}

// SetDevDefaults applies development overrides when DevMode is set.
func (c *Config) SetDevDefaults() {
	if !c.DevMode {
		return
	}
	c.LogLevel = "debug"
}

// DefaultCredentialPath is ~/.storefront/credentials.json, or a path in the
// working directory when the home directory is unknown.
func DefaultCredentialPath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return filepath.Join(".storefront", "credentials.json")
	}
	return filepath.Join(home, ".storefront", "credentials.json")
}

// StoreSpec is a parsed session.store value.
type StoreSpec struct {
	Kind string
	// Target is the file path, the SQLite path or the full redis:// URL.
	Target string
}

// ParseStore splits a session.store value into its kind and target.
func ParseStore(s string) (StoreSpec, error) {
	s = strings.TrimSpace(s)
	if s == StoreMemory {
		return StoreSpec{Kind: StoreMemory}, nil
	}
	scheme, rest, ok := strings.Cut(s, "://")
	if !ok {
		return StoreSpec{}, fmt.Errorf("invalid credential store %q: want memory or <scheme>://<target>", s)
	}
	switch scheme {
	case StoreFile:
		if rest == "" {
			rest = DefaultCredentialPath()
		}
		return StoreSpec{Kind: StoreFile, Target: rest}, nil
	case StoreSQLite:
		if rest == "" {
			return StoreSpec{}, fmt.Errorf("invalid credential store %q: sqlite needs a path", s)
		}
		return StoreSpec{Kind: StoreSQLite, Target: rest}, nil
	case StoreRedis:
		if rest == "" {
			return StoreSpec{}, fmt.Errorf("invalid credential store %q: redis needs host:port", s)
		}
		return StoreSpec{Kind: StoreRedis, Target: s}, nil
	default:
		return StoreSpec{}, fmt.Errorf("invalid credential store %q: unknown scheme %q", s, scheme)
	}
}

// Duration parses a validated duration field; empty or invalid yields def.
func Duration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}

// SeedEnabled reports whether the mock backend is seeded.
func (m MockBackendConfig) SeedEnabled() bool {
	return m.Seed == nil || *m.Seed
}
