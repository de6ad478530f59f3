package config

import (
	"time"
)

// Config represents the complete application configuration.
// Layers, lowest precedence first:
// defaults, config file, .env file, RIFTPROXY_* environment, command flags.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Store    StoreConfig    `mapstructure:"store"`
	Upstream UpstreamConfig `mapstructure:"upstream"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Health   HealthConfig   `mapstructure:"health"`
	Debug    DebugConfig    `mapstructure:"debug"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// ClientRate is the sustained per-client request rate (requests/second).
	// Zero disables inbound throttling.
	ClientRate  float64 `mapstructure:"client_rate"`
	ClientBurst int     `mapstructure:"client_burst"`

	// RefreshOnStart runs a static data refresh before the server listens.
	RefreshOnStart bool `mapstructure:"refresh_on_start"`
}

// StoreConfig selects and configures the persister behind the entity cache.
type StoreConfig struct {
	// Driver is one of json, libsql, redis.
	Driver string `mapstructure:"driver"`

	// Dir holds the JSON documents for the json driver.
	Dir string `mapstructure:"dir"`

	// Path, URL and AuthToken configure the libsql driver.
	Path      string `mapstructure:"path"`
	URL       string `mapstructure:"url"`
	AuthToken string `mapstructure:"auth_token"`

	Redis RedisConfig `mapstructure:"redis"`
}

// RedisConfig configures the redis driver.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// UpstreamConfig points at the platform API and the static-data mirror.
type UpstreamConfig struct {
	PlatformURL string        `mapstructure:"platform_url"`
	StaticURL   string        `mapstructure:"static_url"`
	APIKey      string        `mapstructure:"api_key"`
	Locale      string        `mapstructure:"locale"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// LoggingConfig contains logging configuration
// Supports progressive logging profiles:
// - SIMPLE: Console output only, minimal configuration (CLI tools)
// - STRUCTURED: Structured sinks, correlation IDs (API services)
type LoggingConfig struct {
	// Level controls the minimum log level
	// Valid values: trace, debug, info, warn, error
	Level string `mapstructure:"level"`

	// Profile selects the logging complexity level
	Profile string `mapstructure:"profile"`
}

// MetricsConfig contains Prometheus metrics configuration
type MetricsConfig struct {
	// Enabled controls whether metrics are exposed
	Enabled bool `mapstructure:"enabled"`

	// Port is the dedicated metrics endpoint port (Prometheus format)
	Port int `mapstructure:"port"`
}

// HealthConfig contains health check configuration
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// DebugConfig contains debug and profiling configuration
type DebugConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// PprofEnabled controls whether pprof endpoints are exposed
	// WARNING: Only enable in development/staging environments
	PprofEnabled bool `mapstructure:"pprof_enabled"`
}
