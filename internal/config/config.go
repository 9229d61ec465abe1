// Package config provides centralized configuration management for RowStore.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	ETL      ETLConfig
	Query    QueryConfig
	Rate     RateLimitConfig
	Security SecurityConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// BaseURL is the public URL used in dataset links. Derived from the
	// request when empty.
	BaseURL string `env:"BASE_URL" envAlt:"ROWSTORE_BASE_URL"`

	// ReadTimeout is the maximum duration for reading a request, including the CSV body (default: 60s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"60s"`

	// WriteTimeout is the maximum duration for writing a response (default: 0, CSV exports stream)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout bounds graceful shutdown, including draining ingestion jobs (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// DatabaseConfig holds the optional PostgreSQL persistence settings.
// Datasets are kept in memory only when URL is empty.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string.
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// MaxConns is the maximum number of connections in the pool (default: 10)
	MaxConns int `env:"DB_MAX_CONNS" default:"10"`

	// MinConns is the minimum number of connections to keep open (default: 2)
	MinConns int `env:"DB_MIN_CONNS" default:"2"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// Enabled reports whether persistence is configured.
func (c *DatabaseConfig) Enabled() bool {
	return c.URL != ""
}

// ETLConfig holds ingestion settings.
type ETLConfig struct {
	// MaxProcesses is the number of ingestion jobs that may run at once (default: 5)
	MaxProcesses int `env:"ETL_MAX_PROCESSES" envAlt:"MAX_ETL_PROCESSES" default:"5"`

	// MaxFileSize is the maximum accepted upload in bytes (default: 100MB)
	MaxFileSize int64 `env:"ETL_MAX_FILE_SIZE" default:"104857600"`

	// Timeout is the maximum duration of a single ingestion job (default: 10m)
	Timeout time.Duration `env:"ETL_TIMEOUT" default:"10m"`
}

// QueryConfig holds query engine settings.
type QueryConfig struct {
	// MaxLimit is the default and maximum page size (default: 100)
	MaxLimit int `env:"QUERY_MAX_LIMIT" default:"100"`

	// Timeout bounds a single query scan (default: 30s)
	Timeout time.Duration `env:"QUERY_TIMEOUT" default:"30s"`

	// Regexp selects how filter values are matched: full, simple or disabled (default: full)
	Regexp string `env:"QUERY_REGEXP" default:"full"`
}

// RateLimitConfig holds read rate limits in requests per second.
// A zero rate disables that limiter.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// Global is the limit across all clients and datasets (default: 200)
	Global float64 `env:"RATE_LIMIT_GLOBAL" default:"200"`

	// Dataset is the limit per dataset (default: 50)
	Dataset float64 `env:"RATE_LIMIT_DATASET" default:"50"`

	// Client is the limit per client IP (default: 20)
	Client float64 `env:"RATE_LIMIT_CLIENT" default:"20"`

	// Burst is the bucket size of each limiter (default: 20)
	Burst int `env:"RATE_LIMIT_BURST" default:"20"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// RequireAPIKey enforces X-API-Key on mutating requests (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of accepted keys
	APIKeys []string `env:"API_KEYS"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
