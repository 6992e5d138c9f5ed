// Package config provides centralized configuration management for sheetload.
// Settings come from environment variables (optionally seeded from a .env file)
// with sensible defaults, and are validated on startup to fail fast on
// misconfiguration.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Upload   UploadConfig
	Load     LoadConfig
	Defaults FormDefaults
	Rate     RateLimitConfig
	Security SecurityConfig
	Logging  LoggingConfig
	History  HistoryConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" envAlt:"PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 30s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"30s"`

	// WriteTimeout is the maximum duration for writing response (default: 0 for SSE)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for non-streaming requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// UploadConfig holds settings for reading uploaded spreadsheets.
type UploadConfig struct {
	// MaxFileSize is the maximum allowed file size in bytes (default: 100MB)
	MaxFileSize int64 `env:"UPLOAD_MAX_FILE_SIZE" default:"104857600"`

	// PreviewRows is how many leading rows the preview shows (default: 5)
	PreviewRows int `env:"UPLOAD_PREVIEW_ROWS" default:"5"`
}

// LoadConfig holds settings for writing tables into a destination database.
type LoadConfig struct {
	// MaxConcurrent is the maximum number of parallel loads (default: 5)
	MaxConcurrent int `env:"LOAD_MAX_CONCURRENT" default:"5"`

	// MaxWaitTime is how long to wait for a load slot (default: 30s)
	MaxWaitTime time.Duration `env:"LOAD_MAX_WAIT_TIME" default:"30s"`

	// BatchSize is the number of rows per INSERT statement (default: 500)
	BatchSize int `env:"LOAD_BATCH_SIZE" default:"500"`

	// Timeout is the maximum duration for a single load (default: 10m)
	Timeout time.Duration `env:"LOAD_TIMEOUT" default:"10m"`

	// ConnectTimeout bounds opening and pinging the destination (default: 15s)
	ConnectTimeout time.Duration `env:"LOAD_CONNECT_TIMEOUT" default:"15s"`

	// SQLServerODBCDriver is the driver name carried in SQL Server connection strings
	SQLServerODBCDriver string `env:"SQLSERVER_ODBC_DRIVER" default:"ODBC Driver 17 for SQL Server"`
}

// FormDefaults holds the values pre-filled into the connection form.
type FormDefaults struct {
	Kind      string `env:"DEFAULT_DB_KIND" default:"mysql"`
	Host      string `env:"DEFAULT_DB_HOST" default:"localhost"`
	Port      string `env:"DEFAULT_DB_PORT" default:"3306"`
	Username  string `env:"DEFAULT_DB_USER" default:"root"`
	Database  string `env:"DEFAULT_DB_NAME"`
	TableName string `env:"DEFAULT_TABLE_NAME" default:"new_table"`
	Policy    string `env:"DEFAULT_IF_EXISTS" default:"replace"`
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`

	// LoadLimit is requests per minute for load endpoints (default: 10)
	LoadLimit int `env:"RATE_LIMIT_LOAD" default:"10"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// EnableCSP enables Content-Security-Policy headers (default: true)
	EnableCSP bool `env:"SECURITY_ENABLE_CSP" default:"true"`

	// RequireAPIKey protects /api routes with X-API-Key (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of accepted API keys
	APIKeys []string `env:"API_KEYS"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// HistoryConfig holds settings for the local load history store.
type HistoryConfig struct {
	// Enabled turns history recording on (default: true)
	Enabled bool `env:"HISTORY_ENABLED" default:"true"`

	// Path is the SQLite file holding the history (default: sheetload_history.db)
	Path string `env:"HISTORY_PATH" default:"sheetload_history.db"`

	// RetentionDays is how long entries are kept (default: 90)
	RetentionDays int `env:"HISTORY_RETENTION_DAYS" default:"90"`

	// PruneSchedule is the cron spec for the prune job (default: @daily)
	PruneSchedule string `env:"HISTORY_PRUNE_SCHEDULE" default:"@daily"`

	// ListLimit caps how many entries the history endpoint returns (default: 50)
	ListLimit int `env:"HISTORY_LIST_LIMIT" default:"50"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
