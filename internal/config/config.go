// Package config provides centralized configuration management for the
// import CLI and the catalog server. It loads configuration from environment
// variables with defaults and validates all settings on startup to fail fast
// on misconfiguration. Command-line flags override the Import section.
package config

import (
	"strconv"
	"time"
)

// Config is the full settings tree shared by both binaries.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Import   ImportConfig
	Security SecurityConfig
	History  HistoryConfig
	Logging  LoggingConfig
}

// ServerConfig configures the catalog HTTP server.
type ServerConfig struct {
	// Host is the bind address (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the TCP listen port (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout caps reading a whole request (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout caps writing a response, 0 disables it (default: 0s)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	// IdleTimeout closes idle keep-alive connections (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout bounds draining on SIGTERM (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for catalog reads (default: 30s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"30s"`
}

// DatabaseConfig configures the PostgreSQL pool.
type DatabaseConfig struct {
	// URL is the connection string, read from DATABASE_URL or DB_URL.
	// Only live imports and the server need it.
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// MaxConns is the maximum number of connections in the pool (default: 10)
	MaxConns int `env:"DB_MAX_CONNS" default:"10"`

	// MinConns is the minimum number of connections to keep open (default: 1)
	MinConns int `env:"DB_MIN_CONNS" default:"1"`

	// MaxConnLifetime recycles connections older than this (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime closes connections idle for longer (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// ImportConfig holds the import pipeline settings.
type ImportConfig struct {
	// DataDir holds the four input files (default: data)
	DataDir string `env:"IMPORT_DATA_DIR" default:"data"`

	CategoriesFile        string `env:"IMPORT_CATEGORIES_FILE" default:"recipe_categories.csv"`
	IngredientsFile       string `env:"IMPORT_INGREDIENTS_FILE" default:"ingredients.csv"`
	RecipesFile           string `env:"IMPORT_RECIPES_FILE" default:"recipes_final.csv"`
	RecipeIngredientsFile string `env:"IMPORT_RECIPE_INGREDIENTS_FILE" default:"recipe_ingredients.csv"`

	// Delimiter, Quote and Escape are single characters (defaults: , " \)
	Delimiter string `env:"IMPORT_DELIMITER" default:","`
	Quote     string `env:"IMPORT_QUOTE" default:"\""`
	Escape    string `env:"IMPORT_ESCAPE" default:"\\"`

	// SkipHeader drops the first line of every file (default: false)
	SkipHeader bool `env:"IMPORT_SKIP_HEADER" default:"false"`

	// BatchSize is the number of processed rows per commit (default: 50)
	BatchSize int `env:"IMPORT_BATCH_SIZE" default:"50"`

	// DryRun parses and counts without writing (default: false)
	DryRun bool `env:"IMPORT_DRY_RUN" default:"false"`

	// RecipeFormat is keyed or self-contained (default: keyed)
	RecipeFormat string `env:"IMPORT_RECIPE_FORMAT" default:"keyed"`

	// MaxWarnings caps the warnings kept per stage (default: 500)
	MaxWarnings int `env:"IMPORT_MAX_WARNINGS" default:"500"`

	// Timeout bounds a single run started over HTTP (default: 30m)
	Timeout time.Duration `env:"IMPORT_TIMEOUT" default:"30m"`
}

// SecurityConfig configures request trust and import authentication.
type SecurityConfig struct {
	// TrustedProxies lists CIDRs allowed to set X-Forwarded-For
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// RequireAPIKey protects the import endpoint (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of accepted X-API-Key values
	APIKeys []string `env:"API_KEYS"`
}

// HistoryConfig holds import history retention settings.
type HistoryConfig struct {
	// RetentionDays is how long recorded stages are kept (default: 90)
	RetentionDays int `env:"HISTORY_RETENTION_DAYS" default:"90"`

	// CheckInterval is how often the retention job runs (default: 24h)
	CheckInterval time.Duration `env:"HISTORY_CHECK_INTERVAL" default:"24h"`
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	// Level is debug, info, warn or error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr joins host and port for http.Server.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
