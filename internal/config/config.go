package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// EnvFiles are loaded, when present, before the environment is parsed.
// Variables already set in the process environment win.
var EnvFiles = []string{".env", ".env.local"}

// Config holds all service configuration.
type Config struct {
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	Server   ServerConfig
	Database DatabaseConfig
	JWT      JWTConfig
	Upload   UploadConfig
	Import   ImportConfig
}

type ServerConfig struct {
	Port         string        `env:"SERVER_PORT" envDefault:"8080"`
	ReadTimeout  time.Duration `env:"SERVER_READ_TIMEOUT" envDefault:"30s"`
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" envDefault:"120s"`
	// DevTokens enables POST /dev/token. Never enable in production.
	DevTokens bool `env:"DEV_TOKENS_ENABLED" envDefault:"false"`
}

type DatabaseConfig struct {
	Host     string `env:"DB_HOST" envDefault:"localhost"`
	Port     string `env:"DB_PORT" envDefault:"5432"`
	User     string `env:"DB_USER" envDefault:"registry"`
	Password string `env:"DB_PASSWORD" envDefault:"registry_dev_password"`
	DBName   string `env:"DB_NAME" envDefault:"registry"`
	SSLMode  string `env:"DB_SSLMODE" envDefault:"disable"`
	MaxConns int    `env:"DB_MAX_CONNS" envDefault:"10"`
	// ConnectRetries is the number of reconnect attempts after the first.
	ConnectRetries   int           `env:"DB_CONNECT_RETRIES" envDefault:"10"`
	ConnectRetryWait time.Duration `env:"DB_CONNECT_RETRY_WAIT" envDefault:"500ms"`
}

type JWTConfig struct {
	Secret      string `env:"JWT_SECRET" envDefault:"dev-secret-change-in-production"`
	Issuer      string `env:"JWT_ISSUER" envDefault:"research-registry"`
	ExpiryHours int    `env:"JWT_EXPIRY_HOURS" envDefault:"24"`
}

type UploadConfig struct {
	MaxSizeMB int64  `env:"UPLOAD_MAX_SIZE_MB" envDefault:"50"`
	TempDir   string `env:"UPLOAD_TEMP_DIR" envDefault:"/tmp/registry-imports"`
}

// MaxFileSize is the upload limit in bytes.
func (u UploadConfig) MaxFileSize() int64 {
	return u.MaxSizeMB * 1024 * 1024
}

type ImportConfig struct {
	// Actor is recorded on coordinator changes when the caller has no identity.
	Actor string `env:"IMPORT_ACTOR" envDefault:"csv-import"`
	// ErrorDisplayLimit caps the error lines returned to interactive callers.
	ErrorDisplayLimit int `env:"IMPORT_ERROR_DISPLAY_LIMIT" envDefault:"10"`
	// SchemaOverridePath points to a JSON document keyed by import kind.
	SchemaOverridePath string `env:"IMPORT_SCHEMA_OVERRIDE_PATH"`
	ChangeReason       string `env:"IMPORT_COORDINATOR_CHANGE_REASON" envDefault:"coordinator changed by CSV import"`
}

// Load reads .env files, then the environment, and validates the result.
func Load() (*Config, error) {
	if err := loadEnvFiles(EnvFiles); err != nil {
		return nil, fmt.Errorf("load env files: %w", err)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadEnvFiles(files []string) error {
	existing := make([]string, 0, len(files))
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	return godotenv.Load(existing...)
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.JWT.Secret) == "" {
		return fmt.Errorf("JWT_SECRET must not be empty")
	}
	if c.JWT.ExpiryHours <= 0 {
		return fmt.Errorf("JWT_EXPIRY_HOURS must be positive, got %d", c.JWT.ExpiryHours)
	}
	if c.Import.ErrorDisplayLimit < 0 {
		return fmt.Errorf("IMPORT_ERROR_DISPLAY_LIMIT must be non-negative, got %d", c.Import.ErrorDisplayLimit)
	}
	if c.Upload.MaxSizeMB <= 0 {
		return fmt.Errorf("UPLOAD_MAX_SIZE_MB must be positive, got %d", c.Upload.MaxSizeMB)
	}
	if c.Database.ConnectRetries < 0 {
		return fmt.Errorf("DB_CONNECT_RETRIES must be non-negative, got %d", c.Database.ConnectRetries)
	}
	if c.Database.MaxConns <= 0 {
		return fmt.Errorf("DB_MAX_CONNS must be positive, got %d", c.Database.MaxConns)
	}
	return nil
}

// SlogLevel maps LOG_LEVEL to a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// DSN returns the Postgres connection string.
func (d *DatabaseConfig) DSN() string {
	return "postgres://" + d.User + ":" + d.Password +
		"@" + d.Host + ":" + d.Port +
		"/" + d.DBName + "?sslmode=" + d.SSLMode
}
