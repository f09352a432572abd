package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/rs/zerolog"
)

// Storage backends selectable through STORE_BACKEND.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendGCS      = "gcs"
	BackendMemory   = "memory"
)

// Config holds all configuration for the application.
type Config struct {
	// Server configuration
	Port           string
	LogLevel       string
	LogFormat      string
	TZName         string
	AllowedOrigins []string

	// Storage configuration
	StoreBackend  string
	SQLitePath    string
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisPrefix   string
	GCSBucket     string
	GCSPrefix     string

	// Capture configuration
	CaptureNotificationsEnabled bool
	CaptureAccessibilityEnabled bool
	CaptureBuffer               int
	CaptureTokenSecret          string
	CaptureRate                 float64
	CaptureBurst                int

	// Advisor configuration
	GeminiModel    string
	AdvisorEnabled bool

	// Downstream sinks
	BQProject     string
	BQDataset     string
	BQTable       string
	BackupEnabled bool
	NotionToken   string
	NotionDBID    string
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "console"),
		TZName:         getEnv("TZ_NAME", "America/Sao_Paulo"),
		AllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),

		StoreBackend:  getEnv("STORE_BACKEND", BackendSQLite),
		SQLitePath:    getEnv("SQLITE_PATH", "pixtracker.db"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisPrefix:   getEnv("REDIS_PREFIX", "pixtracker:"),
		GCSBucket:     getEnv("GCS_BUCKET", ""),
		GCSPrefix:     getEnv("GCS_PREFIX", "pixtracker"),

		CaptureNotificationsEnabled: getEnvAsBool("CAPTURE_NOTIFICATIONS_ENABLED", true),
		CaptureAccessibilityEnabled: getEnvAsBool("CAPTURE_ACCESSIBILITY_ENABLED", false),
		CaptureBuffer:               getEnvAsInt("CAPTURE_BUFFER", 64),
		CaptureTokenSecret:          getEnv("CAPTURE_TOKEN_SECRET", ""),
		CaptureRate:                 getEnvAsFloat("CAPTURE_RATE", 5),
		CaptureBurst:                getEnvAsInt("CAPTURE_BURST", 20),

		GeminiModel:    getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		AdvisorEnabled: getEnvAsBool("ADVISOR_ENABLED", false),

		BQProject:     getEnv("BQ_PROJECT", ""),
		BQDataset:     getEnv("BQ_DATASET", "finance"),
		BQTable:       getEnv("BQ_TABLE", "pix_transactions"),
		BackupEnabled: getEnvAsBool("BACKUP_ENABLED", false),
		NotionToken:   getEnv("NOTION_TOKEN", ""),
		NotionDBID:    getEnv("NOTION_DB_ID", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate ensures the configuration is consistent.
func (c *Config) Validate() error {
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("LOG_LEVEL %q is not a valid level", c.LogLevel)
	}
	if c.LogFormat != "console" && c.LogFormat != "json" {
		return fmt.Errorf("LOG_FORMAT %q is not supported", c.LogFormat)
	}
	if _, err := time.LoadLocation(c.TZName); err != nil {
		return fmt.Errorf("TZ_NAME %q is not a known time zone: %w", c.TZName, err)
	}

	switch c.StoreBackend {
	case BackendSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required for the sqlite backend")
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres backend")
		}
	case BackendRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR is required for the redis backend")
		}
	case BackendGCS:
		if c.GCSBucket == "" {
			return fmt.Errorf("GCS_BUCKET is required for the gcs backend")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("STORE_BACKEND %q is not supported", c.StoreBackend)
	}

	if c.CaptureBuffer <= 0 {
		return fmt.Errorf("CAPTURE_BUFFER must be positive")
	}
	if c.CaptureRate <= 0 || c.CaptureBurst <= 0 {
		return fmt.Errorf("CAPTURE_RATE and CAPTURE_BURST must be positive")
	}
	if c.CaptureTokenSecret != "" && len(c.CaptureTokenSecret) < 32 {
		return fmt.Errorf("CAPTURE_TOKEN_SECRET must be at least 32 characters long")
	}
	if c.BackupEnabled && c.GCSBucket == "" {
		return fmt.Errorf("GCS_BUCKET is required when BACKUP_ENABLED is set")
	}
	if (c.NotionToken == "") != (c.NotionDBID == "") {
		return fmt.Errorf("NOTION_TOKEN and NOTION_DB_ID must be set together")
	}
	return nil
}

// Location returns the configured zone. It is valid after Validate.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.TZName)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ExportEnabled reports whether BigQuery export is configured.
func (c *Config) ExportEnabled() bool {
	return c.BQProject != ""
}

// NotionEnabled reports whether Notion sync is configured.
func (c *Config) NotionEnabled() bool {
	return c.NotionToken != "" && c.NotionDBID != ""
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvAsList splits a comma-separated variable, dropping empty items.
func getEnvAsList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// getEnvAsBool gets an environment variable as a boolean with a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
