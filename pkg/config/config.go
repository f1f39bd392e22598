package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/rpmmirror/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	// Store configuration
	Store StoreConfig

	// Sync configuration
	Sync SyncConfig

	// Publish configuration
	Publish PublishConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// StoreConfig holds content store configuration
type StoreConfig struct {
	// Path to the SQLite database, or ":memory:" for an ephemeral store
	DatabasePath string
}

// SyncConfig holds repository sync configuration
type SyncConfig struct {
	// Parallelism bounds how many metadata files are parsed concurrently
	Parallelism int

	// Timeout bounds a single repository sync
	Timeout time.Duration

	// SkipInvalidModules drops malformed modulemd documents instead of
	// failing the sync
	SkipInvalidModules bool
}

// PublishConfig holds metadata tree publish configuration
type PublishConfig struct {
	// OutputDir is the root directory published trees are written under
	OutputDir string

	// ChecksumType selects the digest algorithm for generated files
	// (sha256, sha384 or sha512)
	ChecksumType string

	// Compression selects the codec for generated metadata files
	// (gzip, xz or zstd)
	Compression string
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel observability.LogLevel

	// Metrics
	MetricsEnabled bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Store:         loadStoreConfig(),
		Sync:          loadSyncConfig(),
		Publish:       loadPublishConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadStoreConfig loads content store configuration from environment
func loadStoreConfig() StoreConfig {
	return StoreConfig{
		DatabasePath: getEnv("RPMMIRROR_DB_PATH", "rpmmirror.db"),
	}
}

// loadSyncConfig loads sync configuration from environment
func loadSyncConfig() SyncConfig {
	return SyncConfig{
		Parallelism:        getEnvInt("RPMMIRROR_SYNC_PARALLELISM", 4),
		Timeout:            getEnvDuration("RPMMIRROR_SYNC_TIMEOUT", 30*time.Minute),
		SkipInvalidModules: getEnvBool("RPMMIRROR_SKIP_INVALID_MODULES", false),
	}
}

// loadPublishConfig loads publish configuration from environment
func loadPublishConfig() PublishConfig {
	return PublishConfig{
		OutputDir:    getEnv("RPMMIRROR_PUBLISH_DIR", "published"),
		ChecksumType: getEnv("RPMMIRROR_CHECKSUM_TYPE", "sha256"),
		Compression:  getEnv("RPMMIRROR_COMPRESSION", "gzip"),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:       parseLogLevel(getEnv("RPMMIRROR_LOG_LEVEL", "info")),
		MetricsEnabled: getEnvBool("RPMMIRROR_METRICS_ENABLED", true),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Store.DatabasePath == "" {
		return fmt.Errorf("database path is required")
	}

	if c.Sync.Parallelism < 1 {
		return fmt.Errorf("sync parallelism must be at least 1")
	}
	if c.Sync.Timeout <= 0 {
		return fmt.Errorf("sync timeout must be positive")
	}

	if c.Publish.OutputDir == "" {
		return fmt.Errorf("publish output directory is required")
	}
	switch c.Publish.ChecksumType {
	case "sha256", "sha384", "sha512":
	default:
		return fmt.Errorf("invalid checksum type: %s (must be sha256, sha384 or sha512)", c.Publish.ChecksumType)
	}
	switch c.Publish.Compression {
	case "gzip", "xz", "zstd":
	default:
		return fmt.Errorf("invalid compression: %s (must be gzip, xz or zstd)", c.Publish.Compression)
	}

	return nil
}

// parseLogLevel parses a log level string
func parseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "info":
		return observability.InfoLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
