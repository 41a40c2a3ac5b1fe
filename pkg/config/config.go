// Package config provides environment-based configuration for the mirror service.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the mirror service.
type Config struct {
	// Database configuration
	DatabaseDSN string `yaml:"database_dsn"`

	// Vendor API credentials
	Onshape OnshapeConfig `yaml:"onshape"`

	// Server configuration
	APIHost string `yaml:"api_host"`
	APIPort int    `yaml:"api_port"`

	// Optional HS256 secret for inbound API tokens. Auth is disabled when empty.
	APITokenSecret string `yaml:"api_token_secret"`

	// Graceful shutdown timeout
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// Sync engine configuration
	Sync SyncConfig `yaml:"sync"`
}

// OnshapeConfig holds credentials and endpoint for the Onshape API.
type OnshapeConfig struct {
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	BaseURL   string `yaml:"base_url"`
}

// SyncConfig holds sync engine tuning parameters.
type SyncConfig struct {
	// PageSize is the number of entities requested per page.
	PageSize int `yaml:"page_size"`
	// MaxInFlight caps concurrent outbound requests to the vendor API.
	MaxInFlight int `yaml:"max_in_flight"`
	// MaxAttempts is the total number of tries for a retryable request.
	MaxAttempts int `yaml:"max_attempts"`
	// RetryBase is the initial backoff delay between retries.
	RetryBase time.Duration `yaml:"retry_base"`
	// Workers bounds per-level parallelism inside one sync run.
	Workers int `yaml:"workers"`
	// MaxConcurrentRuns caps simultaneously executing sync runs.
	MaxConcurrentRuns int `yaml:"max_concurrent_runs"`
}

// Load reads configuration from environment variables, with an optional YAML
// file overlay pointed at by CADMIRROR_CONFIG applied first.
func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("CADMIRROR_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	cfg.DatabaseDSN = getEnv("DATABASE_URL", cfg.DatabaseDSN)
	cfg.Onshape.AccessKey = getEnv("ONSHAPE_ACCESS_KEY", cfg.Onshape.AccessKey)
	cfg.Onshape.SecretKey = getEnv("ONSHAPE_SECRET_KEY", cfg.Onshape.SecretKey)
	cfg.Onshape.BaseURL = getEnv("ONSHAPE_BASE_URL", cfg.Onshape.BaseURL)
	cfg.APIHost = getEnv("API_HOST", cfg.APIHost)
	cfg.APIPort = getIntEnv("API_PORT", cfg.APIPort)
	cfg.APITokenSecret = getEnv("API_TOKEN_SECRET", cfg.APITokenSecret)
	cfg.ShutdownTimeout = getDurationEnv("SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	cfg.Sync.PageSize = getIntEnv("SYNC_PAGE_SIZE", cfg.Sync.PageSize)
	cfg.Sync.MaxInFlight = getIntEnv("SYNC_MAX_INFLIGHT", cfg.Sync.MaxInFlight)
	cfg.Sync.MaxAttempts = getIntEnv("SYNC_MAX_ATTEMPTS", cfg.Sync.MaxAttempts)
	cfg.Sync.RetryBase = getDurationEnv("SYNC_RETRY_BASE", cfg.Sync.RetryBase)
	cfg.Sync.Workers = getIntEnv("SYNC_WORKERS", cfg.Sync.Workers)
	cfg.Sync.MaxConcurrentRuns = getIntEnv("SYNC_MAX_RUNS", cfg.Sync.MaxConcurrentRuns)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadWithDefaults returns the default configuration without validating
// required fields. Useful for testing.
func LoadWithDefaults() *Config {
	return defaults()
}

func defaults() *Config {
	return &Config{
		DatabaseDSN: "postgres://localhost:5432/cadmirror?sslmode=disable",
		Onshape: OnshapeConfig{
			BaseURL: "https://cad.onshape.com/api/v6",
		},
		APIHost:         "0.0.0.0",
		APIPort:         8080,
		ShutdownTimeout: 30 * time.Second,
		Sync: SyncConfig{
			PageSize:          20,
			MaxInFlight:       4,
			MaxAttempts:       5,
			RetryBase:         500 * time.Millisecond,
			Workers:           4,
			MaxConcurrentRuns: 2,
		},
	}
}

// Validate checks that required configuration values are set.
func (c *Config) Validate() error {
	if c.Onshape.AccessKey == "" {
		return fmt.Errorf("ONSHAPE_ACCESS_KEY is required")
	}
	if c.Onshape.SecretKey == "" {
		return fmt.Errorf("ONSHAPE_SECRET_KEY is required")
	}
	if c.Onshape.BaseURL == "" {
		return fmt.Errorf("ONSHAPE_BASE_URL is required")
	}
	if c.Sync.PageSize < 1 {
		return fmt.Errorf("SYNC_PAGE_SIZE must be positive")
	}
	if c.Sync.MaxInFlight < 1 {
		return fmt.Errorf("SYNC_MAX_INFLIGHT must be positive")
	}
	if c.Sync.MaxAttempts < 1 {
		return fmt.Errorf("SYNC_MAX_ATTEMPTS must be positive")
	}
	return nil
}

// getEnv returns the environment variable value or a default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getIntEnv returns the environment variable as an int or a default.
func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

// getDurationEnv returns the environment variable as a duration or a default.
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
