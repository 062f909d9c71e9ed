// Package config loads application configuration from the environment with
// an optional YAML overlay for deploy-time overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// StoreBackend selects the keyed entity store implementation.
type StoreBackend string

const (
	BackendDynamoDB StoreBackend = "dynamodb"
	BackendMemory   StoreBackend = "memory"
)

// Tunables are the runtime-adjustable knobs; the watcher can refresh them
// from the overlay file without a restart.
type Tunables struct {
	RetryMaxAttempts int           `yaml:"retryMaxAttempts"`
	RetryBaseDelay   time.Duration `yaml:"retryBaseDelay"`
	DefaultPageSize  int           `yaml:"defaultPageSize"`
}

// Config holds all application configuration.
type Config struct {
	ServerAddress string       `yaml:"serverAddress"`
	Environment   string       `yaml:"environment"`
	LogLevel      string       `yaml:"logLevel"`
	StoreBackend  StoreBackend `yaml:"storeBackend"`

	AWSRegion     string `yaml:"awsRegion"`
	DynamoDBTable string `yaml:"dynamodbTable"`

	EnableMetrics bool `yaml:"enableMetrics"`

	Tunables Tunables `yaml:"tunables"`

	// OverlayPath is the YAML file the watcher observes; empty disables it.
	OverlayPath string `yaml:"-"`
}

// Load builds configuration from environment variables, then applies the
// YAML overlay named by CONFIG_FILE if present.
func Load() (*Config, error) {
	cfg := &Config{
		ServerAddress: getEnv("SERVER_ADDRESS", ":8080"),
		Environment:   getEnv("ENVIRONMENT", "development"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		StoreBackend:  StoreBackend(getEnv("STORE_BACKEND", string(BackendDynamoDB))),
		AWSRegion:     getEnv("AWS_REGION", "us-west-2"),
		DynamoDBTable: getEnv("TABLE_NAME", "coursehub"),
		EnableMetrics: getEnvBool("ENABLE_METRICS", true),
		Tunables: Tunables{
			RetryMaxAttempts: getEnvInt("RETRY_MAX_ATTEMPTS", 2),
			RetryBaseDelay:   time.Duration(getEnvInt("RETRY_BASE_DELAY_MS", 50)) * time.Millisecond,
			DefaultPageSize:  getEnvInt("DEFAULT_PAGE_SIZE", 20),
		},
		OverlayPath: getEnv("CONFIG_FILE", ""),
	}

	if cfg.OverlayPath != "" {
		if err := cfg.applyOverlay(cfg.OverlayPath); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyOverlay(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config overlay %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config overlay %s: %w", path, err)
	}
	return nil
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case BackendDynamoDB:
		if c.DynamoDBTable == "" {
			return fmt.Errorf("TABLE_NAME is required for the dynamodb backend")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unknown store backend %q", c.StoreBackend)
	}
	if c.Tunables.RetryMaxAttempts < 0 {
		return fmt.Errorf("retry attempts cannot be negative")
	}
	return nil
}

// IsProduction reports whether the service runs with production settings.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}
