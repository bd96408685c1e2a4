package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all gateway configuration.
type Config struct {
	Server    ServerConfig
	Backend   BackendConfig
	Identity  IdentityConfig
	Cache     CacheConfig
	Registry  RegistryConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
}

// RegistryConfig holds session registry configuration.
type RegistryConfig struct {
	SeedFile string `envconfig:"SEED_FILE" default:""`
}

// ServerConfig holds the UI-facing HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080"`
	Host string `envconfig:"HOST" default:"0.0.0.0"`
}

// BackendConfig holds the analysis backend configuration.
type BackendConfig struct {
	BaseURL        string        `envconfig:"BACKEND_URL" default:"http://localhost:8000"`
	Timeout        time.Duration `envconfig:"BACKEND_TIMEOUT" default:"30s"`
	UploadTimeout  time.Duration `envconfig:"BACKEND_UPLOAD_TIMEOUT" default:"2m"`
	RequestsPerSec float64       `envconfig:"BACKEND_RPS" default:"20"`
	HistoryLimit   int           `envconfig:"BACKEND_HISTORY_LIMIT" default:"200"`
}

// IdentityConfig holds the user identity used to partition the cache.
type IdentityConfig struct {
	User string `envconfig:"GATEWAY_USER" default:""`
}

// CacheConfig holds the namespaced state cache configuration.
type CacheConfig struct {
	Dir               string `envconfig:"CACHE_DIR" default:""`
	CompressThreshold int    `envconfig:"CACHE_COMPRESS_THRESHOLD" default:"4096"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds UI API rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"50"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"100"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8080",
			Host: "0.0.0.0",
		},
		Backend: BackendConfig{
			BaseURL:        "http://localhost:8000",
			Timeout:        30 * time.Second,
			UploadTimeout:  2 * time.Minute,
			RequestsPerSec: 20,
			HistoryLimit:   200,
		},
		Cache: CacheConfig{
			CompressThreshold: 4096,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 50,
			Burst:             100,
			Enabled:           true,
		},
	}
}
