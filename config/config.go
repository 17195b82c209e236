package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig
	Catalog   CatalogConfig
	Cache     CacheConfig
	RateLimit RateLimitConfig
	Snapshot  SnapshotConfig
	Matching  MatchingConfig
	Log       LogConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port           string   `mapstructure:"port"`
	Environment    string   `mapstructure:"environment"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// CatalogConfig locates the reference catalog: a remote CSV export or a local file
type CatalogConfig struct {
	BaseURL         string `mapstructure:"base_url"`
	APIKey          string `mapstructure:"api_key"`
	File            string `mapstructure:"file"`
	RequestsPerHour int    `mapstructure:"requests_per_hour"`
}

// CacheConfig holds cache-related configuration
type CacheConfig struct {
	Type string        `mapstructure:"type"` // "memory"
	TTL  time.Duration `mapstructure:"ttl"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	PerIP int `mapstructure:"per_ip"` // requests per minute, 0 disables
}

// SnapshotConfig holds the snapshot database location
type SnapshotConfig struct {
	Path string `mapstructure:"path"`
}

// MatchingConfig tunes normalization and batch building
type MatchingConfig struct {
	RulesFile          string  `mapstructure:"rules_file"`
	Workers            int     `mapstructure:"workers"`
	SuggestMinScore    float64 `mapstructure:"suggest_min_score"`
	EnableDebugLogging bool    `mapstructure:"enable_debug_logging"`
}

// LogConfig selects log level and output format
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "json" or "text"
}

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	if err := loadEnvFile(); err != nil {
		return nil, err
	}

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/tirewatch/")

	// TIREWATCH_CATALOG_BASE_URL -> catalog.base_url
	v.SetEnvPrefix("TIREWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Config file is optional
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// loadEnvFile reads ./.env when present. Variables already set win.
func loadEnvFile() error {
	if _, err := os.Stat(".env"); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := gotenv.Load(".env"); err != nil {
		return fmt.Errorf("error reading .env: %w", err)
	}
	return nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:*"})

	v.SetDefault("catalog.base_url", "")
	v.SetDefault("catalog.api_key", "")
	v.SetDefault("catalog.file", "")
	v.SetDefault("catalog.requests_per_hour", 60)

	v.SetDefault("cache.type", "memory")
	v.SetDefault("cache.ttl", "6h")

	v.SetDefault("ratelimit.per_ip", 60)

	v.SetDefault("snapshot.path", "tirewatch.db")

	v.SetDefault("matching.rules_file", "")
	v.SetDefault("matching.workers", 4)
	v.SetDefault("matching.suggest_min_score", 50)
	v.SetDefault("matching.enable_debug_logging", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// validate validates the configuration
func validate(config *Config) error {
	if config.Catalog.BaseURL == "" && config.Catalog.File == "" {
		return fmt.Errorf("catalog source is required (set TIREWATCH_CATALOG_BASE_URL or TIREWATCH_CATALOG_FILE)")
	}

	if config.Cache.Type != "memory" {
		return fmt.Errorf("cache type must be 'memory', got: %s", config.Cache.Type)
	}

	if config.Matching.Workers < 1 {
		return fmt.Errorf("matching workers must be at least 1, got: %d", config.Matching.Workers)
	}

	if config.Log.Format != "json" && config.Log.Format != "text" {
		return fmt.Errorf("log format must be 'json' or 'text', got: %s", config.Log.Format)
	}

	return nil
}
