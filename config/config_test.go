package config

import (
	"os"
	"testing"
	"time"
)

var envKeys = []string{
	"TIREWATCH_SERVER_PORT",
	"TIREWATCH_SERVER_ENVIRONMENT",
	"TIREWATCH_SERVER_ALLOWED_ORIGINS",
	"TIREWATCH_CATALOG_BASE_URL",
	"TIREWATCH_CATALOG_API_KEY",
	"TIREWATCH_CATALOG_FILE",
	"TIREWATCH_CATALOG_REQUESTS_PER_HOUR",
	"TIREWATCH_CACHE_TYPE",
	"TIREWATCH_CACHE_TTL",
	"TIREWATCH_RATELIMIT_PER_IP",
	"TIREWATCH_SNAPSHOT_PATH",
	"TIREWATCH_MATCHING_WORKERS",
	"TIREWATCH_MATCHING_RULES_FILE",
	"TIREWATCH_LOG_LEVEL",
	"TIREWATCH_LOG_FORMAT",
}

func TestLoad(t *testing.T) {
	cleanupEnv := func() {
		for _, k := range envKeys {
			os.Unsetenv(k)
		}
	}

	t.Run("loads with defaults when no env vars set", func(t *testing.T) {
		cleanupEnv()
		os.Setenv("TIREWATCH_CATALOG_FILE", "catalog.csv")
		defer cleanupEnv()

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load() error = %v, want nil", err)
		}

		if cfg.Server.Port != "8080" {
			t.Errorf("Server.Port = %s, want 8080", cfg.Server.Port)
		}
		if cfg.Server.Environment != "development" {
			t.Errorf("Server.Environment = %s, want development", cfg.Server.Environment)
		}
		if cfg.Catalog.File != "catalog.csv" {
			t.Errorf("Catalog.File = %s, want catalog.csv", cfg.Catalog.File)
		}
		if cfg.Catalog.RequestsPerHour != 60 {
			t.Errorf("Catalog.RequestsPerHour = %d, want 60", cfg.Catalog.RequestsPerHour)
		}
		if cfg.Cache.Type != "memory" {
			t.Errorf("Cache.Type = %s, want memory", cfg.Cache.Type)
		}
		if cfg.Cache.TTL != 6*time.Hour {
			t.Errorf("Cache.TTL = %v, want 6h", cfg.Cache.TTL)
		}
		if cfg.RateLimit.PerIP != 60 {
			t.Errorf("RateLimit.PerIP = %d, want 60", cfg.RateLimit.PerIP)
		}
		if cfg.Snapshot.Path != "tirewatch.db" {
			t.Errorf("Snapshot.Path = %s, want tirewatch.db", cfg.Snapshot.Path)
		}
		if cfg.Matching.Workers != 4 {
			t.Errorf("Matching.Workers = %d, want 4", cfg.Matching.Workers)
		}
		if cfg.Matching.SuggestMinScore != 50 {
			t.Errorf("Matching.SuggestMinScore = %v, want 50", cfg.Matching.SuggestMinScore)
		}
		if cfg.Log.Level != "info" || cfg.Log.Format != "text" {
			t.Errorf("Log = %+v, want info/text", cfg.Log)
		}
	})

	t.Run("loads custom values from environment variables", func(t *testing.T) {
		cleanupEnv()
		os.Setenv("TIREWATCH_SERVER_PORT", "9090")
		os.Setenv("TIREWATCH_SERVER_ENVIRONMENT", "production")
		os.Setenv("TIREWATCH_CATALOG_BASE_URL", "https://redash.example.com")
		os.Setenv("TIREWATCH_CATALOG_API_KEY", "custom-api-key")
		os.Setenv("TIREWATCH_CACHE_TTL", "24h")
		os.Setenv("TIREWATCH_RATELIMIT_PER_IP", "200")
		os.Setenv("TIREWATCH_SNAPSHOT_PATH", ":memory:")
		os.Setenv("TIREWATCH_MATCHING_WORKERS", "8")
		os.Setenv("TIREWATCH_LOG_FORMAT", "json")
		defer cleanupEnv()

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load() error = %v, want nil", err)
		}

		if cfg.Server.Port != "9090" {
			t.Errorf("Server.Port = %s, want 9090", cfg.Server.Port)
		}
		if cfg.Server.Environment != "production" {
			t.Errorf("Server.Environment = %s, want production", cfg.Server.Environment)
		}
		if cfg.Catalog.BaseURL != "https://redash.example.com" {
			t.Errorf("Catalog.BaseURL = %s, want https://redash.example.com", cfg.Catalog.BaseURL)
		}
		if cfg.Catalog.APIKey != "custom-api-key" {
			t.Errorf("Catalog.APIKey = %s, want custom-api-key", cfg.Catalog.APIKey)
		}
		if cfg.Cache.TTL != 24*time.Hour {
			t.Errorf("Cache.TTL = %v, want 24h", cfg.Cache.TTL)
		}
		if cfg.RateLimit.PerIP != 200 {
			t.Errorf("RateLimit.PerIP = %d, want 200", cfg.RateLimit.PerIP)
		}
		if cfg.Snapshot.Path != ":memory:" {
			t.Errorf("Snapshot.Path = %s, want :memory:", cfg.Snapshot.Path)
		}
		if cfg.Matching.Workers != 8 {
			t.Errorf("Matching.Workers = %d, want 8", cfg.Matching.Workers)
		}
		if cfg.Log.Format != "json" {
			t.Errorf("Log.Format = %s, want json", cfg.Log.Format)
		}
	})

	t.Run("fails validation when catalog source is missing", func(t *testing.T) {
		cleanupEnv()
		defer cleanupEnv()

		_, err := Load()
		if err == nil {
			t.Fatal("Load() error = nil, want error for missing catalog")
		}
		want := "invalid configuration: catalog source is required (set TIREWATCH_CATALOG_BASE_URL or TIREWATCH_CATALOG_FILE)"
		if err.Error() != want {
			t.Errorf("Load() error = %v, want %q", err, want)
		}
	})

	t.Run("fails validation for invalid cache type", func(t *testing.T) {
		cleanupEnv()
		os.Setenv("TIREWATCH_CATALOG_FILE", "catalog.csv")
		os.Setenv("TIREWATCH_CACHE_TYPE", "redis")
		defer cleanupEnv()

		if _, err := Load(); err == nil {
			t.Error("Load() error = nil, want error for invalid cache type")
		}
	})
}

func TestLoadEnvFile(t *testing.T) {
	chdirTemp := func(t *testing.T) {
		t.Helper()
		originalDir, _ := os.Getwd()
		t.Cleanup(func() { os.Chdir(originalDir) })
		os.Chdir(t.TempDir())
	}

	t.Run("returns nil when .env file doesn't exist", func(t *testing.T) {
		chdirTemp(t)

		if err := loadEnvFile(); err != nil {
			t.Errorf("loadEnvFile() error = %v, want nil when file doesn't exist", err)
		}
	})

	t.Run("loads variables and skips comments", func(t *testing.T) {
		chdirTemp(t)

		envContent := `
# Comment line
TW_TEST_VAR_1=value1

TW_TEST_VAR_2=value2
# TW_TEST_COMMENTED=should_not_load
`
		if err := os.WriteFile(".env", []byte(envContent), 0644); err != nil {
			t.Fatalf("Failed to create test .env file: %v", err)
		}
		os.Unsetenv("TW_TEST_VAR_1")
		os.Unsetenv("TW_TEST_VAR_2")
		os.Unsetenv("TW_TEST_COMMENTED")
		defer func() {
			os.Unsetenv("TW_TEST_VAR_1")
			os.Unsetenv("TW_TEST_VAR_2")
		}()

		if err := loadEnvFile(); err != nil {
			t.Fatalf("loadEnvFile() error = %v, want nil", err)
		}

		if os.Getenv("TW_TEST_VAR_1") != "value1" {
			t.Errorf("TW_TEST_VAR_1 = %s, want value1", os.Getenv("TW_TEST_VAR_1"))
		}
		if os.Getenv("TW_TEST_VAR_2") != "value2" {
			t.Errorf("TW_TEST_VAR_2 = %s, want value2", os.Getenv("TW_TEST_VAR_2"))
		}
		if os.Getenv("TW_TEST_COMMENTED") != "" {
			t.Errorf("TW_TEST_COMMENTED should not be loaded from comment")
		}
	})

	t.Run("doesn't override existing environment variables", func(t *testing.T) {
		chdirTemp(t)

		os.Setenv("TW_TEST_OVERRIDE", "existing-value")
		defer os.Unsetenv("TW_TEST_OVERRIDE")

		if err := os.WriteFile(".env", []byte("TW_TEST_OVERRIDE=new-value"), 0644); err != nil {
			t.Fatalf("Failed to create test .env file: %v", err)
		}

		if err := loadEnvFile(); err != nil {
			t.Fatalf("loadEnvFile() error = %v, want nil", err)
		}

		if os.Getenv("TW_TEST_OVERRIDE") != "existing-value" {
			t.Errorf("TW_TEST_OVERRIDE = %s, want existing-value (should not override)", os.Getenv("TW_TEST_OVERRIDE"))
		}
	})
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Catalog:  CatalogConfig{BaseURL: "https://redash.example.com"},
			Cache:    CacheConfig{Type: "memory"},
			Matching: MatchingConfig{Workers: 4},
			Log:      LogConfig{Level: "info", Format: "text"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"remote catalog", func(*Config) {}, false},
		{"file catalog", func(c *Config) { c.Catalog = CatalogConfig{File: "catalog.csv"} }, false},
		{"no catalog", func(c *Config) { c.Catalog = CatalogConfig{} }, true},
		{"invalid cache type", func(c *Config) { c.Cache.Type = "redis" }, true},
		{"zero workers", func(c *Config) { c.Matching.Workers = 0 }, true},
		{"invalid log format", func(c *Config) { c.Log.Format = "xml" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := validate(cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
