package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var configKeys = []string{
	"PORT", "REDIS_ENABLED", "REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB",
	"CACHE_MAX_SIZE", "CACHE_DEFAULT_TTL", "CACHE_REPROBE_INTERVAL", "CACHE_WARMUP_TOPICS",
	"ADMIN_TOKEN",
	"RATE_LIMIT_BLOCK_SECONDS", "RATE_LIMIT_GLOBAL_RPS", "RATE_LIMIT_GLOBAL_BURST",
	"RATE_LIMIT_TRUST_XFF", "RATE_LIMIT_STATS", "LOG_LEVEL", "LOG_PRETTY",
}

// clearEnv unsets every config variable for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range configKeys {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Port)
	}
	if !cfg.RedisEnabled || cfg.RedisAddr != "localhost:6379" {
		t.Errorf("Redis = %v %q", cfg.RedisEnabled, cfg.RedisAddr)
	}
	if cfg.CacheMaxSize != 10000 {
		t.Errorf("CacheMaxSize = %d, want 10000", cfg.CacheMaxSize)
	}
	if cfg.CacheDefaultTTL != time.Hour {
		t.Errorf("CacheDefaultTTL = %v, want 1h", cfg.CacheDefaultTTL)
	}
	if cfg.CacheReprobeInterval != 0 {
		t.Errorf("CacheReprobeInterval = %v, want 0", cfg.CacheReprobeInterval)
	}
	if cfg.RateLimitBlock != time.Hour {
		t.Errorf("RateLimitBlock = %v, want 1h", cfg.RateLimitBlock)
	}
	if cfg.RateLimitGlobalRPS != 0 || cfg.RateLimitTrustXFF || cfg.RateLimitStats {
		t.Errorf("rate limit defaults = %+v", cfg)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
	if cfg.AdminToken != "" {
		t.Errorf("AdminToken = %q, want empty", cfg.AdminToken)
	}
}

func TestLoadFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9000")
	t.Setenv("REDIS_ENABLED", "false")
	t.Setenv("CACHE_MAX_SIZE", "50")
	t.Setenv("CACHE_REPROBE_INTERVAL", "30")
	t.Setenv("RATE_LIMIT_BLOCK_SECONDS", "600")
	t.Setenv("RATE_LIMIT_GLOBAL_RPS", "2.5")
	t.Setenv("RATE_LIMIT_TRUST_XFF", "yes")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("CACHE_WARMUP_TOPICS", "fractions, ,algebra")
	t.Setenv("ADMIN_TOKEN", "s3cret")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Port != "9000" || cfg.RedisEnabled || cfg.CacheMaxSize != 50 {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.CacheReprobeInterval != 30*time.Second {
		t.Errorf("CacheReprobeInterval = %v, want 30s", cfg.CacheReprobeInterval)
	}
	if cfg.RateLimitBlock != 10*time.Minute {
		t.Errorf("RateLimitBlock = %v, want 10m", cfg.RateLimitBlock)
	}
	if cfg.RateLimitGlobalRPS != 2.5 || !cfg.RateLimitTrustXFF {
		t.Errorf("rate limit cfg = %+v", cfg)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
	if len(cfg.CacheWarmupTopics) != 2 || cfg.CacheWarmupTopics[1] != "algebra" {
		t.Errorf("CacheWarmupTopics = %q, want [fractions algebra]", cfg.CacheWarmupTopics)
	}
	if cfg.AdminToken != "s3cret" {
		t.Errorf("AdminToken = %q, want s3cret", cfg.AdminToken)
	}
}

func TestLoadEnvFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "7000")

	path := filepath.Join(t.TempDir(), ".env")
	content := "PORT=1111\nREDIS_ADDR=cache:6380\nCACHE_MAX_SIZE=42\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		os.Unsetenv("REDIS_ADDR")
		os.Unsetenv("CACHE_MAX_SIZE")
	})

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Port != "7000" {
		t.Errorf("Port = %q, want environment value 7000 to win", cfg.Port)
	}
	if cfg.RedisAddr != "cache:6380" || cfg.CacheMaxSize != 42 {
		t.Errorf("env file values not applied: %+v", cfg)
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Port:            "8080",
			RedisEnabled:    true,
			RedisAddr:       "localhost:6379",
			CacheMaxSize:    100,
			CacheDefaultTTL: time.Hour,
			RateLimitBlock:  time.Hour,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "empty port", mutate: func(c *Config) { c.Port = "" }, wantErr: "PORT"},
		{name: "zero max size", mutate: func(c *Config) { c.CacheMaxSize = 0 }, wantErr: "CACHE_MAX_SIZE"},
		{name: "zero ttl", mutate: func(c *Config) { c.CacheDefaultTTL = 0 }, wantErr: "CACHE_DEFAULT_TTL"},
		{name: "negative reprobe", mutate: func(c *Config) { c.CacheReprobeInterval = -time.Second }, wantErr: "CACHE_REPROBE_INTERVAL"},
		{name: "zero block", mutate: func(c *Config) { c.RateLimitBlock = 0 }, wantErr: "RATE_LIMIT_BLOCK_SECONDS"},
		{name: "global without burst", mutate: func(c *Config) { c.RateLimitGlobalRPS = 5 }, wantErr: "RATE_LIMIT_GLOBAL_BURST"},
		{name: "redis without addr", mutate: func(c *Config) { c.RedisAddr = "" }, wantErr: "REDIS_ADDR"},
		{name: "redis disabled without addr", mutate: func(c *Config) { c.RedisEnabled = false; c.RedisAddr = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %s", err, tt.wantErr)
			}
		})
	}
}
