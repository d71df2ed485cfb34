// Package config loads learnia-api settings from the environment, with an
// optional .env file for local development.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration derived from environment variables.
type Config struct {
	Port string

	// Redis (primary cache backend)
	RedisEnabled  bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Cache
	CacheMaxSize         int           // fallback cache capacity
	CacheDefaultTTL      time.Duration // TTL when a caller passes none
	CacheReprobeInterval time.Duration // 0 keeps the startup backend choice
	CacheWarmupTopics    []string      // tutor topics cached at startup
	AdminToken           string        // bearer token for admin routes; empty disables them

	// Rate limiting
	RateLimitBlock       time.Duration // lockout after exceeding a policy
	RateLimitGlobalRPS   float64       // 0 disables the global bucket
	RateLimitGlobalBurst int
	RateLimitTrustXFF    bool
	RateLimitStats       bool // record decisions in Redis

	// Logging
	LogLevel  string
	LogPretty bool
}

// Load reads an optional .env file (existing variables win) and then the
// environment. The result is validated.
func Load(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load env file: %w", err)
	}

	cfg := &Config{
		Port:                 getEnv("PORT", "8080"),
		RedisEnabled:         getEnvBool("REDIS_ENABLED", true),
		RedisAddr:            getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:        os.Getenv("REDIS_PASSWORD"),
		RedisDB:              getEnvInt("REDIS_DB", 0),
		CacheMaxSize:         getEnvInt("CACHE_MAX_SIZE", 10000),
		CacheDefaultTTL:      getEnvSeconds("CACHE_DEFAULT_TTL", time.Hour),
		CacheReprobeInterval: getEnvSeconds("CACHE_REPROBE_INTERVAL", 0),
		CacheWarmupTopics:    getEnvList("CACHE_WARMUP_TOPICS"),
		AdminToken:           os.Getenv("ADMIN_TOKEN"),
		RateLimitBlock:       getEnvSeconds("RATE_LIMIT_BLOCK_SECONDS", time.Hour),
		RateLimitGlobalRPS:   getEnvFloat("RATE_LIMIT_GLOBAL_RPS", 0),
		RateLimitGlobalBurst: getEnvInt("RATE_LIMIT_GLOBAL_BURST", 200),
		RateLimitTrustXFF:    getEnvBool("RATE_LIMIT_TRUST_XFF", false),
		RateLimitStats:       getEnvBool("RATE_LIMIT_STATS", false),
		LogLevel:             strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogPretty:            getEnvBool("LOG_PRETTY", false),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	switch {
	case c.Port == "":
		return errors.New("PORT must not be empty")
	case c.CacheMaxSize <= 0:
		return fmt.Errorf("CACHE_MAX_SIZE must be positive, got %d", c.CacheMaxSize)
	case c.CacheDefaultTTL <= 0:
		return fmt.Errorf("CACHE_DEFAULT_TTL must be positive, got %s", c.CacheDefaultTTL)
	case c.CacheReprobeInterval < 0:
		return fmt.Errorf("CACHE_REPROBE_INTERVAL must not be negative, got %s", c.CacheReprobeInterval)
	case c.RateLimitBlock <= 0:
		return fmt.Errorf("RATE_LIMIT_BLOCK_SECONDS must be positive, got %s", c.RateLimitBlock)
	case c.RateLimitGlobalRPS < 0:
		return fmt.Errorf("RATE_LIMIT_GLOBAL_RPS must not be negative, got %v", c.RateLimitGlobalRPS)
	case c.RateLimitGlobalRPS > 0 && c.RateLimitGlobalBurst <= 0:
		return fmt.Errorf("RATE_LIMIT_GLOBAL_BURST must be positive, got %d", c.RateLimitGlobalBurst)
	case c.RedisEnabled && c.RedisAddr == "":
		return errors.New("REDIS_ADDR must be set when REDIS_ENABLED is true")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes":
		return true
	case "0", "false", "no":
		return false
	default:
		return defaultValue
	}
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvList splits a comma-separated variable, dropping empty items.
func getEnvList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// getEnvSeconds reads an integer number of seconds.
func getEnvSeconds(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return time.Duration(n) * time.Second
		}
	}
	return defaultValue
}
