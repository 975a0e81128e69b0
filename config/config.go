// Package config loads runtime settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

var ErrInvalidPolicy = errors.New("invalid uncovered facility policy")

// Config holds application configuration
type Config struct {
	FacilitiesPath  string
	CovenantsPath   string
	LoansPath       string
	BanksPath       string // optional, only counted
	OutputDir       string
	UncoveredPolicy string // "exclude" or "allow"

	LogLevel  string
	LogPretty bool

	Port            int
	RedisAddr       string // empty selects the in-memory cache
	CacheTTL        time.Duration
	RateLimit       int
	RateLimitWindow time.Duration
}

// Load reads configuration from environment variables, after loading a
// .env file if one exists.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		FacilitiesPath:  getEnv("ALLOCATOR_FACILITIES", "./assets/facilities.csv"),
		CovenantsPath:   getEnv("ALLOCATOR_COVENANTS", "./assets/covenants.csv"),
		LoansPath:       getEnv("ALLOCATOR_LOANS", "./assets/loans.csv"),
		BanksPath:       getEnv("ALLOCATOR_BANKS", ""),
		OutputDir:       getEnv("ALLOCATOR_OUTPUT_DIR", "."),
		UncoveredPolicy: getEnv("ALLOCATOR_UNCOVERED_POLICY", "exclude"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogPretty:       getEnvAsBool("LOG_PRETTY", true),
		Port:            getEnvAsInt("HTTP_PORT", 8080),
		RedisAddr:       getEnv("REDIS_ADDR", ""),
		CacheTTL:        getEnvAsDuration("CACHE_TTL", time.Hour),
		RateLimit:       getEnvAsInt("RATE_LIMIT", 5),
		RateLimitWindow: getEnvAsDuration("RATE_LIMIT_WINDOW", time.Minute),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that cannot be defaulted silently.
func (c *Config) Validate() error {
	switch c.UncoveredPolicy {
	case "exclude", "allow":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidPolicy, c.UncoveredPolicy)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid HTTP_PORT %d", c.Port)
	}
	if c.RateLimit <= 0 {
		return fmt.Errorf("RATE_LIMIT must be positive, got %d", c.RateLimit)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
