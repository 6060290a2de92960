package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the application configuration.
type Config struct {
	Environment string
	DatabaseURL string
	APIAddr     string
	RedisAddr   string
	StandbyPath string

	MaxBodyBytes int64

	RateLimitCapacity int
	RateLimitRefill   float64

	ConnectMaxAttempts int
	ConnectBackoff     time.Duration
	LockTimeout        time.Duration
}

// Load reads configuration from environment variables. DATABASE_URL is the
// only required variable; everything else has a working default.
func Load() (*Config, error) {
	cfg := &Config{
		Environment: envOr("APP_ENV", "development"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		APIAddr:     envOr("API_ADDR", ":8080"),
		RedisAddr:   os.Getenv("REDIS_ADDR"),
		StandbyPath: os.Getenv("STANDBY_PATH"),
	}

	var err error
	if cfg.MaxBodyBytes, err = envInt64("API_MAX_BODY_BYTES", 1<<20); err != nil {
		return nil, err
	}
	capacity, err := envInt64("RATE_LIMIT_CAPACITY", 0)
	if err != nil {
		return nil, err
	}
	cfg.RateLimitCapacity = int(capacity)
	if cfg.RateLimitRefill, err = envFloat("RATE_LIMIT_REFILL", 0); err != nil {
		return nil, err
	}
	attempts, err := envInt64("DB_CONNECT_ATTEMPTS", 5)
	if err != nil {
		return nil, err
	}
	cfg.ConnectMaxAttempts = int(attempts)
	if cfg.ConnectBackoff, err = envDuration("DB_CONNECT_BACKOFF", 2*time.Second); err != nil {
		return nil, err
	}
	if cfg.LockTimeout, err = envDuration("DB_LOCK_TIMEOUT", 3*time.Second); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	var missing []string

	if c.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if len(missing) > 0 {
		return errors.New("missing required environment variables: " + strings.Join(missing, ", "))
	}

	if c.ConnectMaxAttempts < 1 {
		return errors.New("DB_CONNECT_ATTEMPTS must be at least 1")
	}
	if c.MaxBodyBytes <= 0 {
		return errors.New("API_MAX_BODY_BYTES must be positive")
	}
	if c.RateLimitCapacity > 0 && c.RedisAddr == "" {
		return errors.New("RATE_LIMIT_CAPACITY requires REDIS_ADDR")
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt64(key string, fallback int64) (int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return i, nil
}

func envFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return f, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
