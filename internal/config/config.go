// Package config loads process configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage backends
const (
	StorageMemory   = "memory"
	StorageRedis    = "redis"
	StoragePostgres = "postgres"
)

// Config holds all settings read from the environment
type Config struct {
	StorageType string
	RedisURL    string
	DatabaseURL string

	JWTSecret  string
	SessionTTL time.Duration

	// LocalDBPath is the sqlite file holding the CLI's local session state
	LocalDBPath string

	ServerPort   int
	ChangeBuffer int
	StatsRetries int
}

// Default returns the configuration used when nothing is set
func Default() Config {
	return Config{
		StorageType:  StorageMemory,
		JWTSecret:    "dev-secret-change-me",
		SessionTTL:   24 * time.Hour,
		LocalDBPath:  defaultLocalDBPath(),
		ServerPort:   8080,
		ChangeBuffer: 256,
		StatsRetries: 3,
	}
}

// Load reads the configuration. Variables from the given .env files (or
// ./.env when none are given) never override ones already set; a missing
// file is not an error.
func Load(envFiles ...string) (*Config, error) {
	_ = godotenv.Load(envFiles...)

	cfg := Default()
	if v := os.Getenv("STORAGE_TYPE"); v != "" {
		cfg.StorageType = strings.ToLower(strings.TrimSpace(v))
	}
	cfg.RedisURL = os.Getenv("REDIS_URL")
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.JWTSecret = v
	}
	if v := os.Getenv("LOCAL_DB_PATH"); v != "" {
		cfg.LocalDBPath = v
	}

	var err error
	if cfg.SessionTTL, err = durationEnv("SESSION_TTL", cfg.SessionTTL); err != nil {
		return nil, err
	}
	if cfg.ServerPort, err = intEnv("SERVER_PORT", cfg.ServerPort); err != nil {
		return nil, err
	}
	if cfg.ChangeBuffer, err = intEnv("CHANGE_BUFFER", cfg.ChangeBuffer); err != nil {
		return nil, err
	}
	if cfg.StatsRetries, err = intEnv("STATS_RETRIES", cfg.StatsRetries); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that the settings are usable together
func (c *Config) Validate() error {
	switch c.StorageType {
	case StorageMemory:
	case StorageRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when STORAGE_TYPE=%s", StorageRedis)
		}
	case StoragePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORAGE_TYPE=%s", StoragePostgres)
		}
	default:
		return fmt.Errorf("invalid STORAGE_TYPE %q: must be %s, %s or %s",
			c.StorageType, StorageMemory, StorageRedis, StoragePostgres)
	}

	if c.ServerPort <= 0 || c.ServerPort > 65535 {
		return fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", c.ServerPort)
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive, got %s", c.SessionTTL)
	}
	if c.ChangeBuffer <= 0 {
		return fmt.Errorf("CHANGE_BUFFER must be positive, got %d", c.ChangeBuffer)
	}
	if c.StatsRetries <= 0 {
		return fmt.Errorf("STATS_RETRIES must be positive, got %d", c.StatsRetries)
	}
	return nil
}

// Addr returns the HTTP listen address
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.ServerPort)
}

func intEnv(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s environment variable: %w", key, err)
	}
	return n, nil
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s environment variable: %w", key, err)
	}
	return d, nil
}

func defaultLocalDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".pingpong", "local.db")
	}
	return filepath.Join(home, ".pingpong", "local.db")
}
