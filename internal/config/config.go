package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the application.
type Config struct {
	Port                   string
	DatabaseURL            string
	RedisURL               string
	NumRetryWorkers        int
	MaxRetries             int
	DLQBatchSize           int
	DLQSweepInterval       time.Duration
	RetentionSweepInterval time.Duration
	RetentionDays          int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	port := getEnv("PORT", "8080")
	dbURL := getEnv("DATABASE_URL", "")
	redisURL := getEnv("REDIS_URL", "")

	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if redisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}

	return &Config{
		Port:                   port,
		DatabaseURL:            dbURL,
		RedisURL:               redisURL,
		NumRetryWorkers:        getEnvInt("NUM_RETRY_WORKERS", 4),
		MaxRetries:             getEnvInt("MAX_RETRIES", 5),
		DLQBatchSize:           getEnvInt("DLQ_BATCH_SIZE", 10),
		DLQSweepInterval:       getEnvDuration("DLQ_SWEEP_INTERVAL", 30*time.Second),
		RetentionSweepInterval: getEnvDuration("RETENTION_SWEEP_INTERVAL", time.Hour),
		RetentionDays:          getEnvInt("RETENTION_DAYS", 30),
	}, nil
}

// RetentionWindow converts the configured retention days into a duration.
func (c *Config) RetentionWindow() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		d, err := time.ParseDuration(val)
		if err == nil {
			return d
		}
	}
	return fallback
}
