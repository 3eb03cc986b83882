// Package config loads command defaults from the environment.
package config

import (
	"os"
	"strconv"

	"github.com/sirupsen/logrus"
)

// Config holds the command configuration.
type Config struct {
	// Output
	Prefix string

	// Compression
	Workers   int
	Level     int
	BlockSize int

	// Logging
	LogLevel logrus.Level
}

// Load loads configuration from environment variables with defaults.
func Load() *Config {
	return &Config{
		Prefix:    getEnv("APNGDIS_PREFIX", "apngframe"),
		Workers:   getIntEnv("APNGDIS_WORKERS", 0),
		Level:     getIntEnv("APNGDIS_LEVEL", -1),
		BlockSize: getIntEnv("APNGDIS_BLOCK_SIZE", 128<<10),
		LogLevel:  getLevelEnv("APNGDIS_LOG_LEVEL", logrus.InfoLevel),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getLevelEnv(key string, defaultValue logrus.Level) logrus.Level {
	if value := os.Getenv(key); value != "" {
		if level, err := logrus.ParseLevel(value); err == nil {
			return level
		}
	}
	return defaultValue
}
