// Package config provides configuration for lang-lens.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds the client configuration.
type Config struct {
	// Execution Service
	ServerURL string

	// Mock server settings
	MockPort        int
	MockDatabaseURL string

	// Stream reconnection
	ReconnectAttempts int
	ReconnectBackoff  time.Duration

	// Cache
	CacheTTL time.Duration
}

// Load loads configuration from environment variables.
func Load() *Config {
	return &Config{
		ServerURL:         getEnv("LENS_SERVER_URL", "http://localhost:2024"),
		MockPort:          getEnvInt("LENS_MOCK_PORT", 2024),
		MockDatabaseURL:   getEnv("LENS_MOCK_DATABASE_URL", "file:lens-mock.db?cache=shared&mode=rwc"),
		ReconnectAttempts: getEnvInt("LENS_RECONNECT_ATTEMPTS", 3),
		ReconnectBackoff:  time.Duration(getEnvInt("LENS_RECONNECT_BACKOFF_MS", 500)) * time.Millisecond,
		CacheTTL:          time.Duration(getEnvInt("LENS_CACHE_TTL_MS", 30000)) * time.Millisecond,
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}
