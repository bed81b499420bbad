package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for one worker process. The supervisor
// starting N workers gives each a distinct PORT; everything else is
// shared so the workers stay symmetric.
type Config struct {
	Port string
	Env  string

	// Message log. DATABASE_URL selects PostgreSQL; otherwise SQLite at
	// SQLitePath is used.
	SQLitePath  string
	DatabaseURL string

	// Broadcast channel. Empty means in-process fanout (single worker).
	RedisURL string

	// Reconnection recovery.
	RecoveryWindow time.Duration // how long a disconnected session's buffer is retained
	RecoveryBuffer int           // per-session buffer and delivery queue capacity

	// Submit rate limiting (requires Redis). Zero disables.
	RateLimit  int
	RateWindow time.Duration
}

// Load reads configuration from environment variables.
// In development, it loads from .env file if present.
func Load() *Config {
	// Load .env file if it exists (for development)
	_ = godotenv.Load()

	return &Config{
		Port:           getEnv("PORT", "8080"),
		Env:            getEnv("ENV", "development"),
		SQLitePath:     getEnv("SQLITE_PATH", "./data/chat.db"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		RedisURL:       os.Getenv("REDIS_URL"),
		RecoveryWindow: getEnvDuration("RECOVERY_WINDOW", 2*time.Minute),
		RecoveryBuffer: getEnvInt("RECOVERY_BUFFER", 256),
		RateLimit:      getEnvInt("RATE_LIMIT", 30),
		RateWindow:     getEnvDuration("RATE_WINDOW", time.Minute),
	}
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
