// Package config reads the broker's environment-supplied settings.
package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pion/logging"
)

// Config holds everything the broker reads from the environment.
type Config struct {
	// Port the HTTP server listens on.
	Port string

	// JWTSecret signs room tokens. Empty means a random per-process secret:
	// tokens will not survive a restart.
	JWTSecret string

	// AllowedOrigins is the browser origin allow-list for realtime
	// connections. Empty admits every origin.
	AllowedOrigins []string

	// LogLevel is one of error, warn, info, debug, trace.
	LogLevel string

	// RedisURL, when set, switches room records and throttle windows to a
	// shared Redis store.
	RedisURL string

	ThrottleMaxAttempts int
	ThrottleResetPeriod time.Duration

	// VaultWorkers bounds concurrent bcrypt operations.
	VaultWorkers int
}

// Load reads the environment, preferring .env.local over .env when present.
func Load() Config {
	if err := godotenv.Load(".env.local"); err != nil {
		if err := godotenv.Load(); err != nil {
			log.Println(".env not found, using environment variables")
		}
	}

	return Config{
		Port:                getEnv("PORT", "5000"),
		JWTSecret:           os.Getenv("JWT_SECRET"),
		AllowedOrigins:      splitList(os.Getenv("ALLOWED_ORIGINS")),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		RedisURL:            os.Getenv("REDIS_URL"),
		ThrottleMaxAttempts: getEnvInt("THROTTLE_MAX_ATTEMPTS", 5),
		ThrottleResetPeriod: time.Duration(getEnvInt("THROTTLE_RESET_SECONDS", 60)) * time.Second,
		VaultWorkers:        getEnvInt("VAULT_WORKERS", 4),
	}
}

// LoggingLevel maps the configured level name onto pion/logging's scale.
func (c Config) LoggingLevel() logging.LogLevel {
	switch strings.ToLower(c.LogLevel) {
	case "error":
		return logging.LogLevelError
	case "warn", "warning":
		return logging.LogLevelWarn
	case "debug":
		return logging.LogLevelDebug
	case "trace":
		return logging.LogLevelTrace
	default:
		return logging.LogLevelInfo
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("invalid %s=%q, using %d", key, raw, fallback)
		return fallback
	}
	return value
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
