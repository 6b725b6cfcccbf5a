// Package config provides configuration loading from environment variables.
package config

import (
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ServiceConfig holds the HTTP surface settings of orchestrator-service.
type ServiceConfig struct {
	Port              string
	MetricsPort       string
	APIKey            string
	ManifestRoot      string // Directory catalogue manifest_path values resolve against
	ShutdownDrainWait time.Duration // Time to wait for load balancer to drain (0 to skip)
	LogLevel          slog.Level
}

// LoadServiceConfig loads service configuration from environment variables.
func LoadServiceConfig() *ServiceConfig {
	return &ServiceConfig{
		Port:              GetEnv("PORT", "8080"),
		MetricsPort:       GetEnv("METRICS_PORT", "9090"),
		APIKey:            GetSecret("API_KEY"),
		ManifestRoot:      GetEnv("CATALOGUE_MANIFEST_DIR", ""),
		ShutdownDrainWait: GetDurationEnv("SHUTDOWN_DRAIN_WAIT", 5*time.Second),
		LogLevel:          ParseLogLevel(GetEnv("LOG_LEVEL", "info")),
	}
}

// LoadDotEnv loads the first .env file found in paths into the process environment.
// Variables already set in the environment win. Missing files are not an error.
func LoadDotEnv(paths ...string) string {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err == nil {
			return p
		}
	}
	return ""
}

// ParseLogLevel converts a level name to a slog.Level, defaulting to info.
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "critical":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
