package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// GetEnv returns the trimmed environment variable value or a default.
func GetEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

// GetIntEnv returns an integer environment variable or a default.
func GetIntEnv(key string, defaultValue int) int {
	return parseEnv(key, defaultValue, strconv.Atoi)
}

// GetBoolEnv returns a boolean environment variable or a default.
func GetBoolEnv(key string, defaultValue bool) bool {
	return parseEnv(key, defaultValue, strconv.ParseBool)
}

// GetDurationEnv returns a duration environment variable or a default.
// A bare integer is read as seconds.
func GetDurationEnv(key string, defaultValue time.Duration) time.Duration {
	return parseEnv(key, defaultValue, func(s string) (time.Duration, error) {
		if n, err := strconv.Atoi(s); err == nil {
			return time.Duration(n) * time.Second, nil
		}
		return time.ParseDuration(s)
	})
}

// GetSecret reads a secret from the file named by KEY_FILE, falling back to
// the value of KEY itself.
func GetSecret(key string) string {
	if v := GetSecretFile(GetEnv(key+"_FILE", "")); v != "" {
		return v
	}
	return GetEnv(key, "")
}

// GetSecretFile reads a secret from a file path, as mounted by container
// secret volumes. Missing or unreadable files read as "".
func GetSecretFile(path string) string {
	if path == "" {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		slog.Warn("Secret file unreadable", "path", path, "error", err)
		return ""
	}
	return strings.TrimSpace(string(data))
}

// parseEnv keeps the default when the variable is unset or does not parse.
func parseEnv[T any](key string, defaultValue T, parse func(string) (T, error)) T {
	value := GetEnv(key, "")
	if value == "" {
		return defaultValue
	}
	v, err := parse(value)
	if err != nil {
		slog.Warn("Ignoring malformed environment variable", "key", key, "value", value, "error", err)
		return defaultValue
	}
	return v
}
