package workloadapi

import (
	"time"
	"workload-orchestrator/internal/config"
)

const (
	defaultTimeout          = 30 * time.Second
	defaultTokenTTL         = 5 * time.Minute
	defaultBreakerThreshold = 5
	defaultBreakerCooldown  = 30 * time.Second
)

// Config holds workload API client settings.
type Config struct {
	BaseURL          string        // Root URL of the workload API
	Timeout          time.Duration // Per-request timeout
	TokenTTL         time.Duration // Lifetime of each signed bearer token
	BreakerThreshold int           // Consecutive failures before failing fast
	BreakerCooldown  time.Duration // Time before a trial request is let through
}

// LoadConfigFromEnv loads client config from environment variables.
func LoadConfigFromEnv() Config {
	cfg := Config{
		BaseURL:          config.GetEnv("WORKLOAD_API_URL", ""),
		Timeout:          config.GetDurationEnv("WORKLOAD_API_TIMEOUT", defaultTimeout),
		TokenTTL:         config.GetDurationEnv("WORKLOAD_API_TOKEN_TTL", defaultTokenTTL),
		BreakerThreshold: config.GetIntEnv("WORKLOAD_API_BREAKER_THRESHOLD", defaultBreakerThreshold),
		BreakerCooldown:  config.GetDurationEnv("WORKLOAD_API_BREAKER_COOLDOWN", defaultBreakerCooldown),
	}
	return cfg.withDefaults()
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.TokenTTL <= 0 {
		c.TokenTTL = defaultTokenTTL
	}
	if c.BreakerThreshold <= 0 {
		c.BreakerThreshold = defaultBreakerThreshold
	}
	if c.BreakerCooldown <= 0 {
		c.BreakerCooldown = defaultBreakerCooldown
	}
	return c
}
