// Package secrets looks up credentials by parameter path.
package secrets

import (
	"context"
	"fmt"
	"strings"
	"time"
	"workload-orchestrator/internal/config"
)

// Default parameter paths of the workload API key pair.
const (
	DefaultAccessKeyPath = "/orchestrator/stax/access/key"
	DefaultSecretKeyPath = "/orchestrator/stax/access/key/secret"
)

const defaultCacheTTL = 6 * time.Hour

// Backends
const (
	BackendRedis = "redis"
	BackendFile  = "file"
)

// Provider reads a secret by path.
type Provider interface {
	GetSecret(ctx context.Context, path string) (string, error)
}

// Store is a Provider that can also write secrets.
type Store interface {
	Provider
	PutSecret(ctx context.Context, path, value string) error
	Ready(ctx context.Context) error
	Close() error
}

// Config holds secret lookup settings.
type Config struct {
	Backend       string        // redis or file
	RedisURL      string        // redis://host:port/db
	Dir           string        // Root directory for the file backend
	CacheTTL      time.Duration // How long a looked-up secret is reused
	AccessKeyPath string
	SecretKeyPath string
}

// LoadConfigFromEnv loads secret settings from environment variables.
func LoadConfigFromEnv() Config {
	cfg := Config{
		Backend:       config.GetEnv("SECRETS_BACKEND", BackendFile),
		RedisURL:      config.GetEnv("SECRETS_REDIS_URL", ""),
		Dir:           config.GetEnv("SECRETS_DIR", "/run/secrets"),
		CacheTTL:      config.GetDurationEnv("SECRETS_CACHE_TTL", defaultCacheTTL),
		AccessKeyPath: config.GetEnv("ACCESS_KEY_PATH", DefaultAccessKeyPath),
		SecretKeyPath: config.GetEnv("SECRET_KEY_PATH", DefaultSecretKeyPath),
	}
	return cfg.withDefaults()
}

func (c Config) withDefaults() Config {
	c.Backend = strings.ToLower(strings.TrimSpace(c.Backend))
	if c.Backend == "" {
		c.Backend = BackendFile
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = defaultCacheTTL
	}
	if c.AccessKeyPath == "" {
		c.AccessKeyPath = DefaultAccessKeyPath
	}
	if c.SecretKeyPath == "" {
		c.SecretKeyPath = DefaultSecretKeyPath
	}
	return c
}

// Open connects to the configured backend.
func Open(ctx context.Context, cfg Config) (Store, error) {
	cfg = cfg.withDefaults()
	switch cfg.Backend {
	case BackendRedis:
		return NewRedisStoreFromURL(ctx, cfg.RedisURL)
	case BackendFile:
		return NewFileStore(cfg.Dir)
	default:
		return nil, fmt.Errorf("unknown secrets backend %q", cfg.Backend)
	}
}

// KeyPair is an access key and its secret.
type KeyPair struct {
	AccessKey string
	SecretKey string
}

// LoadKeyPair reads the access key pair at the configured paths.
func LoadKeyPair(ctx context.Context, p Provider, cfg Config) (KeyPair, error) {
	cfg = cfg.withDefaults()
	access, err := p.GetSecret(ctx, cfg.AccessKeyPath)
	if err != nil {
		return KeyPair{}, fmt.Errorf("access key: %w", err)
	}
	secret, err := p.GetSecret(ctx, cfg.SecretKeyPath)
	if err != nil {
		return KeyPair{}, fmt.Errorf("secret key: %w", err)
	}
	return KeyPair{AccessKey: access, SecretKey: secret}, nil
}
