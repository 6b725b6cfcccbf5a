package secrets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"workload-orchestrator/internal/apperrors"

	"github.com/redis/go-redis/v9"
)

// KeyPrefix namespaces secret keys in Redis.
const KeyPrefix = "secrets:"

// RedisStore keeps secrets as plain Redis string keys.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStoreFromURL connects to Redis and verifies the connection.
func NewRedisStoreFromURL(ctx context.Context, redisURL string) (*RedisStore, error) {
	if redisURL == "" {
		return nil, errors.New("secrets redis url is required")
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	slog.Info("Secrets store connected", "component", "secrets", "backend", BackendRedis, "addr", opts.Addr)
	return &RedisStore{client: client}, nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// GetSecret returns the secret at path.
func (s *RedisStore) GetSecret(ctx context.Context, path string) (string, error) {
	value, err := s.client.Get(ctx, KeyPrefix+path).Result()
	if errors.Is(err, redis.Nil) {
		return "", apperrors.NotFound("secret", path)
	}
	if err != nil {
		return "", fmt.Errorf("get secret %s: %w", path, err)
	}
	return value, nil
}

// PutSecret stores value at path, replacing any previous value.
func (s *RedisStore) PutSecret(ctx context.Context, path, value string) error {
	if err := s.client.Set(ctx, KeyPrefix+path, value, 0).Err(); err != nil {
		return fmt.Errorf("put secret %s: %w", path, err)
	}
	return nil
}

// Ready pings Redis.
func (s *RedisStore) Ready(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

var _ Store = (*RedisStore)(nil)
