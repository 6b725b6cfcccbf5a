// Package objstore uploads catalogue artifacts to S3-compatible object storage.
package objstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"path/filepath"
	"workload-orchestrator/internal/config"
	"workload-orchestrator/internal/workload"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Config holds object store connection settings.
type Config struct {
	Endpoint  string // host:port, no scheme
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
}

// LoadConfigFromEnv loads object store config from environment variables.
// OBJSTORE_SECRET_KEY_FILE takes precedence over OBJSTORE_SECRET_KEY.
func LoadConfigFromEnv() Config {
	return Config{
		Endpoint:  config.GetEnv("OBJSTORE_ENDPOINT", ""),
		AccessKey: config.GetEnv("OBJSTORE_ACCESS_KEY", ""),
		SecretKey: config.GetSecret("OBJSTORE_SECRET_KEY"),
		Region:    config.GetEnv("OBJSTORE_REGION", ""),
		UseSSL:    config.GetBoolEnv("OBJSTORE_USE_SSL", true),
	}
}

// Enabled reports whether an endpoint is configured.
func (c Config) Enabled() bool {
	return c.Endpoint != ""
}

// MinioStore stores objects through the MinIO S3 client.
type MinioStore struct {
	mc     *minio.Client
	logger *slog.Logger
}

// NewMinioStore creates a store for cfg.
func NewMinioStore(cfg Config) (*MinioStore, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("objstore endpoint is required")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, errors.New("objstore access key and secret key are required")
	}

	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return &MinioStore{mc: mc, logger: slog.With("component", "objstore")}, nil
}

// Put uploads the file at localPath to bucket/key and returns its s3:// locator.
func (s *MinioStore) Put(ctx context.Context, bucket, localPath, key string) (string, error) {
	contentType := mime.TypeByExtension(filepath.Ext(key))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	info, err := s.mc.FPutObject(ctx, bucket, key, localPath, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("upload %s to %s: %w", localPath, bucket, err)
	}

	s.logger.Info("Object uploaded", "bucket", bucket, "key", key, "size", info.Size, "etag", info.ETag)
	return Locator(bucket, key), nil
}

// Locator is the s3:// URL of an object.
func Locator(bucket, key string) string {
	return fmt.Sprintf("s3://%s/%s", bucket, key)
}

var _ workload.ObjectStore = (*MinioStore)(nil)
