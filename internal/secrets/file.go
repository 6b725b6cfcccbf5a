package secrets

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"workload-orchestrator/internal/apperrors"
)

// FileStore keeps one file per secret in a directory, like a mounted
// secret volume.
type FileStore struct {
	root string
}

// NewFileStore creates a file-backed store rooted at dir.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("secrets dir is required")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("invalid secrets dir: %w", err)
	}
	return &FileStore{root: abs}, nil
}

// GetSecret reads and trims the file for path.
func (s *FileStore) GetSecret(_ context.Context, path string) (string, error) {
	file, err := s.file(path)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(file)
	if errors.Is(err, fs.ErrNotExist) {
		return "", apperrors.NotFound("secret", path)
	}
	if err != nil {
		return "", fmt.Errorf("get secret %s: %w", path, err)
	}
	return strings.TrimSpace(string(data)), nil
}

// PutSecret writes value to the file for path.
func (s *FileStore) PutSecret(_ context.Context, path, value string) error {
	file, err := s.file(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.root, 0o700); err != nil {
		return fmt.Errorf("put secret %s: %w", path, err)
	}
	if err := os.WriteFile(file, []byte(value), 0o600); err != nil {
		return fmt.Errorf("put secret %s: %w", path, err)
	}
	return nil
}

// Ready checks the secrets directory exists.
func (s *FileStore) Ready(context.Context) error {
	info, err := os.Stat(s.root)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", s.root)
	}
	return nil
}

// Close is a no-op.
func (s *FileStore) Close() error { return nil }

// file maps a path to a flat file name: "/a/b/c" is stored as "a.b.c", so a
// path may be both a secret and the parent of another.
func (s *FileStore) file(path string) (string, error) {
	segments := strings.FieldsFunc(path, func(r rune) bool { return r == '/' })
	if len(segments) == 0 {
		return "", apperrors.Validation("path", "secret path is required")
	}
	for _, seg := range segments {
		if seg == "." || seg == ".." || strings.ContainsRune(seg, filepath.Separator) {
			return "", apperrors.Validation("path", fmt.Sprintf("invalid secret path segment %q", seg))
		}
	}
	return filepath.Join(s.root, strings.Join(segments, ".")), nil
}

var _ Store = (*FileStore)(nil)
