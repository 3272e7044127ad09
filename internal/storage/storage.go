// Package storage uploads session images to an object storage bucket.
package storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/wellnest/apiserver/config"
)

// ObjectStorage defines common object operations across backends.
type ObjectStorage interface {
	EnsureBucket(ctx context.Context) error
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Bucket() string

	// ObjectURL returns the backend's default public URL for key.
	ObjectURL(key string) string
	Close() error
}

// Storage wraps an ObjectStorage backend with a stable API.
type Storage struct {
	backend   ObjectStorage
	publicURL string
}

// NewStorage constructs a Storage wrapper for the provided backend. When
// publicURL is set, object URLs are built as publicURL/bucket/key instead of
// the backend default.
func NewStorage(backend ObjectStorage, publicURL string) *Storage {
	return &Storage{
		backend:   backend,
		publicURL: strings.TrimRight(strings.TrimSpace(publicURL), "/"),
	}
}

// Open builds the backend selected by cfg.Backend and makes sure its bucket
// exists. It returns nil and no error when no backend is configured.
func Open(ctx context.Context, cfg config.StorageConfig) (*Storage, error) {
	var (
		backend ObjectStorage
		err     error
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "":
		return nil, nil
	case config.StorageBackendMinio:
		backend, err = NewMinioClient(cfg.Minio)
	case config.StorageBackendGCS:
		backend, err = NewGCSClient(ctx, cfg.GCS)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	if err := backend.EnsureBucket(ctx); err != nil {
		_ = backend.Close()
		return nil, fmt.Errorf("ensure bucket %s: %w", backend.Bucket(), err)
	}
	return NewStorage(backend, cfg.PublicURL), nil
}

// EnsureBucket ensures the configured bucket exists.
func (s *Storage) EnsureBucket(ctx context.Context) error {
	return s.backend.EnsureBucket(ctx)
}

// Put uploads an object to the configured bucket.
func (s *Storage) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	return s.backend.Put(ctx, key, r, size, contentType)
}

// Bucket returns the configured bucket name.
func (s *Storage) Bucket() string {
	return s.backend.Bucket()
}

// URL returns the address clients use to fetch key.
func (s *Storage) URL(key string) string {
	if s.publicURL != "" {
		return s.publicURL + "/" + s.backend.Bucket() + "/" + key
	}
	return s.backend.ObjectURL(key)
}

// Close releases the backend client.
func (s *Storage) Close() error {
	return s.backend.Close()
}
