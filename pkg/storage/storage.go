package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrObjectNotFound is returned when a key does not exist in the backend.
var ErrObjectNotFound = errors.New("object not found")

// ObjectStore is the receipt storage contract shared by the filesystem and S3 backends.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// Sweeper is implemented by backends that expire old objects themselves.
type Sweeper interface {
	CleanupOlderThan(ctx context.Context, ttl time.Duration) ([]string, error)
}
