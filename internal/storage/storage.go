package storage

import (
	"context"
	"io"
	"time"
)

// Storage is the edge content cache for proxied objects. Get returns the
// body and content type for a fresh entry; expired entries are evicted and
// reported as a miss.
type Storage interface {
	Get(ctx context.Context, key string) ([]byte, string, error)
	Put(ctx context.Context, key string, content []byte, contentType string, ttl time.Duration) error
	PutStream(ctx context.Context, key string, content io.Reader, contentType string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	UpdateLastAccess(ctx context.Context, key string) error
}
