package cache

import (
	"context"
	"time"
)

// Backend is a key-value store with per-entry TTL. An expired entry is
// reported as absent. Set overwrites by key.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Close() error
}

// Purger is implemented by backends that keep expired entries until they
// are removed explicitly.
type Purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}
