package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned when a key is absent or expired.
var ErrMiss = errors.New("cache: miss")

// Cache is a small string cache port; adapters exist for Redis and for an
// in-process map used in development and tests.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	// GetMany fetches a batch in one round trip; absent keys are simply
	// missing from the result, not an error.
	GetMany(ctx context.Context, keys []string) (map[string]string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	Close() error
}
