package cache

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrClosed is returned by operations on a closed cache.
	ErrClosed = errors.New("cache is closed")

	// ErrCapacity is returned when a value does not fit the byte budget.
	ErrCapacity = errors.New("cache capacity exceeded")
)

// Cache is a best-effort key/value store. A miss is reported by ok=false and
// is never an error.
type Cache interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	// Set stores value under key. A ttl of zero uses the cache default.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}
