// Package cache stores derived artifacts, such as impact indices, so repeated
// runs on the same feeder skip rebuilding them.
//
// A [Cache] is a byte store with expirations. [FileCache] serves the CLI,
// [RedisCache] lets batch workers on several hosts share results, and
// [NullCache] disables caching. Keys come from a [Keyer] so every backend
// agrees on them.
package cache

import (
	"context"
	"time"
)

// Cache is a key/value byte store.
type Cache interface {
	// Get returns the value for key and whether it was present. A missing
	// or expired entry is a miss, not an error.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores data under key. A ttl of zero never expires.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	Close() error
}

// Default lifetimes.
const (
	// TTLIndex keeps impact indices for a week. An index is keyed by the
	// topology hash, so a stale entry can only be an unused one.
	TTLIndex = 7 * 24 * time.Hour
)
