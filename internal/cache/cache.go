// Package cache implements the read-through cache used by list-fetching
// operations: a fast in-memory tier over a durable mirror, with a fixed
// freshness window per cache instance.
package cache

import (
	"context"
)

// Cache defines the interface for cache implementations.
// The generic type T represents the value type being cached.
type Cache[T any] interface {
	// Get retrieves a value from the cache.
	// Returns the value, whether it was found, and any error.
	Get(ctx context.Context, key string) (T, bool, error)

	// Set stores a value in the cache.
	Set(ctx context.Context, key string, value T) error

	// Invalidate removes a value from the cache.
	Invalidate(ctx context.Context, key string) error

	// Close releases any resources held by the cache.
	Close() error
}
