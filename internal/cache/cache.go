// Package cache provides a typed in-memory TTL cache for configuration
// lookups (collections, relationship types) that never change at runtime.
package cache

import (
	"log/slog"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

const (
	DefaultExpiration      = 10 * time.Minute
	DefaultCleanupInterval = 30 * time.Minute
)

// Cache is a typed wrapper over go-cache.
type Cache[V any] struct {
	useCase string
	cache   *gocache.Cache
}

// New creates a cache. useCase labels log lines.
func New[V any](useCase string, defaultExpiration, cleanupInterval time.Duration) *Cache[V] {
	return &Cache[V]{
		useCase: useCase,
		cache:   gocache.New(defaultExpiration, cleanupInterval),
	}
}

// Get returns the cached value for key.
func (c *Cache[V]) Get(key string) (V, bool) {
	var zero V

	value, found := c.cache.Get(key)
	if !found {
		return zero, false
	}

	v, ok := value.(V)
	if !ok {
		slog.Error("wrong type assertion when getting cached value", "use_case", c.useCase, "key", key)
		return zero, false
	}
	return v, true
}

// Set stores value under key with the default expiration.
func (c *Cache[V]) Set(key string, value V) {
	c.cache.Set(key, value, gocache.DefaultExpiration)
}

// GetOrLoad returns the cached value or calls load and caches its result.
// Errors are not cached.
func (c *Cache[V]) GetOrLoad(key string, load func() (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, err := load()
	if err != nil {
		return v, err
	}
	c.Set(key, v)
	return v, nil
}

// Delete removes keys.
func (c *Cache[V]) Delete(keys ...string) {
	for _, key := range keys {
		c.cache.Delete(key)
	}
}

// Flush removes everything.
func (c *Cache[V]) Flush() {
	c.cache.Flush()
}
