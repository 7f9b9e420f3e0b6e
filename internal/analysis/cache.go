package analysis

import (
	"sync"
	"time"
)

// TTLCache is a read-through cache with time-based invalidation only.
// The clock is injectable so tests control expiry deterministically.
type TTLCache[V any] struct {
	mu   sync.RWMutex
	data map[string]cacheEntry[V]
	ttl  time.Duration
	now  func() time.Time
}

type cacheEntry[V any] struct {
	value     V
	expiresAt time.Time
}

// NewTTLCache creates a cache with the given TTL and clock. A nil clock
// defaults to time.Now.
func NewTTLCache[V any](ttl time.Duration, now func() time.Time) *TTLCache[V] {
	if now == nil {
		now = time.Now
	}
	return &TTLCache[V]{
		data: make(map[string]cacheEntry[V]),
		ttl:  ttl,
		now:  now,
	}
}

// Get returns the cached value if present and unexpired.
func (c *TTLCache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.data[key]
	if !ok || c.now().After(entry.expiresAt) {
		var zero V
		return zero, false
	}
	return entry.value, true
}

// Set stores a value with the cache TTL.
func (c *TTLCache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = cacheEntry[V]{value: value, expiresAt: c.now().Add(c.ttl)}
}

// GetOrCompute returns the cached value or computes, stores and returns a
// fresh one. Errors are not cached.
func (c *TTLCache[V]) GetOrCompute(key string, compute func() (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, err := compute()
	if err != nil {
		var zero V
		return zero, err
	}
	c.Set(key, v)
	return v, nil
}
