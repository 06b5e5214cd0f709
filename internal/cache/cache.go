package cache

import (
	"crypto/sha256"
	"fmt"
	"sync"
	"time"
)

// Entry represents a cached value and when it was stored
type Entry[T any] struct {
	Value     T
	Timestamp time.Time
}

// TTL is a small keyed cache whose entries expire after a fixed duration.
// A zero or negative ttl disables caching.
type TTL[T any] struct {
	ttl     time.Duration
	now     func() time.Time
	mu      sync.Mutex
	entries map[string]Entry[T]
}

// NewTTL creates a cache with the given expiry
func NewTTL[T any](ttl time.Duration) *TTL[T] {
	return &TTL[T]{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]Entry[T]),
	}
}

// Get returns a live entry for key
func (c *TTL[T]) Get(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	e, ok := c.entries[key]
	if !ok {
		return zero, false
	}
	if c.ttl <= 0 || c.now().Sub(e.Timestamp) >= c.ttl {
		delete(c.entries, key)
		return zero, false
	}
	return e.Value, true
}

// Set stores value under key
func (c *TTL[T]) Set(key string, value T) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = Entry[T]{Value: value, Timestamp: c.now()}
}

// Invalidate drops key, or every entry when no key is given
func (c *TTL[T]) Invalidate(keys ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(keys) == 0 {
		c.entries = make(map[string]Entry[T])
		return
	}
	for _, k := range keys {
		delete(c.entries, k)
	}
}

// Len returns the number of stored entries, expired or not
func (c *TTL[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// GenerateCacheKey hashes the parts into a stable key
func GenerateCacheKey(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}
