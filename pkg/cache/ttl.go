// Package cache holds the read-side caches: an in-process TTL map with an
// injectable clock and an optional Redis tier shared between instances.
package cache

import (
	"sync"
	"time"
)

type entry[V any] struct {
	value   V
	expires time.Time
}

// TTL is a concurrency-safe map whose entries expire after a fixed duration.
// Expired entries are dropped on read; Invalidate clears everything.
type TTL[K comparable, V any] struct {
	ttl time.Duration
	// Now is the clock; tests replace it.
	Now func() time.Time

	mu      sync.RWMutex
	entries map[K]entry[V]
}

func NewTTL[K comparable, V any](ttl time.Duration) *TTL[K, V] {
	return &TTL[K, V]{
		ttl:     ttl,
		Now:     time.Now,
		entries: make(map[K]entry[V]),
	}
}

// Get returns the value stored under key if it has not expired.
func (c *TTL[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		var zero V
		return zero, false
	}
	if !c.Now().Before(e.expires) {
		c.mu.Lock()
		if cur, ok := c.entries[key]; ok && cur.expires.Equal(e.expires) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		var zero V
		return zero, false
	}
	return e.value, true
}

// Set stores value under key for the configured TTL.
func (c *TTL[K, V]) Set(key K, value V) {
	c.mu.Lock()
	c.entries[key] = entry[V]{value: value, expires: c.Now().Add(c.ttl)}
	c.mu.Unlock()
}

// Invalidate removes every entry.
func (c *TTL[K, V]) Invalidate() {
	c.mu.Lock()
	c.entries = make(map[K]entry[V])
	c.mu.Unlock()
}

// Len counts stored entries, expired or not.
func (c *TTL[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// TTL returns the configured lifetime.
func (c *TTL[K, V]) TTL() time.Duration { return c.ttl }
