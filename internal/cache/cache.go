// Package cache provides a small generic in-memory TTL cache. nfury uses
// it to absorb polling reads of slow-changing catalog data (the project
// list); run data changes too fast to be worth caching.
package cache

import (
	"sync"
	"time"
)

// DefaultTTL is the default time-to-live for cache entries.
const DefaultTTL = 30 * time.Second

// DefaultMaxEntries is the default maximum number of cache entries.
const DefaultMaxEntries = 1000

// Options configures a Cache instance. Zero values pick the defaults.
type Options struct {
	TTL        time.Duration
	MaxEntries int
}

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// Cache is a thread-safe in-memory cache with TTL expiration. When full,
// expired entries are dropped first, then the oldest entry by insertion
// order.
type Cache[K comparable, V any] struct {
	mu         sync.RWMutex
	entries    map[K]entry[V]
	order      []K // insertion order, for eviction
	ttl        time.Duration
	maxEntries int
}

// New creates a Cache with the given options.
func New[K comparable, V any](opts Options) *Cache[K, V] {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	maxEntries := opts.MaxEntries
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &Cache[K, V]{
		entries:    make(map[K]entry[V]),
		ttl:        ttl,
		maxEntries: maxEntries,
	}
}

// Get retrieves a value by key. Returns the zero value and false if the key
// is missing or expired; expired entries are removed lazily.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		var zero V
		return zero, false
	}
	if time.Now().After(e.expiresAt) {
		c.mu.Lock()
		c.removeLocked(key)
		c.mu.Unlock()
		var zero V
		return zero, false
	}
	return e.value, true
}

// Set adds or updates a cache entry, evicting if the cache is full.
func (c *Cache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; exists {
		// Update in place without touching insertion order.
		c.entries[key] = entry[V]{value: value, expiresAt: time.Now().Add(c.ttl)}
		return
	}

	if len(c.entries) >= c.maxEntries {
		c.cleanExpiredLocked()
	}
	if len(c.entries) >= c.maxEntries {
		c.evictOldestLocked()
	}

	c.entries[key] = entry[V]{value: value, expiresAt: time.Now().Add(c.ttl)}
	c.order = append(c.order, key)
}

// Delete removes a single entry by key. No-op if the key doesn't exist.
func (c *Cache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeLocked(key)
}

// Clear removes all entries. Called after catalog mutations so readers
// never see a stale list longer than one request.
func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[K]entry[V])
	c.order = c.order[:0]
}

// Len returns the number of entries, including expired but not yet cleaned.
func (c *Cache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *Cache[K, V]) removeLocked(key K) {
	if _, ok := c.entries[key]; !ok {
		return
	}
	delete(c.entries, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

func (c *Cache[K, V]) cleanExpiredLocked() {
	now := time.Now()
	var remaining []K
	for _, k := range c.order {
		if e, ok := c.entries[k]; ok && now.After(e.expiresAt) {
			delete(c.entries, k)
		} else {
			remaining = append(remaining, k)
		}
	}
	c.order = remaining
}

func (c *Cache[K, V]) evictOldestLocked() {
	if len(c.order) == 0 {
		return
	}
	oldest := c.order[0]
	c.order = c.order[1:]
	delete(c.entries, oldest)
}
