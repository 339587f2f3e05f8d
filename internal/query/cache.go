// Package query provides request de-duplication and short-window caching
// for Execution Service list queries, with mutation-driven invalidation.
package query

import (
	"context"
	"strings"
	"sync"
	"time"
)

const (
	defaultTTL           = 30 * time.Second
	defaultEvictInterval = time.Minute
)

// entry wraps a cached value with its expiry, or an in-flight fetch.
type entry struct {
	value   any
	expires time.Time
	done    chan struct{} // closed when an in-flight fetch completes
	err     error
}

// Cache de-duplicates identical queries within a TTL window and lets a
// successful mutation patch or invalidate a cached list without a full
// refetch. Keys are caller-composed, e.g. "threads:search:limit=50:...".
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry
	ttl     time.Duration
	stop    chan struct{}
	once    sync.Once
}

// New creates a cache with the default TTL and starts background eviction.
func New() *Cache {
	return NewWithTTL(defaultTTL)
}

// NewWithTTL creates a cache with an explicit TTL.
func NewWithTTL(ttl time.Duration) *Cache {
	c := &Cache{
		entries: make(map[string]*entry),
		ttl:     ttl,
		stop:    make(chan struct{}),
	}
	go c.evictLoop()
	return c
}

// Close stops background eviction.
func (c *Cache) Close() {
	c.once.Do(func() { close(c.stop) })
}

// Do returns the cached value for key if fresh, joins an in-flight fetch
// for the same key, or invokes fetch and caches the result. Fetch errors
// are not cached.
func (c *Cache) Do(ctx context.Context, key string, fetch func(ctx context.Context) (any, error)) (any, error) {
	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		if e.done != nil {
			done := e.done
			c.mu.Unlock()
			select {
			case <-done:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			c.mu.Lock()
			if e.err == nil && time.Now().Before(e.expires) {
				v := e.value
				c.mu.Unlock()
				return v, nil
			}
			// The shared fetch failed or already expired; fall through
			// and fetch again below.
		} else if time.Now().Before(e.expires) {
			v := e.value
			c.mu.Unlock()
			return v, nil
		}
	}

	e := &entry{done: make(chan struct{})}
	c.entries[key] = e
	c.mu.Unlock()

	value, err := fetch(ctx)

	c.mu.Lock()
	if err != nil {
		e.err = err
		delete(c.entries, key)
	} else {
		e.value = value
		e.expires = time.Now().Add(c.ttl)
	}
	close(e.done)
	e.done = nil
	c.mu.Unlock()
	return value, err
}

// Patch applies fn to a cached value in place, refreshing its expiry.
// Used after a mutation (e.g. thread deletion) to fix up a cached list
// without a refetch. No-op if the key is absent or in flight.
func (c *Cache) Patch(key string, fn func(value any) any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || e.done != nil {
		return
	}
	e.value = fn(e.value)
	e.expires = time.Now().Add(c.ttl)
}

// Invalidate drops every cached entry whose key starts with prefix.
func (c *Cache) Invalidate(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, e := range c.entries {
		if e.done == nil && strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
		}
	}
}

// evictLoop periodically removes expired entries.
func (c *Cache) evictLoop() {
	ticker := time.NewTicker(defaultEvictInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.mu.Lock()
			now := time.Now()
			for key, e := range c.entries {
				if e.done == nil && now.After(e.expires) {
					delete(c.entries, key)
				}
			}
			c.mu.Unlock()
		case <-c.stop:
			return
		}
	}
}
