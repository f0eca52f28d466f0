// Package cache provides the process-local keyed cache used by the data
// services. Entries expire lazily: an expired entry is indistinguishable
// from a missing one and is never refreshed implicitly.
package cache

import (
	"strings"
	"sync"
	"time"
)

// Default TTLs, tuned to how often each kind of data changes.
const (
	TTLSettings    = time.Hour
	TTLEventList   = 5 * time.Minute
	TTLEventDetail = 15 * time.Minute
	TTLUserDetail  = 30 * time.Minute
	TTLScopedList  = 5 * time.Minute
)

// Sep joins key segments, e.g. "event" + Sep + id. Invalidate treats a key
// ending in Sep as a prefix wipe.
const Sep = ":"

type entry struct {
	value any
	setAt time.Time
	ttl   time.Duration
}

// Cache is a keyed TTL cache. The zero value is not usable; construct with
// New. Each process holds its own instance — there is no cross-instance
// invalidation, so the staleness window in a multi-instance deployment is
// the TTL itself.
type Cache struct {
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time
}

// New creates an empty cache using the wall clock.
func New() *Cache {
	return NewWithClock(time.Now)
}

// NewWithClock creates a cache with an injected clock.
func NewWithClock(now func() time.Time) *Cache {
	return &Cache{
		entries: make(map[string]entry),
		now:     now,
	}
}

// Get returns the live value for key. An entry older than its TTL is treated
// exactly like a missing one and is dropped on the way out.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().Sub(e.setAt) > e.ttl {
		delete(c.entries, key)
		return nil, false
	}
	return e.value, true
}

// Set stores value under key for ttl, overwriting any previous entry
// wholesale.
func (c *Cache) Set(key string, value any, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = entry{value: value, setAt: c.now(), ttl: ttl}
}

// Invalidate drops the entry for keyOrPrefix. A key ending in Sep removes
// every entry under that prefix.
func (c *Cache) Invalidate(keyOrPrefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !strings.HasSuffix(keyOrPrefix, Sep) {
		delete(c.entries, keyOrPrefix)
		return
	}
	for k := range c.entries {
		if strings.HasPrefix(k, keyOrPrefix) {
			delete(c.entries, k)
		}
	}
}

// Len reports the number of stored entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
