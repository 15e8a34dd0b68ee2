// Package cache provides small TTL bounded caches owned by the pipeline
// components. Caches are injected at construction, never ambient state.
package cache

import (
	"fmt"
	"sync"
	"time"
)

// Values is a cached bag of named numeric values.
type Values map[string]float64

type entry struct {
	at     time.Time
	values Values
}

// TTL is a TTL bounded key value cache. Expired entries are evicted
// lazily on the next write.
type TTL struct {
	lock    sync.RWMutex
	ttl     time.Duration
	entries map[string]entry
	now     func() time.Time
}

// NewTTL creates a new cache with the given time-to-live.
func NewTTL(ttl time.Duration) *TTL {
	return &TTL{
		ttl:     ttl,
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

// WithClock overrides the cache clock, for tests.
func (c *TTL) WithClock(now func() time.Time) *TTL {
	c.now = now
	return c
}

// Get returns the cached values for the key, if present and fresh.
func (c *TTL) Get(key string) (Values, bool) {
	c.lock.RLock()
	defer c.lock.RUnlock()
	e, ok := c.entries[key]
	if !ok || c.now().Sub(e.at) >= c.ttl {
		return nil, false
	}
	return e.values, true
}

// Put stores the values under the key and evicts stale entries.
func (c *TTL) Put(key string, values Values) {
	c.lock.Lock()
	defer c.lock.Unlock()
	now := c.now()
	for k, e := range c.entries {
		if now.Sub(e.at) >= c.ttl {
			delete(c.entries, k)
		}
	}
	c.entries[key] = entry{at: now, values: values}
}

// Size returns the number of entries currently held, stale ones included.
func (c *TTL) Size() int {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return len(c.entries)
}

// BucketKey builds a cache key from the symbol and a coarse time bucket.
func BucketKey(symbol string, t time.Time, bucket time.Duration) string {
	if bucket <= 0 {
		bucket = time.Minute
	}
	return fmt.Sprintf("%s-%d", symbol, t.Unix()/int64(bucket.Seconds()))
}
