package session

import (
	"sync"
	"time"

	"hauntedmap/internal/types"
)

// FallbackEntry is the last successfully computed rating/factors pair for a
// coordinate key.
type FallbackEntry struct {
	Rating   types.HauntedRating
	Factors  types.EnvironmentalFactors
	StoredAt time.Time
}

// FallbackCache holds the most recent good result per coordinate key so a
// failed refresh can serve something instead of nothing. Entries expire on
// their own TTL, independent of the session refresh interval; writes are
// last-write-wins and replace the whole entry atomically. No LRU: the key
// space is bounded by the set of coordinates users actually watch.
type FallbackCache struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.RWMutex
	entries map[string]FallbackEntry
}

// NewFallbackCache creates a cache with the given TTL. A zero or negative
// TTL means entries never expire.
func NewFallbackCache(ttl time.Duration, now func() time.Time) *FallbackCache {
	if now == nil {
		now = time.Now
	}
	return &FallbackCache{
		ttl:     ttl,
		now:     now,
		entries: make(map[string]FallbackEntry),
	}
}

// Put stores the entry for the key, replacing any previous value.
func (c *FallbackCache) Put(key string, rating types.HauntedRating, factors types.EnvironmentalFactors) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = FallbackEntry{Rating: rating, Factors: factors, StoredAt: c.now()}
}

// Get returns the unexpired entry for the key. Expired entries are treated
// as absent (and dropped lazily).
func (c *FallbackCache) Get(key string) (FallbackEntry, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return FallbackEntry{}, false
	}

	if c.ttl > 0 && c.now().Sub(entry.StoredAt) >= c.ttl {
		c.mu.Lock()
		// Re-check under the write lock; a fresher write may have landed.
		if current, still := c.entries[key]; still && c.now().Sub(current.StoredAt) >= c.ttl {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return FallbackEntry{}, false
	}
	return entry, true
}

// Len reports the number of stored entries, expired or not.
func (c *FallbackCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
