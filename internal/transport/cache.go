package transport

import (
	"sync"
	"time"
)

// sweepThreshold is the soft cap above which a read triggers an
// expired-entry sweep. Not a hard bound: under pathological key
// cardinality the cache can still grow until entries expire.
const sweepThreshold = 1000

type cacheEntry struct {
	payload []byte
	expires time.Time
}

// responseCache is the in-memory GET cache. The original design ran on
// a cooperative scheduler and went unlocked; on Go's preemptive
// runtime every access holds the mutex.
type responseCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	ttl     time.Duration
}

func newResponseCache(ttl time.Duration) *responseCache {
	return &responseCache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
	}
}

// get returns the cached payload for key, or nil on a miss or expired
// entry. A hit is served as-is without revalidation: staleness up to
// ttl is the accepted tradeoff.
func (c *responseCache) get(key string, now time.Time) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) > sweepThreshold {
		c.sweepLocked(now)
	}

	e, ok := c.entries[key]
	if !ok || now.After(e.expires) {
		return nil
	}
	return e.payload
}

// put stores payload under key with absolute expiry now+ttl.
func (c *responseCache) put(key string, payload []byte, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{payload: payload, expires: now.Add(c.ttl)}
}

// clear drops every entry. Called before any mutating request: a write
// may affect any cached listing, so invalidation is wholesale.
func (c *responseCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
}

// sweepLocked removes expired entries only. Caller holds c.mu.
func (c *responseCache) sweepLocked(now time.Time) {
	for k, e := range c.entries {
		if now.After(e.expires) {
			delete(c.entries, k)
		}
	}
}

// size is used by tests and the stats surface.
func (c *responseCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
