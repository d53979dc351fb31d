package allowlist

import (
	"sync"
	"time"

	"github.com/garnet-sec/garnet/pkg/store"
)

// Cache holds allow-list entry snapshots keyed by canonical email.
// Implementations must be safe for concurrent use.
type Cache interface {
	// Get returns the cached entry and true if a fresh snapshot exists.
	// A nil entry with ok=true is never returned.
	Get(email string) (*store.Entry, bool)
	// Set stores a snapshot of the entry, replacing any prior one.
	Set(email string, entry *store.Entry)
	// Invalidate removes the snapshot for email, if any.
	Invalidate(email string)
}

type cacheEntry struct {
	entry    *store.Entry
	cachedAt time.Time
}

// memoryCache is a mutex-guarded map with per-entry TTL checked at read
// time. Expired entries are dropped lazily on Get; the working set is one
// row per recently-seen user, so no sweeper is needed.
type memoryCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]cacheEntry
}

// NewMemoryCache returns an in-process Cache whose snapshots expire after
// ttl. A non-positive ttl disables caching entirely: Get always misses.
func NewMemoryCache(ttl time.Duration) Cache {
	return &memoryCache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
	}
}

func (c *memoryCache) Get(email string) (*store.Entry, bool) {
	if c.ttl <= 0 {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	ce, ok := c.entries[email]
	if !ok {
		return nil, false
	}
	if time.Since(ce.cachedAt) > c.ttl {
		delete(c.entries, email)
		return nil, false
	}
	return ce.entry, true
}

func (c *memoryCache) Set(email string, entry *store.Entry) {
	if c.ttl <= 0 || entry == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[email] = cacheEntry{entry: entry, cachedAt: time.Now()}
}

func (c *memoryCache) Invalidate(email string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, email)
}
