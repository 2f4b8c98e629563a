package dedupe

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Entry is a cached tool result.
type Entry struct {
	Output   string
	StoredAt time.Time
	TTL      time.Duration
}

// Cache maps (toolName, canonical args) fingerprints to recent successful
// results. It is process-scoped and shared across runs. Eviction is silent
// (bounded LRU); expired entries are dropped on lookup.
type Cache struct {
	entries    *lru.Cache[string, Entry]
	defaultTTL time.Duration
	now        func() time.Time
}

// NewCache builds a cache holding at most capacity entries. defaultTTL
// applies to entries stored without a per-tool override.
func NewCache(capacity int, defaultTTL time.Duration) (*Cache, error) {
	entries, err := lru.New[string, Entry](capacity)
	if err != nil {
		return nil, err
	}
	return &Cache{
		entries:    entries,
		defaultTTL: defaultTTL,
		now:        time.Now,
	}, nil
}

// Lookup returns the cached output and its age when a live entry exists for
// the fingerprint. Stale entries are removed and reported as misses.
func (c *Cache) Lookup(fingerprint string) (string, time.Duration, bool) {
	entry, ok := c.entries.Get(fingerprint)
	if !ok {
		return "", 0, false
	}

	age := c.now().Sub(entry.StoredAt)
	if age >= entry.TTL {
		c.entries.Remove(fingerprint)
		return "", 0, false
	}
	return entry.Output, age, true
}

// Store records a successful tool output. ttl <= 0 selects the default.
// Validation failures and execution errors must never be stored.
func (c *Cache) Store(fingerprint, output string, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	c.entries.Add(fingerprint, Entry{
		Output:   output,
		StoredAt: c.now(),
		TTL:      ttl,
	})
}

// Invalidate drops a single entry.
func (c *Cache) Invalidate(fingerprint string) {
	c.entries.Remove(fingerprint)
}

// Purge drops every entry.
func (c *Cache) Purge() {
	c.entries.Purge()
}

// Len returns the number of resident entries, counting entries that have
// expired but not yet been looked up.
func (c *Cache) Len() int {
	return c.entries.Len()
}
