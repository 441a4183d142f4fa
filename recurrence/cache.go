package recurrence

import (
	"crypto/sha256"
	"fmt"
	"slices"
	"sync"
	"time"
)

// CacheEntry is one memoised window of occurrences.
type CacheEntry struct {
	Occurrences []time.Time
	ExpiresAt   time.Time
	AccessedAt  time.Time
}

// Cache memoises Between windows. Keys are derived from the recurrence's
// content, so an edited recurrence never hits a stale entry.
type Cache struct {
	entries         map[string]*CacheEntry
	mutex           sync.RWMutex
	ttl             time.Duration
	maxEntries      int
	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	closeOnce       sync.Once
}

// NewCache creates a cache and starts its cleanup goroutine. Call Close to stop it.
func NewCache(config CacheConfig) *Cache {
	config = config.withDefaults()
	cache := &Cache{
		entries:         make(map[string]*CacheEntry),
		ttl:             config.TTL,
		maxEntries:      config.MaxEntries,
		cleanupInterval: config.CleanupInterval,
		stopCleanup:     make(chan struct{}),
	}

	go cache.cleanupLoop()

	return cache
}

func (c *Cache) key(r Recurrence, after, before time.Time, inclusive bool) string {
	hasher := sha256.New()
	hasher.Write([]byte(r.Fingerprint()))
	hasher.Write([]byte(after.Format(time.RFC3339Nano)))
	hasher.Write([]byte(before.Format(time.RFC3339Nano)))
	if inclusive {
		hasher.Write([]byte{1})
	}
	return fmt.Sprintf("%x", hasher.Sum(nil))
}

// Between returns r.Between(after, before, inclusive) as a slice, reusing a
// previous expansion of the same window when one is still fresh.
func (c *Cache) Between(r Recurrence, after, before time.Time, inclusive bool) []time.Time {
	key := c.key(r, after, before, inclusive)
	now := time.Now()

	c.mutex.Lock()
	entry, ok := c.entries[key]
	if ok && now.Before(entry.ExpiresAt) {
		entry.AccessedAt = now
		c.mutex.Unlock()
		return entry.Occurrences
	}
	c.mutex.Unlock()

	occurrences := slices.Collect(r.Between(after, before, inclusive))

	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.entries[key] = &CacheEntry{
		Occurrences: occurrences,
		ExpiresAt:   now.Add(c.ttl),
		AccessedAt:  now,
	}
	if len(c.entries) > c.maxEntries {
		c.cleanup()
	}
	return occurrences
}

// cleanup removes expired entries, then the least recently used ones while
// over the limit. Callers hold the write lock.
func (c *Cache) cleanup() {
	now := time.Now()

	for key, entry := range c.entries {
		if now.After(entry.ExpiresAt) {
			delete(c.entries, key)
		}
	}

	if len(c.entries) <= c.maxEntries {
		return
	}

	type keyAccess struct {
		key        string
		accessedAt time.Time
	}
	keys := make([]keyAccess, 0, len(c.entries))
	for key, entry := range c.entries {
		keys = append(keys, keyAccess{key: key, accessedAt: entry.AccessedAt})
	}
	slices.SortFunc(keys, func(a, b keyAccess) int {
		return a.accessedAt.Compare(b.accessedAt)
	})

	for _, k := range keys[:len(c.entries)-c.maxEntries] {
		delete(c.entries, k.key)
	}
}

func (c *Cache) cleanupLoop() {
	ticker := time.NewTicker(c.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.mutex.Lock()
			c.cleanup()
			c.mutex.Unlock()
		case <-c.stopCleanup:
			return
		}
	}
}

// Close stops the cleanup goroutine and drops every entry.
func (c *Cache) Close() {
	c.closeOnce.Do(func() { close(c.stopCleanup) })
	c.mutex.Lock()
	c.entries = make(map[string]*CacheEntry)
	c.mutex.Unlock()
}

// Stats returns a snapshot of the cache's size.
func (c *Cache) Stats() CacheStats {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	expired := 0
	now := time.Now()
	for _, entry := range c.entries {
		if now.After(entry.ExpiresAt) {
			expired++
		}
	}

	return CacheStats{
		TotalEntries:   len(c.entries),
		ExpiredEntries: expired,
		ActiveEntries:  len(c.entries) - expired,
	}
}

// CacheStats describes the cache contents.
type CacheStats struct {
	TotalEntries   int
	ExpiredEntries int
	ActiveEntries  int
}
