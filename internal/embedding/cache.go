package embedding

import (
	"strings"
	"sync"
	"time"
)

// Default cache configuration values.
const (
	DefaultCacheMaxSize = 1000
	DefaultCacheTTL     = 1 * time.Hour
)

// cacheEntry stores a cached embedding with its timestamp.
type cacheEntry struct {
	embedding []float32
	timestamp time.Time
	key       string
}

// embeddingCache is an LRU cache for embeddings with TTL expiry.
type embeddingCache struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry
	order   []*cacheEntry // oldest at front, newest at back
	maxSize int
	ttl     time.Duration
	hits    int64
	misses  int64
}

// CacheStats contains embedding cache statistics.
type CacheStats struct {
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	Size    int     `json:"size"`
	MaxSize int     `json:"max_size"`
	HitRate float64 `json:"hit_rate"`
}

func newEmbeddingCache(maxSize int, ttl time.Duration) *embeddingCache {
	return &embeddingCache{
		entries: make(map[string]*cacheEntry),
		order:   make([]*cacheEntry, 0, maxSize),
		maxSize: maxSize,
		ttl:     ttl,
	}
}

func normalizeKey(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

// get retrieves an embedding, or nil when absent or expired.
func (c *embeddingCache) get(text string) []float32 {
	key := normalizeKey(text)

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.entries[key]
	if !exists {
		c.misses++
		return nil
	}

	if time.Since(entry.timestamp) > c.ttl {
		c.misses++
		c.removeLocked(key)
		return nil
	}

	c.hits++
	c.moveToBackLocked(entry)
	return entry.embedding
}

// put stores an embedding, evicting the least recently used entries at
// capacity.
func (c *embeddingCache) put(text string, embedding []float32) {
	key := normalizeKey(text)

	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, exists := c.entries[key]; exists {
		existing.embedding = embedding
		existing.timestamp = time.Now()
		c.moveToBackLocked(existing)
		return
	}

	for len(c.entries) >= c.maxSize && len(c.order) > 0 {
		c.removeLocked(c.order[0].key)
	}

	entry := &cacheEntry{embedding: embedding, timestamp: time.Now(), key: key}
	c.entries[key] = entry
	c.order = append(c.order, entry)
}

func (c *embeddingCache) removeLocked(key string) {
	entry, exists := c.entries[key]
	if !exists {
		return
	}
	delete(c.entries, key)
	for i, e := range c.order {
		if e == entry {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

func (c *embeddingCache) moveToBackLocked(entry *cacheEntry) {
	for i, e := range c.order {
		if e == entry {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	c.order = append(c.order, entry)
}

func (c *embeddingCache) stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := c.hits + c.misses
	hitRate := 0.0
	if total > 0 {
		hitRate = float64(c.hits) / float64(total) * 100.0
	}

	return CacheStats{
		Hits:    c.hits,
		Misses:  c.misses,
		Size:    len(c.entries),
		MaxSize: c.maxSize,
		HitRate: hitRate,
	}
}
