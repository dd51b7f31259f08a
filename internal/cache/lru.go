// Package cache implements the metadata stat cache the Path Resolver and
// engine use to avoid re-stat-ing the MDFS for every lookup (SPEC_FULL
// §11): a single-level, thread-safe LRU keyed by MDFS path, adapted from
// the teacher's multi-level object-byte cache down to the one tier MarFS
// actually needs -- small, short-TTL metadata blobs, not cached file
// content (MarFS never caches object bytes; the object store is the
// source of truth for data, the MDFS for metadata).
package cache

import (
	"container/list"
	"fmt"
	"sync"
	"time"
)

// Stats reports point-in-time counters for an LRUCache.
type Stats struct {
	Hits        uint64
	Misses      uint64
	Evictions   uint64
	HitRate     float64
	Size        int64
	Capacity    int64
	Utilization float64
}

// LRUCache is a thread-safe, size- and count-bounded LRU cache of small
// byte blobs (gob-encoded stat records), addressed by key:offset:size the
// same way the teacher's object-byte cache addressed content ranges --
// pathresolver always passes offset 0 and a synthetic size of 1 since a
// stat record has no meaningful byte range.
type LRUCache struct {
	mu          sync.RWMutex
	capacity    int64
	currentSize int64
	items       map[string]*cacheItem
	evictList   *list.List

	config *CacheConfig
	stats  Stats
}

// CacheConfig configures an LRUCache's capacity and expiration.
type CacheConfig struct {
	MaxSize         int64         `yaml:"max_size"`
	MaxEntries      int           `yaml:"max_entries"`
	TTL             time.Duration `yaml:"ttl"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

type cacheItem struct {
	key        string
	data       []byte
	size       int64
	timestamp  time.Time
	accessTime time.Time
	element    *list.Element
}

type cacheEntry struct {
	key string
}

// NewLRUCache creates an LRUCache; a nil config gets defaults sized for a
// per-mount stat cache rather than the teacher's multi-gigabyte object
// cache.
func NewLRUCache(config *CacheConfig) *LRUCache {
	if config == nil {
		config = &CacheConfig{
			MaxSize:         64 * 1024 * 1024,
			MaxEntries:      100000,
			TTL:             2 * time.Second,
			CleanupInterval: time.Minute,
		}
	}

	c := &LRUCache{
		capacity:  config.MaxSize,
		items:     make(map[string]*cacheItem),
		evictList: list.New(),
		config:    config,
		stats:     Stats{Capacity: config.MaxSize},
	}

	go c.cleanupExpired()

	return c
}

// Get retrieves data from the cache, or nil on a miss or expired entry.
func (c *LRUCache) Get(key string, offset, size int64) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()

	cacheKey := c.makeCacheKey(key, offset, size)
	item, exists := c.items[cacheKey]
	if !exists {
		c.stats.Misses++
		return nil
	}

	if c.isExpired(item) {
		c.removeItem(cacheKey)
		c.stats.Misses++
		return nil
	}

	item.accessTime = time.Now()
	c.evictList.MoveToFront(item.element)

	c.stats.Hits++
	c.updateHitRate()

	result := make([]byte, len(item.data))
	copy(result, item.data)
	return result
}

// Put stores data in the cache; empty data is ignored.
func (c *LRUCache) Put(key string, offset int64, data []byte) {
	if len(data) == 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	size := int64(len(data))
	cacheKey := c.makeCacheKey(key, offset, size)

	if item, exists := c.items[cacheKey]; exists {
		c.currentSize -= item.size
		item.data = append([]byte(nil), data...)
		item.size = size
		item.timestamp = time.Now()
		item.accessTime = time.Now()
		c.currentSize += size
		c.evictList.MoveToFront(item.element)
		return
	}

	newItem := &cacheItem{
		key:        cacheKey,
		data:       append([]byte(nil), data...),
		size:       size,
		timestamp:  time.Now(),
		accessTime: time.Now(),
	}
	element := c.evictList.PushFront(&cacheEntry{key: cacheKey})
	newItem.element = element

	c.items[cacheKey] = newItem
	c.currentSize += size

	c.evictIfNeeded()
}

// Delete removes every item whose cache key has the given path as a
// prefix -- InvalidateStat calls this with just the MDFS path, dropping
// all offset:size variants of it in one call.
func (c *LRUCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var toDelete []string
	for cacheKey := range c.items {
		if c.keyMatches(cacheKey, key) {
			toDelete = append(toDelete, cacheKey)
		}
	}
	for _, cacheKey := range toDelete {
		c.removeItem(cacheKey)
	}
}

// Evict frees at least targetSize bytes from the least-recently-used end
// of the cache, reporting whether it was able to.
func (c *LRUCache) Evict(targetSize int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	freed := int64(0)
	for freed < targetSize && c.evictList.Len() > 0 {
		element := c.evictList.Back()
		if element == nil {
			break
		}
		entry := element.Value.(*cacheEntry)
		if item := c.items[entry.key]; item != nil {
			freed += item.size
			c.removeItem(entry.key)
		} else {
			c.evictList.Remove(element)
		}
	}
	return freed >= targetSize
}

// Size returns the current total cached size in bytes.
func (c *LRUCache) Size() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.currentSize
}

// Stats returns a snapshot of cache counters.
func (c *LRUCache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := c.stats
	s.Size = c.currentSize
	if c.capacity > 0 {
		s.Utilization = float64(c.currentSize) / float64(c.capacity)
	}
	return s
}

// Clear empties the cache.
func (c *LRUCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*cacheItem)
	c.evictList.Init()
	c.currentSize = 0
}

// GetKeys returns all cache keys, for debugging.
func (c *LRUCache) GetKeys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := make([]string, 0, len(c.items))
	for key := range c.items {
		keys = append(keys, key)
	}
	return keys
}

// Resize changes the cache's byte capacity, evicting if the new capacity
// is below the current size.
func (c *LRUCache) Resize(newCapacity int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.capacity = newCapacity
	c.stats.Capacity = newCapacity
	c.evictIfNeeded()
}

func (c *LRUCache) makeCacheKey(key string, offset, size int64) string {
	return fmt.Sprintf("%s:%d:%d", key, offset, size)
}

func (c *LRUCache) keyMatches(cacheKey, key string) bool {
	return len(cacheKey) >= len(key) && cacheKey[:len(key)] == key
}

func (c *LRUCache) isExpired(item *cacheItem) bool {
	if c.config.TTL == 0 {
		return false
	}
	return time.Since(item.timestamp) > c.config.TTL
}

func (c *LRUCache) removeItem(key string) {
	item, exists := c.items[key]
	if !exists {
		return
	}
	if item.element != nil {
		c.evictList.Remove(item.element)
	}
	delete(c.items, key)
	c.currentSize -= item.size
	c.stats.Evictions++
}

func (c *LRUCache) evictIfNeeded() {
	for c.currentSize > c.capacity && c.evictList.Len() > 0 {
		c.evictOldest()
	}
	maxEntries := c.config.MaxEntries
	if maxEntries > 0 {
		for len(c.items) > maxEntries && c.evictList.Len() > 0 {
			c.evictOldest()
		}
	}
}

func (c *LRUCache) evictOldest() {
	element := c.evictList.Back()
	if element == nil {
		return
	}
	entry := element.Value.(*cacheEntry)
	c.removeItem(entry.key)
}

func (c *LRUCache) updateHitRate() {
	total := c.stats.Hits + c.stats.Misses
	if total > 0 {
		c.stats.HitRate = float64(c.stats.Hits) / float64(total)
	}
}

func (c *LRUCache) cleanupExpired() {
	interval := c.config.CleanupInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		c.mu.Lock()
		var expired []string
		for key, item := range c.items {
			if c.isExpired(item) {
				expired = append(expired, key)
			}
		}
		for _, key := range expired {
			c.removeItem(key)
		}
		c.mu.Unlock()
	}
}
