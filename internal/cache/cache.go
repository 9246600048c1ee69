// internal/cache/cache.go
package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Cache stores text values keyed by string with per-entry TTL.
//
// Implementations:
//   - MemoryCache: In-memory cache with LRU eviction
type Cache interface {
	// Get returns the cached value and whether a live entry was found.
	Get(key string) (string, bool)

	// Set stores value under key for ttl, replacing any previous entry.
	Set(key string, value string, ttl time.Duration)

	// Close stops background work.
	Close()
}

// cacheEntry is one cached value with its expiry
type cacheEntry struct {
	Key       string
	Value     string
	ExpiresAt time.Time
}

func (e *cacheEntry) size() int64 {
	// ~64 bytes of bookkeeping per entry
	return int64(len(e.Key)+len(e.Value)) + 64
}

// MemoryCache implements Cache with LRU eviction bounded by total size
type MemoryCache struct {
	store   map[string]*list.Element
	lruList *list.List
	mu      sync.Mutex
	maxSize int64
	size    int64
	ctx     context.Context
	cancel  context.CancelFunc
	hits    uint64
	misses  uint64
	now     func() time.Time
}

// DefaultTTL applies when Set is called with a non-positive ttl
const DefaultTTL = time.Hour

// NewMemoryCache creates a cache holding at most maxSizeBytes of keys and values
func NewMemoryCache(maxSizeBytes int64) *MemoryCache {
	if maxSizeBytes <= 0 {
		maxSizeBytes = 8 * 1024 * 1024
	}

	ctx, cancel := context.WithCancel(context.Background())

	mc := &MemoryCache{
		store:   make(map[string]*list.Element),
		lruList: list.New(),
		maxSize: maxSizeBytes,
		ctx:     ctx,
		cancel:  cancel,
		now:     time.Now,
	}

	go mc.cleanupExpired(time.Minute)

	return mc
}

// Get retrieves a value and marks it most recently used
func (mc *MemoryCache) Get(key string) (string, bool) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	element, exists := mc.store[key]
	if !exists {
		mc.misses++
		return "", false
	}

	entry := element.Value.(*cacheEntry)
	if mc.now().After(entry.ExpiresAt) {
		mc.misses++
		mc.removeElement(element)
		return "", false
	}

	mc.lruList.MoveToFront(element)
	mc.hits++
	return entry.Value, true
}

// Set stores a value, evicting least recently used entries to stay in budget
func (mc *MemoryCache) Set(key string, value string, ttl time.Duration) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	mc.mu.Lock()
	defer mc.mu.Unlock()

	if element, exists := mc.store[key]; exists {
		mc.removeElement(element)
	}

	entry := &cacheEntry{Key: key, Value: value, ExpiresAt: mc.now().Add(ttl)}
	for mc.size+entry.size() > mc.maxSize && mc.lruList.Len() > 0 {
		mc.evictLRU()
	}
	if entry.size() > mc.maxSize {
		log.Debug().Str("key", key).Int64("size_bytes", entry.size()).Msg("Value larger than cache, not stored")
		return
	}

	mc.store[key] = mc.lruList.PushFront(entry)
	mc.size += entry.size()
}

// Close stops the background cleanup goroutine
func (mc *MemoryCache) Close() {
	mc.cancel()
}

// Stats describes cache usage
type Stats struct {
	Entries   int
	SizeBytes int64
	MaxSize   int64
	Hits      uint64
	Misses    uint64
}

// HitRate returns hits as a percentage of lookups
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total) * 100
}

// Stats returns a snapshot of cache usage
func (mc *MemoryCache) Stats() Stats {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return Stats{
		Entries:   mc.lruList.Len(),
		SizeBytes: mc.size,
		MaxSize:   mc.maxSize,
		Hits:      mc.hits,
		Misses:    mc.misses,
	}
}

// evictLRU removes the least recently used entry (lock held)
func (mc *MemoryCache) evictLRU() {
	element := mc.lruList.Back()
	if element == nil {
		return
	}
	log.Debug().Str("key", element.Value.(*cacheEntry).Key).Msg("Evicted from cache (LRU)")
	mc.removeElement(element)
}

// removeElement drops an entry (lock held)
func (mc *MemoryCache) removeElement(element *list.Element) {
	entry := element.Value.(*cacheEntry)
	mc.lruList.Remove(element)
	delete(mc.store, entry.Key)
	mc.size -= entry.size()
}

// cleanupExpired periodically removes expired entries
func (mc *MemoryCache) cleanupExpired(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			mc.purgeExpired()
		case <-mc.ctx.Done():
			return
		}
	}
}

func (mc *MemoryCache) purgeExpired() {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	now := mc.now()
	var next *list.Element
	for element := mc.lruList.Front(); element != nil; element = next {
		next = element.Next()
		if now.After(element.Value.(*cacheEntry).ExpiresAt) {
			mc.removeElement(element)
		}
	}
}
