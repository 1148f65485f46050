package tts

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
	"sync"
	"time"
)

// Cache defaults.
const (
	DefaultCacheMaxBytes = 100 << 20 // 100 MB
	DefaultCacheTTL      = 24 * time.Hour
)

// CacheStats reports cache effectiveness.
type CacheStats struct {
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Entries int   `json:"entries"`
	Bytes   int64 `json:"bytes"`
}

type cacheEntry struct {
	audio    []byte
	storedAt time.Time
	lastUsed time.Time
}

// Cache is an in-memory audio cache keyed by text + language + voice.
// Entries expire after the TTL; when the byte budget is exceeded the
// least recently used entries are evicted first.
type Cache struct {
	mu       sync.Mutex
	entries  map[string]*cacheEntry
	bytes    int64
	maxBytes int64
	ttl      time.Duration
	hits     int64
	misses   int64

	// now is swappable for tests.
	now func() time.Time
}

// NewCache creates a cache with the given byte budget and TTL.
// Zero values select the defaults.
func NewCache(maxBytes int64, ttl time.Duration) *Cache {
	if maxBytes <= 0 {
		maxBytes = DefaultCacheMaxBytes
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache{
		entries:  make(map[string]*cacheEntry),
		maxBytes: maxBytes,
		ttl:      ttl,
		now:      time.Now,
	}
}

// cacheKey hashes normalized text with language and voice.
func cacheKey(text, language, voice string) string {
	normalized := strings.ToLower(strings.TrimSpace(text))
	sum := md5.Sum([]byte(normalized + ":" + language + ":" + voice))
	return hex.EncodeToString(sum[:])
}

// Get returns cached audio, or false on miss or expiry.
func (c *Cache) Get(text, language, voice string) ([]byte, bool) {
	key := cacheKey(text, language, voice)

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}
	if c.now().Sub(entry.storedAt) > c.ttl {
		c.removeLocked(key, entry)
		c.misses++
		return nil, false
	}

	entry.lastUsed = c.now()
	c.hits++
	return entry.audio, true
}

// Set stores audio for the key, evicting old entries if over budget.
func (c *Cache) Set(text, language, voice string, audio []byte) {
	if len(audio) == 0 || int64(len(audio)) > c.maxBytes {
		return
	}
	key := cacheKey(text, language, voice)

	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.entries[key]; ok {
		c.removeLocked(key, old)
	}

	now := c.now()
	c.entries[key] = &cacheEntry{audio: audio, storedAt: now, lastUsed: now}
	c.bytes += int64(len(audio))

	for c.bytes > c.maxBytes {
		c.evictOldestLocked()
	}
}

// Stats returns a snapshot of cache statistics.
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{
		Hits:    c.hits,
		Misses:  c.misses,
		Entries: len(c.entries),
		Bytes:   c.bytes,
	}
}

func (c *Cache) removeLocked(key string, entry *cacheEntry) {
	delete(c.entries, key)
	c.bytes -= int64(len(entry.audio))
}

func (c *Cache) evictOldestLocked() {
	var oldestKey string
	var oldest *cacheEntry
	for key, entry := range c.entries {
		if oldest == nil || entry.lastUsed.Before(oldest.lastUsed) {
			oldestKey, oldest = key, entry
		}
	}
	if oldest == nil {
		return
	}
	c.removeLocked(oldestKey, oldest)
}
