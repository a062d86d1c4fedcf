// In-memory TTL cache for dashboard API payloads. Expiry is lazy: a stale
// entry is evicted when it is read, not by a mandatory background sweep.
package ttlcache

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/function61/gokit/logex"
)

const (
	DefaultTTL     = 5 * time.Minute
	DefaultMaxSize = 1000
)

type entry struct {
	payload     interface{}
	fetchedAt   time.Time
	lastAccess  time.Time
	accessCount int
}

type Stats struct {
	Hits      int     `json:"hits"`
	Misses    int     `json:"misses"`
	Sets      int     `json:"sets"`
	Deletes   int     `json:"deletes"`
	Evictions int     `json:"evictions"`
	Size      int     `json:"size"`
	MaxSize   int     `json:"max_size"`
	HitRate   float64 `json:"hit_rate"`
}

type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry
	ttl     time.Duration
	maxSize int
	now     func() time.Time

	hits      int
	misses    int
	sets      int
	deletes   int
	evictions int

	logl *logex.Leveled
}

// zero ttl/maxSize mean DefaultTTL/DefaultMaxSize
func New(ttl time.Duration, maxSize int, logger *log.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}

	return &Cache{
		entries: map[string]*entry{},
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
		logl:    logex.Levels(logger),
	}
}

// second return tells if the payload was present and fresh. a stale entry is
// removed here and reported absent.
func (c *Cache) Read(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ent, found := c.entries[key]
	if !found {
		c.misses++
		return nil, false
	}

	if c.expired(ent) {
		delete(c.entries, key)
		c.misses++
		return nil, false
	}

	ent.accessCount++
	ent.lastAccess = c.now()
	c.hits++
	return ent.payload, true
}

// unconditionally replaces any prior entry for the key
func (c *Cache) Write(key string, payload interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxSize {
		c.evictLeastRecentlyUsed()
	}

	now := c.now()

	c.entries[key] = &entry{
		payload:    payload,
		fetchedAt:  now,
		lastAccess: now,
	}
	c.sets++
}

func (c *Cache) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, found := c.entries[key]; !found {
		return false
	}

	delete(c.entries, key)
	c.deletes++
	return true
}

// Invalidate removes every entry whose key contains pattern as a substring.
// The empty pattern matches every key, i.e. clears the whole cache.
func (c *Cache) Invalidate(pattern string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key := range c.entries {
		if strings.Contains(key, pattern) {
			delete(c.entries, key)
			c.deletes++
			removed++
		}
	}

	return removed
}

// GetOrSet returns the cached payload, or fills the cache with the outcome
// of fill() on a miss. fill() errors are not cached.
func (c *Cache) GetOrSet(key string, fill func() (interface{}, error)) (interface{}, error) {
	if payload, found := c.Read(key); found {
		return payload, nil
	}

	payload, err := fill()
	if err != nil {
		return nil, err
	}

	c.Write(key, payload)
	return payload, nil
}

func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	hitRate := 0.0
	if total := c.hits + c.misses; total > 0 {
		hitRate = float64(c.hits) / float64(total) * 100
	}

	return Stats{
		Hits:      c.hits,
		Misses:    c.misses,
		Sets:      c.sets,
		Deletes:   c.deletes,
		Evictions: c.evictions,
		Size:      len(c.entries),
		MaxSize:   c.maxSize,
		HitRate:   hitRate,
	}
}

// StartJanitor runs an opt-in sweep that drops expired entries so a never-read
// stale entry cannot sit in memory forever. Read-time semantics are unchanged.
func (c *Cache) StartJanitor(ctx context.Context, interval time.Duration) {
	go func() {
		sweep := time.NewTicker(interval)
		defer sweep.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-sweep.C:
				if cleaned := c.cleanupExpired(); cleaned > 0 {
					c.logl.Debug.Printf("janitor removed %d expired entries", cleaned)
				}
			}
		}
	}()
}

func (c *Cache) cleanupExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, ent := range c.entries {
		if c.expired(ent) {
			delete(c.entries, key)
			removed++
		}
	}

	return removed
}

func (c *Cache) expired(ent *entry) bool {
	return c.now().Sub(ent.fetchedAt) > c.ttl
}

func (c *Cache) evictLeastRecentlyUsed() {
	lruKey := ""
	var lruTime time.Time

	for key, ent := range c.entries {
		if lruKey == "" || ent.lastAccess.Before(lruTime) {
			lruKey = key
			lruTime = ent.lastAccess
		}
	}

	if lruKey != "" {
		delete(c.entries, lruKey)
		c.evictions++
	}
}
