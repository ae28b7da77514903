package rules

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/upb/signalops/models"
	"github.com/upb/signalops/repositories"
)

// CacheKey identifies the active rule set for one event type of one tenant
type CacheKey struct {
	TenantID  uuid.UUID
	EventType string
}

// String returns a string representation of the cache key
func (k CacheKey) String() string {
	return k.TenantID.String() + ":" + k.EventType
}

type cacheEntry struct {
	key        CacheKey
	rules      []*models.Rule
	insertedAt time.Time
	element    *list.Element
}

// Cache is an in-memory LRU cache with TTL for active rule sets.
// Rule edits become visible to the worker once the TTL elapses.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry
	lruList *list.List
	maxSize int
	ttl     time.Duration
	hits    uint64
	misses  uint64
	now     func() time.Time
}

// CacheStats represents cache statistics
type CacheStats struct {
	Size    int
	MaxSize int
	Hits    uint64
	Misses  uint64
	HitRate float64
}

// NewCache creates a new Cache with the given capacity and TTL
func NewCache(maxSize int, ttl time.Duration) *Cache {
	if maxSize < 1 {
		maxSize = 1
	}
	return &Cache{
		entries: make(map[string]*cacheEntry),
		lruList: list.New(),
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns the cached rules and whether they were present and fresh.
// An empty rule set is a valid hit.
func (c *Cache) Get(key CacheKey) ([]*models.Rule, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	keyStr := key.String()
	entry, exists := c.entries[keyStr]
	if !exists || c.now().Sub(entry.insertedAt) > c.ttl {
		c.misses++
		if exists {
			c.removeEntry(keyStr)
		}
		return nil, false
	}

	c.lruList.MoveToFront(entry.element)
	c.hits++
	return entry.rules, true
}

// Set stores the rules for key, evicting the least recently used entry when full
func (c *Cache) Set(key CacheKey, rules []*models.Rule) {
	c.mu.Lock()
	defer c.mu.Unlock()

	keyStr := key.String()
	if entry, exists := c.entries[keyStr]; exists {
		entry.rules = rules
		entry.insertedAt = c.now()
		c.lruList.MoveToFront(entry.element)
		return
	}

	if c.lruList.Len() >= c.maxSize {
		c.evictLRU()
	}

	entry := &cacheEntry{
		key:        key,
		rules:      rules,
		insertedAt: c.now(),
	}
	entry.element = c.lruList.PushFront(keyStr)
	c.entries[keyStr] = entry
}

// Stats returns cache statistics
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	var hitRate float64
	if total := c.hits + c.misses; total > 0 {
		hitRate = float64(c.hits) / float64(total)
	}
	return CacheStats{
		Size:    c.lruList.Len(),
		MaxSize: c.maxSize,
		Hits:    c.hits,
		Misses:  c.misses,
		HitRate: hitRate,
	}
}

// must be called with lock held
func (c *Cache) removeEntry(keyStr string) {
	if entry, exists := c.entries[keyStr]; exists {
		c.lruList.Remove(entry.element)
		delete(c.entries, keyStr)
	}
}

// must be called with lock held
func (c *Cache) evictLRU() {
	back := c.lruList.Back()
	if back == nil {
		return
	}
	keyStr := back.Value.(string)
	c.lruList.Remove(back)
	delete(c.entries, keyStr)
}

// CachedRepository is a read-through RuleRepository backed by a Cache
type CachedRepository struct {
	next  repositories.RuleRepository
	cache *Cache
}

var _ repositories.RuleRepository = (*CachedRepository)(nil)

// NewCachedRepository wraps next with cache
func NewCachedRepository(next repositories.RuleRepository, cache *Cache) *CachedRepository {
	return &CachedRepository{next: next, cache: cache}
}

// ListActive serves from the cache and falls back to the wrapped repository.
// Errors are never cached.
func (r *CachedRepository) ListActive(ctx context.Context, tenantID uuid.UUID, eventType string) ([]*models.Rule, error) {
	key := CacheKey{TenantID: tenantID, EventType: eventType}
	if rules, ok := r.cache.Get(key); ok {
		return rules, nil
	}

	rules, err := r.next.ListActive(ctx, tenantID, eventType)
	if err != nil {
		return nil, err
	}
	r.cache.Set(key, rules)
	return rules, nil
}
