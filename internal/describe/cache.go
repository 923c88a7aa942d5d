package describe

import (
	"time"

	lru "github.com/hashicorp/golang-lru"
)

type cacheEntry struct {
	desc      Description
	createdAt time.Time
}

// Cache is a size-bounded LRU of descriptions with a per-entry TTL.
type Cache struct {
	lru *lru.Cache
	ttl time.Duration
	now func() time.Time
}

// NewCache creates a description cache holding at most size entries.
func NewCache(size int, ttl time.Duration) (*Cache, error) {
	c, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &Cache{lru: c, ttl: ttl, now: time.Now}, nil
}

// Get retrieves a cached description by signature.
func (c *Cache) Get(signature string) (Description, bool) {
	v, ok := c.lru.Get(signature)
	if !ok {
		return Description{}, false
	}
	entry := v.(cacheEntry)
	if c.ttl > 0 && c.now().Sub(entry.createdAt) > c.ttl {
		c.lru.Remove(signature)
		return Description{}, false
	}
	d := entry.desc
	d.FromCache = true
	return d, true
}

// Put stores a description.
func (c *Cache) Put(signature string, d Description) {
	c.lru.Add(signature, cacheEntry{desc: d, createdAt: c.now()})
}

// Size returns the number of cached entries.
func (c *Cache) Size() int {
	return c.lru.Len()
}

// Clear empties the cache.
func (c *Cache) Clear() {
	c.lru.Purge()
}
