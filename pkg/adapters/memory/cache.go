package memory

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/pennywise-ai/pennywise/pkg/domain"
)

const (
	// DefaultCacheSize bounds the number of retained call records.
	DefaultCacheSize = 1024
	// DefaultCacheTTL is how long a record stays fresh.
	DefaultCacheTTL = 5 * time.Minute
)

// Cache implements ports.CallCache on an expirable LRU. Records are shared
// across sessions: keys are content-addressed, so identical aggregator or
// model queries hit regardless of which session issued them first.
type Cache struct {
	lru *lru.LRU[string, *domain.CallRecord]
}

// NewCache creates a call cache. Non-positive size or ttl fall back to the
// defaults.
func NewCache(size int, ttl time.Duration) *Cache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache{
		lru: lru.NewLRU[string, *domain.CallRecord](size, nil, ttl),
	}
}

// Get returns the fresh record for key, if any.
func (c *Cache) Get(ctx context.Context, key string) (*domain.CallRecord, bool) {
	return c.lru.Get(key)
}

// Put stores a record under its key.
func (c *Cache) Put(ctx context.Context, rec *domain.CallRecord) {
	c.lru.Add(rec.Key, rec)
}
