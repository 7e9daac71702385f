package redis

import (
	"context"
	"encoding/json"
	"time"

	backend "github.com/redis/go-redis/v9"

	"github.com/pennywise-ai/pennywise/pkg/domain"
)

// Cache implements ports.CallCache on Redis, shared by every replica.
// Keys are content-addressed hashes, so identical external calls are
// deduplicated across sessions and across processes.
type Cache struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

// CacheOption configures the cache.
type CacheOption func(*Cache)

// WithCacheTTL sets the record expiration (default 5m).
func WithCacheTTL(ttl time.Duration) CacheOption {
	return func(c *Cache) { c.ttl = ttl }
}

// WithCachePrefix sets the key prefix for call records.
func WithCachePrefix(prefix string) CacheOption {
	return func(c *Cache) { c.prefix = prefix }
}

// NewCache creates a call cache from an existing client.
func NewCache(client *backend.Client, opts ...CacheOption) *Cache {
	c := &Cache{
		client: client,
		prefix: "pennywise:call:",
		ttl:    5 * time.Minute,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the record for key, if present and unexpired.
func (c *Cache) Get(ctx context.Context, key string) (*domain.CallRecord, bool) {
	val, err := c.client.Get(ctx, c.prefix+key).Result()
	if err != nil {
		return nil, false
	}
	var rec domain.CallRecord
	if err := json.Unmarshal([]byte(val), &rec); err != nil {
		return nil, false
	}
	return &rec, true
}

// Put stores a record under its key with the configured TTL. Cache writes
// are best effort; a failed Put only costs a future re-invocation.
func (c *Cache) Put(ctx context.Context, rec *domain.CallRecord) {
	data, err := json.Marshal(rec)
	if err != nil {
		return
	}
	c.client.Set(ctx, c.prefix+rec.Key, data, c.ttl)
}
