package voice

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hivedesk/engage-platform/pkg/logging"
)

// RedisCache backs ConfigCache with a shared Redis instance so that multiple
// API replicas see the same invalidations. TTL expiry is delegated to Redis.
type RedisCache struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *logging.Logger
}

// NewRedisCache creates a Redis-backed config cache. A zero ttl uses
// DefaultCacheTTL.
func NewRedisCache(rdb *redis.Client, ttl time.Duration, logger *logging.Logger) *RedisCache {
	if rdb == nil {
		panic("voice: redis client required")
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &RedisCache{rdb: rdb, ttl: ttl, logger: logger}
}

// Get fetches and unmarshals the cached value. Errors degrade to a miss; the
// caller falls through to the repository.
func (c *RedisCache) Get(ctx context.Context, key string, dest any) bool {
	data, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("voice cache: redis get failed", "error", err, "key", key)
		}
		return false
	}
	return json.Unmarshal(data, dest) == nil
}

// Set stores the value with the cache TTL. Failures are logged, not raised;
// the cache is best-effort.
func (c *RedisCache) Set(ctx context.Context, key string, value any) {
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Warn("voice cache: redis set failed", "error", err, "key", key)
	}
}

// Invalidate scans for every key tagged with the tenant id and deletes them.
func (c *RedisCache) Invalidate(ctx context.Context, tenantID string) {
	c.deleteByPattern(ctx, cacheKeyPrefix+"*"+tenantTag(tenantID))
}

// Clear removes every voice config cache entry.
func (c *RedisCache) Clear(ctx context.Context) {
	c.deleteByPattern(ctx, cacheKeyPrefix+"*")
}

func (c *RedisCache) deleteByPattern(ctx context.Context, pattern string) {
	iter := c.rdb.Scan(ctx, 0, pattern, 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		c.logger.Warn("voice cache: redis scan failed", "error", err, "pattern", pattern)
		return
	}
	if len(keys) == 0 {
		return
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		c.logger.Warn("voice cache: redis delete failed", "error", err, "pattern", pattern)
	}
}

var _ ConfigCache = (*RedisCache)(nil)
