// Package bootstrap centralizes optional-dependency wiring shared by the
// binaries: Redis, the voice config cache, and notification senders.
package bootstrap

import (
	"context"
	"crypto/tls"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	appconfig "github.com/hivedesk/engage-platform/internal/config"
	"github.com/hivedesk/engage-platform/internal/voice"
	"github.com/hivedesk/engage-platform/pkg/logging"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		return nil
	}
	return client
}

// BuildConfigCache returns the Redis-backed voice config cache when Redis is
// available, otherwise the in-process cache. Both enforce the same TTL so a
// settings change is visible mid-call within one cache window.
func BuildConfigCache(redisClient *redis.Client, ttl time.Duration, logger *logging.Logger) voice.ConfigCache {
	if redisClient != nil {
		return voice.NewRedisCache(redisClient, ttl, logger)
	}
	return voice.NewMemoryCache(ttl)
}
