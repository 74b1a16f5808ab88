package voice

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"
)

// DefaultCacheTTL bounds how stale a cached tenant voice config may be during
// a live call.
const DefaultCacheTTL = 60 * time.Second

const cacheKeyPrefix = "voice:cfg:"

// ConfigCache is a read-through cache for tenant voice configuration. It is
// never a source of truth: a miss is always recoverable from the repository.
// Implementations must be safe for concurrent use.
type ConfigCache interface {
	// Get unmarshals the cached value for key into dest and reports whether a
	// live entry was found. Expired entries are evicted and treated as misses.
	Get(ctx context.Context, key string, dest any) bool
	// Set stores value under key with the cache's TTL.
	Set(ctx context.Context, key string, value any)
	// Invalidate removes every entry tagged with the tenant id.
	Invalidate(ctx context.Context, tenantID string)
	// Clear removes all entries.
	Clear(ctx context.Context)
}

// cacheKey builds a purpose-scoped, tenant-tagged key, e.g.
// "voice:cfg:handoff:tenant:t-123". Tag invalidation matches on the
// ":tenant:<id>" suffix.
func cacheKey(purpose, tenantID string) string {
	return cacheKeyPrefix + purpose + ":tenant:" + tenantID
}

func tenantTag(tenantID string) string {
	return ":tenant:" + tenantID
}

type memoryCacheEntry struct {
	data     []byte
	storedAt time.Time
}

// MemoryCache is the in-process ConfigCache backing. Values are stored as
// JSON so that Get/Set semantics match the Redis backing exactly.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryCacheEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryCache creates an in-memory cache with the given TTL. A zero ttl
// uses DefaultCacheTTL.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &MemoryCache{
		entries: make(map[string]memoryCacheEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns the cached value if it is younger than the TTL, evicting it
// otherwise.
func (c *MemoryCache) Get(_ context.Context, key string, dest any) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return false
	}
	if c.now().Sub(entry.storedAt) >= c.ttl {
		delete(c.entries, key)
		return false
	}
	return json.Unmarshal(entry.data, dest) == nil
}

// Set inserts or overwrites the entry with the current timestamp.
func (c *MemoryCache) Set(_ context.Context, key string, value any) {
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	c.mu.Lock()
	c.entries[key] = memoryCacheEntry{data: data, storedAt: c.now()}
	c.mu.Unlock()
}

// Invalidate removes every key tagged with the tenant id. The tag is the key
// suffix, so "t-1" must not evict "t-12".
func (c *MemoryCache) Invalidate(_ context.Context, tenantID string) {
	tag := tenantTag(tenantID)
	c.mu.Lock()
	for key := range c.entries {
		if strings.HasSuffix(key, tag) {
			delete(c.entries, key)
		}
	}
	c.mu.Unlock()
}

// Clear removes all entries.
func (c *MemoryCache) Clear(_ context.Context) {
	c.mu.Lock()
	c.entries = make(map[string]memoryCacheEntry)
	c.mu.Unlock()
}

var _ ConfigCache = (*MemoryCache)(nil)
