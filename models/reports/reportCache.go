package reports

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache TTLs. Time-series and summary results change slowly relative to how
// often dashboards poll them; the filterable table is higher-cardinality and
// refreshed more aggressively. There is no invalidation on ingest: staleness
// is bounded by the TTL.
const (
	seriesCacheTTL = time.Hour
	tableCacheTTL  = 5 * time.Minute
)

// Cache is a pure lookaside for report payloads: on miss compute and store,
// on hit return the stored value unchanged.
type Cache interface {
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, obj any, ttl time.Duration) error
}

// RedisCache stores JSON-encoded report payloads in Redis. A nil client
// degrades to always-miss so the service keeps working without Redis.
type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) Get(ctx context.Context, key string, dest any) (bool, error) {
	if c == nil || c.client == nil {
		return false, nil
	}
	val, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal([]byte(val), dest); err != nil {
		return false, err
	}
	return true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, obj any, ttl time.Duration) error {
	if c == nil || c.client == nil {
		return nil
	}
	objInByte, err := json.Marshal(obj)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, objInByte, ttl).Err()
}

// MemoryCache mirrors RedisCache semantics in-process (JSON payloads, TTL
// expiry). Used by the CLIs and in tests.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	payload   []byte
	expiresAt time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (c *MemoryCache) Get(ctx context.Context, key string, dest any) (bool, error) {
	c.mu.Lock()
	entry, ok := c.entries[key]
	if ok && !entry.expiresAt.IsZero() && c.now().After(entry.expiresAt) {
		delete(c.entries, key)
		ok = false
	}
	c.mu.Unlock()
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(entry.payload, dest); err != nil {
		return false, err
	}
	return true, nil
}

func (c *MemoryCache) Set(ctx context.Context, key string, obj any, ttl time.Duration) error {
	payload, err := json.Marshal(obj)
	if err != nil {
		return err
	}
	entry := memoryEntry{payload: payload}
	if ttl > 0 {
		entry.expiresAt = c.now().Add(ttl)
	}
	c.mu.Lock()
	c.entries[key] = entry
	c.mu.Unlock()
	return nil
}

// cacheKey builds the canonical key for one report invocation: the operation
// name plus the applied filters as sorted key=value pairs. Identical filter
// sets always produce identical keys regardless of argument order.
func cacheKey(op string, filters map[string]string) string {
	keys := make([]string, 0, len(filters))
	for k, v := range filters {
		if v == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("report:")
	b.WriteString(op)
	for _, k := range keys {
		b.WriteString("|")
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(filters[k])
	}
	return b.String()
}

// fetchCached is the lookaside: cache errors fall through to a fresh compute
// so Redis trouble never takes reports down.
func fetchCached[T any](ctx context.Context, c Cache, key string, ttl time.Duration, compute func() (T, error)) (T, error) {
	var cached T
	if found, err := c.Get(ctx, key, &cached); err == nil && found {
		return cached, nil
	}

	result, err := compute()
	if err != nil {
		return result, err
	}
	_ = c.Set(ctx, key, result, ttl)
	return result, nil
}
