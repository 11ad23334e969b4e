package blogvault

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/url"
	"time"

	"github.com/redis/go-redis/v9"
)

// cachePrefix namespaces every key before it touches Redis. Callers only ever
// see the logical key.
const cachePrefix = "blog:"

// Logical cache keys, kept in one place so they don't spread through the code.
const (
	cacheKeyPostsList      = "posts:list"
	cacheKeyAbout          = "about:content"
	cacheKeyGalleryFolders = "gallery:folders"
)

func cacheKeyPost(id string) string          { return "posts:" + id }
func cacheKeyPostSlug(slug string) string    { return "posts:slug:" + slug }
func cacheKeyGalleryFolder(id string) string { return "gallery:folder:" + id }

// skipCacheParam is the well-known query parameter that requests a cache
// read bypass. Writes always invalidate regardless of it.
const skipCacheParam = "flight"

// Cache is the read-through cache in front of the document store. Every
// operation degrades to a no-op or a miss when the backend is unavailable:
// the store stays authoritative and callers never see a cache error.
type Cache struct {
	rdb        *redis.Client
	defaultTTL time.Duration
	log        *slog.Logger
}

// NewCache connects to Redis at redisURL. An empty or unparseable URL yields
// a disabled cache where every read is a miss.
func NewCache(redisURL string, defaultTTL time.Duration, log *slog.Logger) *Cache {
	c := &Cache{defaultTTL: defaultTTL, log: log}
	if redisURL == "" {
		log.Info("cache disabled: no redis url configured")
		return c
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		log.Warn("cache disabled: bad redis url", "error", err)
		return c
	}
	c.rdb = redis.NewClient(opts)
	return c
}

// Get loads the value at key into dest. Returns false on miss, backend
// failure, or an undecodable entry.
func (c *Cache) Get(ctx context.Context, key string, dest any) bool {
	if c.rdb == nil {
		return false
	}
	b, err := c.rdb.Get(ctx, cachePrefix+key).Bytes()
	if err == redis.Nil {
		c.log.Debug("cache miss", "key", key)
		return false
	}
	if err != nil {
		c.log.Warn("cache get failed", "key", key, "error", err)
		return false
	}
	if err := json.Unmarshal(b, dest); err != nil {
		c.log.Warn("cache entry undecodable, dropping", "key", key, "error", err)
		c.rdb.Del(ctx, cachePrefix+key)
		return false
	}
	c.log.Debug("cache hit", "key", key)
	return true
}

// Set stores v at key. A zero ttl uses the cache default.
func (c *Cache) Set(ctx context.Context, key string, v any, ttl time.Duration) {
	if c.rdb == nil {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		c.log.Warn("cache set: marshal failed", "key", key, "error", err)
		return
	}
	if ttl == 0 {
		ttl = c.defaultTTL
	}
	if err := c.rdb.Set(ctx, cachePrefix+key, b, ttl).Err(); err != nil {
		c.log.Warn("cache set failed", "key", key, "error", err)
	}
}

// Delete removes the given logical keys.
func (c *Cache) Delete(ctx context.Context, keys ...string) {
	if c.rdb == nil || len(keys) == 0 {
		return
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = cachePrefix + k
	}
	if err := c.rdb.Del(ctx, full...).Err(); err != nil {
		c.log.Warn("cache delete failed", "keys", keys, "error", err)
	}
}

// DeleteByPattern removes every key matching the prefix-qualified glob. Used
// after structural changes where the affected sub-keys are not individually
// known, e.g. deleting a gallery folder.
func (c *Cache) DeleteByPattern(ctx context.Context, pattern string) {
	if c.rdb == nil {
		return
	}
	iter := c.rdb.Scan(ctx, 0, cachePrefix+pattern, 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		c.log.Warn("cache scan failed", "pattern", pattern, "error", err)
		return
	}
	if len(keys) == 0 {
		return
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		c.log.Warn("cache pattern delete failed", "pattern", pattern, "error", err)
		return
	}
	c.log.Debug("cache pattern delete", "pattern", pattern, "deleted", len(keys))
}

// Close releases the Redis connection.
func (c *Cache) Close() {
	if c.rdb != nil {
		c.rdb.Close()
	}
}

// ShouldSkipCache reports whether the request URL opts out of cache reads
// via ?flight=skipCache.
func ShouldSkipCache(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return u.Query().Get(skipCacheParam) == "skipCache"
}
