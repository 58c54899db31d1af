package domain

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache is a Cache backed by Redis, letting the domain-classify cache
// survive process restarts and be shared by multiple psychoportald
// instances talking to the same graph.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache dials addr and confirms liveness with a PING; returns an
// error if Redis is unreachable so the caller can fall back to the
// in-process Cache instead of silently degrading.
func NewRedisCache(ctx context.Context, addr string) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &RedisCache{client: client, ttl: 24 * time.Hour}, nil
}

func (c *RedisCache) key(prefix string) string {
	return "psychoportal:domain_classify:" + prefix
}

// Get returns the cached domain for prefix, treating any Redis error (miss
// or otherwise) as a cache miss; classification is cheap to recompute.
func (c *RedisCache) Get(ctx context.Context, prefix string) (string, bool) {
	v, err := c.client.Get(ctx, c.key(prefix)).Result()
	if err != nil {
		return "", false
	}
	return v, true
}

// Set stores the classified domain with a TTL; errors are swallowed, since
// the cache is a pure optimization over the LLM fallback call.
func (c *RedisCache) Set(ctx context.Context, prefix, domain string) {
	_ = c.client.Set(ctx, c.key(prefix), domain, c.ttl).Err()
}

// Close releases the underlying connection pool.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
