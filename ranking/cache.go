package ranking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/researchaccelerator-hub/song-tracker/model"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultCacheTTL bounds how stale a cached ranking can get between runs
	DefaultCacheTTL = 10 * time.Minute
	keyPrefix       = "songtracker:ranking:"
)

// Cache is a Redis cache-aside layer for ranking reads. A Cache without a
// client is disabled and every operation is a no-op.
type Cache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewCache connects to redisURL. An empty URL, a bad URL or an unreachable
// server yields a disabled cache rather than an error.
func NewCache(ctx context.Context, redisURL string, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if redisURL == "" {
		log.Info().Msg("No Redis URL configured, ranking cache disabled")
		return &Cache{ttl: ttl}
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		log.Warn().Err(err).Msg("Invalid Redis URL, ranking cache disabled")
		return &Cache{ttl: ttl}
	}

	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		log.Warn().Err(err).Msg("Redis connection failed, ranking cache disabled")
		_ = rdb.Close()
		return &Cache{ttl: ttl}
	}

	log.Info().Dur("ttl", ttl).Msg("Ranking cache enabled")
	return &Cache{rdb: rdb, ttl: ttl}
}

// Enabled reports whether the cache talks to Redis.
func (c *Cache) Enabled() bool {
	return c != nil && c.rdb != nil
}

// Get returns the cached items for key. The second result is false on a miss,
// on any Redis error, and when the cache is disabled.
func (c *Cache) Get(ctx context.Context, key string) ([]model.TrackedItem, bool) {
	if !c.Enabled() {
		return nil, false
	}

	data, err := c.rdb.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Ranking cache read failed")
		return nil, false
	}

	var items []model.TrackedItem
	if err := json.Unmarshal(data, &items); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Discarding undecodable cached ranking")
		return nil, false
	}
	return items, true
}

// Set stores items under key for the cache TTL.
func (c *Cache) Set(ctx context.Context, key string, items []model.TrackedItem) error {
	if !c.Enabled() {
		return nil
	}
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode ranking: %w", err)
	}
	return c.rdb.Set(ctx, keyPrefix+key, data, c.ttl).Err()
}

// Invalidate deletes every cached ranking.
func (c *Cache) Invalidate(ctx context.Context) error {
	if !c.Enabled() {
		return nil
	}

	iter := c.rdb.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan ranking keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("delete ranking keys: %w", err)
	}

	log.Debug().Int("keys", len(keys)).Msg("Invalidated ranking cache")
	return nil
}

// Close shuts down the Redis connection.
func (c *Cache) Close() error {
	if !c.Enabled() {
		return nil
	}
	return c.rdb.Close()
}

func cacheKey(kind Kind, n int) string {
	return fmt.Sprintf("%s:%d", kind, n)
}
