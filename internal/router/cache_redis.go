package router

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"darpnav/internal/darp"
)

// RedisCache is a read-through cache in front of another oracle. Road
// travel times drift slowly, so entries carry a TTL instead of explicit
// invalidation. Cache errors degrade to the inner oracle.
type RedisCache struct {
	inner darp.TravelTimeOracle
	rdb   *redis.Client
	mode  string
	ttl   time.Duration
}

func NewRedisCache(inner darp.TravelTimeOracle, rdb *redis.Client, mode string, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisCache{inner: inner, rdb: rdb, mode: mode, ttl: ttl}
}

func (c *RedisCache) key(from, to darp.Location) string {
	return fmt.Sprintf("tt:%s:%s:%s", c.mode, from, to)
}

func (c *RedisCache) TravelTime(ctx context.Context, from, to darp.Location) (float64, error) {
	key := c.key(from, to)
	if raw, err := c.rdb.Get(ctx, key).Result(); err == nil {
		if tt, err := strconv.ParseFloat(raw, 64); err == nil {
			return tt, nil
		}
	}
	tt, err := c.inner.TravelTime(ctx, from, to)
	if err != nil {
		return 0, err
	}
	_ = c.rdb.Set(ctx, key, strconv.FormatFloat(tt, 'g', -1, 64), c.ttl).Err()
	return tt, nil
}
