package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

type redisCache struct {
	rdb   *redis.Client
	group singleflight.Group
}

// NewRedis returns a Cache backed by a shared redis instance.
func NewRedis(rdb *redis.Client) Cache {
	return &redisCache{rdb: rdb}
}

func (c *redisCache) Get(ctx context.Context, key string) (string, error) {
	val, err := c.rdb.Get(ctx, key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			zap.L().Warn("cache get failed, treating as miss", zap.String("key", key), zap.Error(err))
		}
		cacheMiss.Inc()
		return "", ErrCacheMiss
	}
	cacheHits.Inc()
	return val, nil
}

func (c *redisCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := c.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		zap.L().Warn("cache set failed", zap.String("key", key), zap.Error(err))
		return err
	}
	return nil
}

func (c *redisCache) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		zap.L().Warn("cache del failed", zap.Strings("keys", keys), zap.Error(err))
		return err
	}
	return nil
}

func (c *redisCache) DelPattern(ctx context.Context, pattern string) error {
	iter := c.rdb.Scan(ctx, 0, pattern, 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		zap.L().Warn("cache scan failed", zap.String("pattern", pattern), zap.Error(err))
		return err
	}
	return c.Del(ctx, keys...)
}

func (c *redisCache) GetOrSet(ctx context.Context, key string, ttl time.Duration, factory func(ctx context.Context) (string, error)) (string, error) {
	if val, err := c.Get(ctx, key); err == nil {
		return val, nil
	}

	// singleflight collapses concurrent factory calls for the same key
	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		fresh, err := factory(ctx)
		if err != nil {
			return "", err
		}
		_ = c.Set(ctx, key, fresh, ttl)
		return fresh, nil
	})
	if err != nil {
		return "", err
	}
	return val.(string), nil
}
