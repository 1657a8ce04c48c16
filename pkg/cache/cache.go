package cache

import (
	"context"
	"errors"
	"time"

	"rewardengine/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

// ErrCacheMiss is returned by Get when the key is absent or the backend
// faulted. Callers treat both identically to a cold read; the cache is never
// the system of record.
var ErrCacheMiss = errors.New("cache: miss")

var (
	cacheHits = prometheus.NewCounter(prometheus.CounterOpts{Name: "engine_cache_hits_total"})
	cacheMiss = prometheus.NewCounter(prometheus.CounterOpts{Name: "engine_cache_miss_total"})
)

// Cache is a best-effort key/value store with TTL and glob invalidation.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	DelPattern(ctx context.Context, pattern string) error
	GetOrSet(ctx context.Context, key string, ttl time.Duration, factory func(ctx context.Context) (string, error)) (string, error)
}

var Module = fx.Module("cache",
	fx.Provide(Provide),
)

type Params struct {
	fx.In
	Cfg   *config.Config
	Redis *redis.Client `optional:"true"`
}

func Provide(p Params) Cache {
	if p.Cfg.Cache.Backend == "memory" || p.Redis == nil {
		return NewMemory(time.Minute)
	}
	return NewRedis(p.Redis)
}
