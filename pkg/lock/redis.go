package lock

import (
	"context"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// releaseScript deletes the key only while this holder's token is still in
// place, so a lock that expired and was re-acquired by someone else is never
// released out from under them.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// redisManager is the multi-instance backend. Expiry is passive: redis drops
// the key when the TTL elapses.
type redisManager struct {
	rdb *redis.Client
}

// NewRedisManager returns a Manager sharing lock state through redis.
func NewRedisManager(rdb *redis.Client) *redisManager {
	return &redisManager{rdb: rdb}
}

func (m *redisManager) Acquire(ctx context.Context, key string, opts Options) (*Handle, bool) {
	opts = opts.withDefaults()
	token := newToken()

	for attempt := 0; attempt < opts.RetryCount; attempt++ {
		if attempt > 0 && !sleep(ctx, opts.RetryDelay) {
			return nil, false
		}

		ok, err := m.rdb.SetNX(ctx, key, token, opts.TTL).Result()
		if err != nil {
			zap.L().Warn("lock acquire attempt failed", zap.String("key", key), zap.Error(err))
			continue
		}
		if ok {
			return &Handle{release: func(ctx context.Context) {
				if err := releaseScript.Run(ctx, m.rdb, []string{key}, token).Err(); err != nil {
					zap.L().Warn("lock release failed, relying on TTL expiry", zap.String("key", key), zap.Error(err))
				}
			}}, true
		}
	}
	return nil, false
}
