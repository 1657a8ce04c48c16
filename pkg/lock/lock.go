package lock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"rewardengine/pkg/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

// Options bounds a single acquisition attempt. TTL is the hard expiry of a
// held lock; acquisition gives up after RetryCount attempts spaced RetryDelay
// apart.
type Options struct {
	TTL        time.Duration
	RetryCount int
	RetryDelay time.Duration
}

func (o Options) withDefaults() Options {
	if o.TTL <= 0 {
		o.TTL = 10 * time.Second
	}
	if o.RetryCount < 1 {
		o.RetryCount = 1
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = 100 * time.Millisecond
	}
	return o
}

// Manager hands out single-holder locks keyed by string. Failure to acquire is
// a normal outcome, not an error.
type Manager interface {
	Acquire(ctx context.Context, key string, opts Options) (*Handle, bool)
}

// Handle represents a held lock. Release is idempotent and a no-op on a nil
// handle, so callers that never acquired can release unconditionally.
type Handle struct {
	once    sync.Once
	release func(ctx context.Context)
}

func (h *Handle) Release(ctx context.Context) {
	if h == nil || h.release == nil {
		return
	}
	h.once.Do(func() { h.release(ctx) })
}

// WithLock runs fn under the named lock. The lock is released on both normal
// return and error. The first result reports whether the lock was acquired at
// all; fn does not run when it is false.
func WithLock(ctx context.Context, m Manager, key string, opts Options, fn func(ctx context.Context) error) (bool, error) {
	handle, ok := m.Acquire(ctx, key, opts)
	if !ok {
		return false, nil
	}
	defer handle.Release(ctx)
	return true, fn(ctx)
}

func newToken() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return hex.EncodeToString([]byte(time.Now().Format(time.RFC3339Nano)))
	}
	return hex.EncodeToString(buf)
}

// sleep waits the retry delay, aborting early when ctx is done.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

var Module = fx.Module("lock",
	fx.Provide(Provide),
)

type Params struct {
	fx.In
	Cfg   *config.Config
	Redis *redis.Client `optional:"true"`
}

func Provide(p Params) Manager {
	if p.Cfg.Lock.Backend == "memory" || p.Redis == nil {
		return NewMemoryManager(time.Minute)
	}
	return NewRedisManager(p.Redis)
}
