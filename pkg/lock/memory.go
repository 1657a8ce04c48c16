package lock

import (
	"context"
	"sync"
	"time"
)

type memoryLock struct {
	token     string
	expiresAt time.Time
}

// memoryManager is the single-process backend. Expired locks are reclaimable
// immediately on acquire and swept on an interval.
type memoryManager struct {
	mu    sync.Mutex
	locks map[string]memoryLock
	stop  chan struct{}
	once  sync.Once
}

// NewMemoryManager returns an in-process Manager sweeping expired locks every
// sweepInterval.
func NewMemoryManager(sweepInterval time.Duration) *memoryManager {
	m := &memoryManager{
		locks: make(map[string]memoryLock),
		stop:  make(chan struct{}),
	}
	if sweepInterval > 0 {
		go m.janitor(sweepInterval)
	}
	return m
}

func (m *memoryManager) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case now := <-ticker.C:
			m.mu.Lock()
			for key, l := range m.locks {
				if now.After(l.expiresAt) {
					delete(m.locks, key)
				}
			}
			m.mu.Unlock()
		}
	}
}

// Close stops the janitor. Safe to call more than once.
func (m *memoryManager) Close() {
	m.once.Do(func() { close(m.stop) })
}

func (m *memoryManager) tryAcquire(key, token string, ttl time.Duration) bool {
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()

	if current, ok := m.locks[key]; ok && now.Before(current.expiresAt) {
		return false
	}
	m.locks[key] = memoryLock{token: token, expiresAt: now.Add(ttl)}
	return true
}

func (m *memoryManager) releaseIfHolder(key, token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if current, ok := m.locks[key]; ok && current.token == token {
		delete(m.locks, key)
	}
}

func (m *memoryManager) Acquire(ctx context.Context, key string, opts Options) (*Handle, bool) {
	opts = opts.withDefaults()
	token := newToken()

	for attempt := 0; attempt < opts.RetryCount; attempt++ {
		if attempt > 0 && !sleep(ctx, opts.RetryDelay) {
			return nil, false
		}
		if m.tryAcquire(key, token, opts.TTL) {
			return &Handle{release: func(context.Context) {
				m.releaseIfHolder(key, token)
			}}, true
		}
	}
	return nil, false
}
