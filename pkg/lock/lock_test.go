package lock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func fastOpts() Options {
	return Options{TTL: time.Minute, RetryCount: 1, RetryDelay: time.Millisecond}
}

func TestAcquireIsExclusive(t *testing.T) {
	m := NewMemoryManager(0)
	ctx := context.Background()

	h1, ok := m.Acquire(ctx, "k", fastOpts())
	require.True(t, ok)
	require.NotNil(t, h1)

	_, ok = m.Acquire(ctx, "k", fastOpts())
	require.False(t, ok)

	// other keys are independent
	h2, ok := m.Acquire(ctx, "other", fastOpts())
	require.True(t, ok)
	h2.Release(ctx)

	h1.Release(ctx)
	h3, ok := m.Acquire(ctx, "k", fastOpts())
	require.True(t, ok)
	h3.Release(ctx)
}

func TestAcquireRetriesUntilReleased(t *testing.T) {
	m := NewMemoryManager(0)
	ctx := context.Background()

	h, ok := m.Acquire(ctx, "k", fastOpts())
	require.True(t, ok)

	go func() {
		time.Sleep(5 * time.Millisecond)
		h.Release(context.Background())
	}()

	h2, ok := m.Acquire(ctx, "k", Options{TTL: time.Minute, RetryCount: 50, RetryDelay: time.Millisecond})
	require.True(t, ok)
	h2.Release(ctx)
}

func TestAcquireGivesUpAfterRetries(t *testing.T) {
	m := NewMemoryManager(0)
	ctx := context.Background()

	h, ok := m.Acquire(ctx, "k", fastOpts())
	require.True(t, ok)
	defer h.Release(ctx)

	start := time.Now()
	_, ok = m.Acquire(ctx, "k", Options{TTL: time.Minute, RetryCount: 3, RetryDelay: time.Millisecond})
	require.False(t, ok)
	require.Less(t, time.Since(start), time.Second)
}

func TestExpiredLockIsReclaimable(t *testing.T) {
	m := NewMemoryManager(0)
	ctx := context.Background()

	_, ok := m.Acquire(ctx, "k", Options{TTL: time.Millisecond, RetryCount: 1})
	require.True(t, ok)

	time.Sleep(5 * time.Millisecond)

	h, ok := m.Acquire(ctx, "k", fastOpts())
	require.True(t, ok)
	h.Release(ctx)
}

func TestStaleReleaseDoesNotFreeNewHolder(t *testing.T) {
	m := NewMemoryManager(0)
	ctx := context.Background()

	stale, ok := m.Acquire(ctx, "k", Options{TTL: time.Millisecond, RetryCount: 1})
	require.True(t, ok)

	time.Sleep(5 * time.Millisecond)

	h, ok := m.Acquire(ctx, "k", fastOpts())
	require.True(t, ok)
	defer h.Release(ctx)

	// the expired holder releasing must not evict the current one
	stale.Release(ctx)
	_, ok = m.Acquire(ctx, "k", fastOpts())
	require.False(t, ok)
}

func TestReleaseIdempotentAndNilSafe(t *testing.T) {
	m := NewMemoryManager(0)
	ctx := context.Background()

	h, ok := m.Acquire(ctx, "k", fastOpts())
	require.True(t, ok)
	h.Release(ctx)
	h.Release(ctx)

	var nilHandle *Handle
	nilHandle.Release(ctx)
}

func TestAcquireAbortsOnContextCancel(t *testing.T) {
	m := NewMemoryManager(0)

	h, ok := m.Acquire(context.Background(), "k", fastOpts())
	require.True(t, ok)
	defer h.Release(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, ok = m.Acquire(ctx, "k", Options{TTL: time.Minute, RetryCount: 10, RetryDelay: time.Hour})
	require.False(t, ok)
}

func TestWithLockReleasesOnError(t *testing.T) {
	m := NewMemoryManager(0)
	ctx := context.Background()

	boom := errors.New("boom")
	acquired, err := WithLock(ctx, m, "k", fastOpts(), func(ctx context.Context) error {
		return boom
	})
	require.True(t, acquired)
	require.ErrorIs(t, err, boom)

	// the lock must be free again after the failed section
	acquired, err = WithLock(ctx, m, "k", fastOpts(), func(ctx context.Context) error {
		return nil
	})
	require.True(t, acquired)
	require.NoError(t, err)
}

func TestWithLockSkipsFnWhenNotAcquired(t *testing.T) {
	m := NewMemoryManager(0)
	ctx := context.Background()

	h, ok := m.Acquire(ctx, "k", fastOpts())
	require.True(t, ok)
	defer h.Release(ctx)

	ran := false
	acquired, err := WithLock(ctx, m, "k", fastOpts(), func(ctx context.Context) error {
		ran = true
		return nil
	})
	require.False(t, acquired)
	require.NoError(t, err)
	require.False(t, ran)
}

func TestConcurrentSectionsAreSerialized(t *testing.T) {
	m := NewMemoryManager(0)
	ctx := context.Background()

	var (
		mu      sync.Mutex
		inside  int
		maxSeen int
		wins    int
	)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			acquired, err := WithLock(ctx, m, "k", Options{TTL: time.Minute, RetryCount: 200, RetryDelay: time.Millisecond}, func(ctx context.Context) error {
				mu.Lock()
				inside++
				if inside > maxSeen {
					maxSeen = inside
				}
				mu.Unlock()

				time.Sleep(time.Millisecond)

				mu.Lock()
				inside--
				wins++
				mu.Unlock()
				return nil
			})
			require.NoError(t, err)
			require.True(t, acquired)
		}()
	}
	wg.Wait()

	require.Equal(t, 1, maxSeen)
	require.Equal(t, 16, wins)
}
