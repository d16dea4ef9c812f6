package lock

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/flashcache/internal/clock"
)

func newRedisLocker(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedis(rdb), mr
}

func TestRedisTryAcquireIsExclusive(t *testing.T) {
	ctx := context.Background()
	l, mr := newRedisLocker(t)

	tok, ok, err := l.TryAcquire(ctx, "app:lock:shop:1", 10*time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotEmpty(t, tok)
	assert.Equal(t, 10*time.Second, mr.TTL("app:lock:shop:1"))

	_, ok, err = l.TryAcquire(ctx, "app:lock:shop:1", 10*time.Second)
	require.NoError(t, err)
	assert.False(t, ok, "second caller must not acquire a held lock")

	released, err := l.Release(ctx, "app:lock:shop:1", tok)
	require.NoError(t, err)
	assert.True(t, released)

	_, ok, err = l.TryAcquire(ctx, "app:lock:shop:1", 10*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

// A holder whose ttl lapsed must not delete the lock now owned by another caller.
func TestRedisStaleHolderCannotRelease(t *testing.T) {
	ctx := context.Background()
	l, mr := newRedisLocker(t)

	first, ok, err := l.TryAcquire(ctx, "k", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)

	second, ok, err := l.TryAcquire(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	released, err := l.Release(ctx, "k", first)
	require.NoError(t, err)
	assert.False(t, released)
	got, err := mr.Get("k")
	require.NoError(t, err)
	assert.Equal(t, second, got)
}

func TestRedisRejectsNonPositiveTTL(t *testing.T) {
	l, _ := newRedisLocker(t)
	_, _, err := l.TryAcquire(context.Background(), "k", 0)
	assert.ErrorIs(t, err, ErrInvalidTTL)
}

func TestLocalTokenSemantics(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewMockClock(time.Unix(100, 0))
	l := NewLocal(clk)

	first, ok, err := l.TryAcquire(ctx, "k", time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, l.Held("k"))

	released, err := l.Release(ctx, "k", "someone-else")
	require.NoError(t, err)
	assert.False(t, released)
	assert.True(t, l.Held("k"))

	clk.Add(time.Second)
	assert.False(t, l.Held("k"))

	second, ok, err := l.TryAcquire(ctx, "k", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	released, err = l.Release(ctx, "k", first)
	require.NoError(t, err)
	assert.False(t, released)

	released, err = l.Release(ctx, "k", second)
	require.NoError(t, err)
	assert.True(t, released)
	assert.False(t, l.Held("k"))
}

func TestLocalSweepsExpiredLocks(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewMockClock(time.Unix(100, 0))
	l := NewLocal(clk)

	for i := 0; i < 50; i++ {
		_, ok, err := l.TryAcquire(ctx, fmt.Sprintf("user:%d", i), time.Second)
		require.NoError(t, err)
		require.True(t, ok)
	}
	live, ok, err := l.TryAcquire(ctx, "live", time.Hour)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 51, l.Len())

	clk.Add(sweepEvery)
	_, ok, err = l.TryAcquire(ctx, "next", time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, l.Len(), "only live and next remain")

	released, err := l.Release(ctx, "live", live)
	require.NoError(t, err)
	assert.True(t, released)
}

func TestLocalConcurrentTryAcquire(t *testing.T) {
	ctx := context.Background()
	l := NewLocal(nil)

	var winners atomic.Int32
	var wg sync.WaitGroup
	for range 64 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok, _ := l.TryAcquire(ctx, "hot", time.Minute); ok {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), winners.Load())
}

func TestAcquireGivesUpWithBusy(t *testing.T) {
	ctx := context.Background()
	l := NewLocal(nil)
	_, ok, _ := l.TryAcquire(ctx, "k", time.Minute)
	require.True(t, ok)

	start := time.Now()
	_, err := Acquire(ctx, l, "k", time.Minute, Backoff{Attempts: 3, Base: time.Millisecond, Max: 4 * time.Millisecond})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBusy))
	assert.Less(t, time.Since(start), time.Second)
}

func TestAcquireWaitsForRelease(t *testing.T) {
	ctx := context.Background()
	l := NewLocal(nil)
	tok, ok, _ := l.TryAcquire(ctx, "k", time.Minute)
	require.True(t, ok)

	go func() {
		time.Sleep(20 * time.Millisecond)
		_, _ = l.Release(ctx, "k", tok)
	}()

	got, err := Acquire(ctx, l, "k", time.Minute, Backoff{Attempts: 50, Base: 2 * time.Millisecond, Max: 10 * time.Millisecond})
	require.NoError(t, err)
	assert.NotEqual(t, tok, got)
}

func TestAcquireHonorsContext(t *testing.T) {
	l := NewLocal(nil)
	_, ok, _ := l.TryAcquire(context.Background(), "k", time.Minute)
	require.True(t, ok)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Acquire(ctx, l, "k", time.Minute, Backoff{Attempts: 5, Base: time.Second})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBackoffDelay(t *testing.T) {
	b := Backoff{Base: 10 * time.Millisecond, Max: 40 * time.Millisecond}
	for attempt, floor := range []time.Duration{10, 20, 40, 40, 40} {
		d := b.Delay(attempt)
		floor *= time.Millisecond
		assert.GreaterOrEqual(t, d, floor, "attempt %d", attempt)
		assert.LessOrEqual(t, d, floor+floor/5, "attempt %d", attempt)
	}
	assert.Equal(t, time.Duration(0), Backoff{}.Delay(3))
}

func TestBackoffDelayNeverWrapsAround(t *testing.T) {
	b := Backoff{Base: 10 * time.Second}
	for attempt := 0; attempt < 200; attempt++ {
		require.GreaterOrEqual(t, b.Delay(attempt), b.Base, "attempt %d", attempt)
	}
	assert.GreaterOrEqual(t, b.Delay(199), maxDelay)

	capped := Backoff{Base: 10 * time.Second, Max: time.Minute}
	d := capped.Delay(40)
	assert.GreaterOrEqual(t, d, time.Minute)
	assert.LessOrEqual(t, d, time.Minute+time.Minute/5)
}
