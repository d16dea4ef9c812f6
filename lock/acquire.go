package lock

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"math"
	"time"

	"github.com/cockroachdb/errors"
)

// Backoff bounds the retry loop of Acquire.
type Backoff struct {
	Attempts int           // total TryAcquire calls; <= 0 => 1
	Base     time.Duration // first wait; doubles every attempt
	Max      time.Duration // cap per wait; 0 => no cap
}

// maxDelay leaves headroom for jitter on top of an uncapped wait.
const maxDelay = time.Duration(math.MaxInt64 / 2)

// Delay returns the wait after the given zero-based failed attempt,
// including up to 20% jitter.
func (b Backoff) Delay(attempt int) time.Duration {
	if b.Base <= 0 {
		return 0
	}
	ceiling := b.Max
	if ceiling <= 0 || ceiling > maxDelay {
		ceiling = maxDelay
	}
	d := min(b.Base, ceiling)
	for i := 0; i < attempt && d < ceiling; i++ {
		if d > ceiling/2 {
			d = ceiling
			break
		}
		d *= 2
	}
	return d + time.Duration(jitter(int64(d/5)))
}

// Acquire retries TryAcquire until it succeeds, the attempt budget runs out
// (ErrBusy) or ctx is done.
func Acquire(ctx context.Context, l Locker, key string, ttl time.Duration, b Backoff) (string, error) {
	attempts := b.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	for attempt := 0; attempt < attempts; attempt++ {
		token, ok, err := l.TryAcquire(ctx, key, ttl)
		if err != nil {
			return "", err
		}
		if ok {
			return token, nil
		}
		if attempt == attempts-1 {
			break
		}
		if err := sleep(ctx, b.Delay(attempt)); err != nil {
			return "", err
		}
	}
	return "", errors.Mark(errors.Newf("lock %s: gave up after %d attempts", key, attempts), ErrBusy)
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func jitter(n int64) int64 {
	if n <= 0 {
		return 0
	}
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0
	}
	// #nosec G115 -- high bit masked off
	return int64(binary.BigEndian.Uint64(buf[:])&0x7FFFFFFFFFFFFFFF) % n
}
