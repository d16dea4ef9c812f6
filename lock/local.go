package lock

import (
	"context"
	"sync"
	"time"

	"github.com/unkn0wn-root/flashcache/internal/clock"
)

type held struct {
	token string
	exp   time.Time
}

// sweepEvery is how often TryAcquire drops locks that expired unreleased.
const sweepEvery = time.Minute

// Local is an in-process Locker. It gives no guarantee across processes.
type Local struct {
	mu        sync.Mutex
	locks     map[string]held
	clock     clock.Clock
	nextSweep time.Time
}

var _ Locker = (*Local)(nil)

// NewLocal returns an empty lock table. A nil clock uses wall time.
func NewLocal(c clock.Clock) *Local {
	if c == nil {
		c = clock.NewRealClock()
	}
	return &Local{locks: make(map[string]held), clock: c, nextSweep: c.Now().Add(sweepEvery)}
}

func (l *Local) TryAcquire(_ context.Context, key string, ttl time.Duration) (string, bool, error) {
	if ttl <= 0 {
		return "", false, ErrInvalidTTL
	}
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()
	if !now.Before(l.nextSweep) {
		l.sweep(now)
	}
	if h, ok := l.locks[key]; ok && now.Before(h.exp) {
		return "", false, nil
	}
	token := newToken()
	l.locks[key] = held{token: token, exp: now.Add(ttl)}
	return token, true, nil
}

func (l *Local) Release(_ context.Context, key, token string) (bool, error) {
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()
	h, ok := l.locks[key]
	if !ok || h.token != token {
		return false, nil
	}
	delete(l.locks, key)
	// an expired lock is gone already from every other caller's view
	return now.Before(h.exp), nil
}

// Held reports whether key is currently locked.
func (l *Local) Held(key string) bool {
	now := l.clock.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	h, ok := l.locks[key]
	if ok && !now.Before(h.exp) {
		delete(l.locks, key)
		return false
	}
	return ok
}

// Len reports how many locks are in the table, expired ones not yet swept
// included.
func (l *Local) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

func (l *Local) sweep(now time.Time) {
	for k, h := range l.locks {
		if !now.Before(h.exp) {
			delete(l.locks, k)
		}
	}
	l.nextSweep = now.Add(sweepEvery)
}
