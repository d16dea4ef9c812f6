// Package lock provides named, time-bounded mutual exclusion.
//
// A lock is a key that exists for at most ttl. Acquiring it stores a random
// token; only the caller holding that token can release it, so a holder whose
// ttl lapsed cannot delete a lock that has since passed to someone else.
package lock

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

var (
	// ErrBusy is returned by Acquire when the retry budget is exhausted.
	ErrBusy = errors.New("lock: busy")
	// ErrInvalidTTL is returned for ttl <= 0; a lock must always expire.
	ErrInvalidTTL = errors.New("lock: ttl must be positive")
)

// Locker is a non-blocking lock primitive.
type Locker interface {
	// TryAcquire makes a single attempt. ok reports whether this caller now
	// holds key; token must be passed to Release.
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)

	// Release deletes key only if it still stores token. released=false means
	// the lock expired or is held by someone else; it is not an error.
	Release(ctx context.Context, key, token string) (released bool, err error)
}

func newToken() string { return uuid.NewString() }
