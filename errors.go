package flashcache

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

var (
	// ErrNotFound means the entity does not exist, either confirmed by the
	// loader or by a cached absent marker. LogicalExpire also returns it for
	// keys that were never warmed.
	ErrNotFound = errors.New("flashcache: not found")

	// ErrBusy means the Mutex strategy gave up waiting for another caller's
	// rebuild.
	ErrBusy = errors.New("flashcache: busy")

	// ErrTransient matches every *TransientError.
	ErrTransient = errors.New("flashcache: transient failure")
)

// TransientError wraps an unexpected failure of the cache backend, the lock
// or the loader. Op is one of "get", "set", "del", "lock", "load".
type TransientError struct {
	Op  string
	Key string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("flashcache: %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

func (e *TransientError) Is(target error) bool { return target == ErrTransient }

func transient(op, key string, err error) error {
	return &TransientError{Op: op, Key: key, Err: err}
}
