// Package idgen mints 64-bit ids that are unique across processes and
// roughly ordered by time.
//
//	| seconds since Epoch (32 bits) | per-prefix, per-day sequence (32 bits) |
//
// The sequence comes from a shared Counter keyed by prefix and UTC day, so
// there is no coordination beyond one atomic increment per id.
package idgen

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/unkn0wn-root/flashcache/internal/clock"
	"github.com/unkn0wn-root/flashcache/internal/keys"
)

const (
	SequenceBits = 32
	SequenceMask = 1<<SequenceBits - 1
)

// Epoch is 2022-01-01T00:00:00Z.
var Epoch = time.Unix(1640995200, 0).UTC()

var (
	// ErrSequenceOverflow means one prefix produced more than 2^32 ids in a
	// single day. It is a sizing error, not something to retry.
	ErrSequenceOverflow = errors.New("idgen: daily sequence overflow")
	ErrClockBeforeEpoch = errors.New("idgen: clock is before epoch")
)

type Generator struct {
	counter Counter
	ns      string
	clock   clock.Clock
}

// New builds a generator whose counter keys live under namespace ns.
// A nil clock uses wall time.
func New(counter Counter, ns string, c clock.Clock) (*Generator, error) {
	if counter == nil {
		return nil, errors.New("idgen: counter is required")
	}
	if ns == "" {
		return nil, errors.New("idgen: namespace is required")
	}
	if c == nil {
		c = clock.NewRealClock()
	}
	return &Generator{counter: counter, ns: ns, clock: c}, nil
}

func (g *Generator) NextID(ctx context.Context, prefix string) (uint64, error) {
	now := g.clock.Now()
	elapsed := now.Unix() - Epoch.Unix()
	if elapsed < 0 {
		return 0, errors.Wrapf(ErrClockBeforeEpoch, "now=%s", now.UTC().Format(time.RFC3339))
	}

	seq, err := g.counter.Incr(ctx, keys.Seq(g.ns, prefix, now))
	if err != nil {
		return 0, err
	}
	if seq > SequenceMask {
		return 0, errors.Wrapf(ErrSequenceOverflow, "prefix %q reached %d", prefix, seq)
	}
	return uint64(elapsed)<<SequenceBits | seq, nil
}

// Decompose splits an id into its issue second and sequence number.
func Decompose(id uint64) (issuedAt time.Time, seq uint64) {
	return Epoch.Add(time.Duration(id>>SequenceBits) * time.Second), id & SequenceMask
}
