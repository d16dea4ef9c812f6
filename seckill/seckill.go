// Package seckill coordinates flash-sale purchases of limited-stock offers.
//
// A purchase passes a time-window check and a stock pre-check, then takes a
// per-user lock and runs one transaction that checks for an existing order,
// decrements stock only while it is positive and inserts the order. The
// conditional decrement is the only guard against overselling that holds
// across processes; the per-user lock and the unique (user, offer) index
// both guard against duplicate orders.
package seckill

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
)

type Offer struct {
	ID        int64
	BeginTime time.Time
	EndTime   time.Time
	Stock     int
}

type Order struct {
	ID        int64
	UserID    int64
	OfferID   int64
	CreatedAt time.Time
}

// Status is the terminal state of one purchase attempt.
type Status int

// Unknown is the zero Status, carried by the Result returned alongside an
// error.
const (
	Unknown Status = iota
	Committed
	NotStarted
	Ended
	OutOfStock
	AlreadyPurchased
	Busy
)

var statusNames = [...]string{
	Unknown:          "unknown",
	Committed:        "committed",
	NotStarted:       "not_started",
	Ended:            "ended",
	OutOfStock:       "out_of_stock",
	AlreadyPurchased: "already_purchased",
	Busy:             "busy",
}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return "unknown"
	}
	return statusNames[s]
}

var (
	ErrNotStarted       = errors.New("seckill: sale has not started")
	ErrEnded            = errors.New("seckill: sale has ended")
	ErrOutOfStock       = errors.New("seckill: out of stock")
	ErrAlreadyPurchased = errors.New("seckill: already purchased")
	ErrBusy             = errors.New("seckill: too many concurrent attempts")

	// ErrOfferNotFound is returned by Store.Offer and by Purchase.
	ErrOfferNotFound = errors.New("seckill: offer not found")
	// ErrDuplicateOrder is returned by Tx.InsertOrder on a (user, offer) conflict.
	ErrDuplicateOrder = errors.New("seckill: duplicate order")
)

// Result is the business outcome of Purchase. OrderID is set only when
// Status is Committed.
type Result struct {
	Status  Status
	OrderID int64
}

// Err maps a rejection to its sentinel; nil for Committed.
func (r Result) Err() error {
	switch r.Status {
	case Committed:
		return nil
	case NotStarted:
		return ErrNotStarted
	case Ended:
		return ErrEnded
	case OutOfStock:
		return ErrOutOfStock
	case AlreadyPurchased:
		return ErrAlreadyPurchased
	case Busy:
		return ErrBusy
	default:
		return errors.Newf("seckill: unknown status %d", int(r.Status))
	}
}

// Store is the durable store holding offers and orders.
type Store interface {
	Offer(ctx context.Context, id int64) (Offer, error)
	// Within runs fn in one transaction. fn returning an error rolls back
	// every write it made.
	Within(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the transactional view handed to Store.Within.
type Tx interface {
	OrderExists(ctx context.Context, userID, offerID int64) (bool, error)
	// DecrementStock lowers stock by one if it is positive and reports the
	// number of rows changed (0 or 1).
	DecrementStock(ctx context.Context, offerID int64) (int64, error)
	InsertOrder(ctx context.Context, o Order) error
}

// IDSource mints order ids.
type IDSource interface {
	NextID(ctx context.Context, prefix string) (uint64, error)
}

// Publisher is told about committed orders after the transaction.
type Publisher interface {
	Publish(ctx context.Context, o Order) error
}

// Observer records the outcome of every Purchase call that reached a status.
type Observer interface {
	Observe(s Status, took time.Duration)
}
