package seckill

import (
	"context"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/unkn0wn-root/flashcache"
	"github.com/unkn0wn-root/flashcache/internal/clock"
	"github.com/unkn0wn-root/flashcache/internal/keys"
	"github.com/unkn0wn-root/flashcache/lock"
)

// OrderPrefix is the id generator prefix for orders.
const OrderPrefix = "order"

type Options struct {
	// Required
	Namespace string
	Store     Store
	IDs       IDSource
	Locker    lock.Locker

	LockTTL time.Duration // per-user lock; 0 => 10s
	// Backoff for the per-user lock. Same-user attempts queue behind it, so
	// the default budget is sized to outlast a handful of transactions.
	// Zero => 20 attempts from 10ms up to 200ms.
	Backoff lock.Backoff

	Clock     flashcache.Clock  // nil => wall time
	Logger    flashcache.Logger // nil => NopLogger
	Publisher Publisher         // optional
	Observer  Observer          // optional
}

type Coordinator struct {
	ns        string
	store     Store
	ids       IDSource
	locker    lock.Locker
	lockTTL   time.Duration
	backoff   lock.Backoff
	clock     flashcache.Clock
	log       flashcache.Logger
	publisher Publisher
	observer  Observer
}

func New(opts Options) (*Coordinator, error) {
	switch {
	case opts.Namespace == "":
		return nil, errors.New("seckill: namespace is required")
	case opts.Store == nil:
		return nil, errors.New("seckill: store is required")
	case opts.IDs == nil:
		return nil, errors.New("seckill: id source is required")
	case opts.Locker == nil:
		return nil, errors.New("seckill: locker is required")
	}

	c := &Coordinator{
		ns:        opts.Namespace,
		store:     opts.Store,
		ids:       opts.IDs,
		locker:    opts.Locker,
		lockTTL:   opts.LockTTL,
		backoff:   opts.Backoff,
		clock:     opts.Clock,
		log:       opts.Logger,
		publisher: opts.Publisher,
		observer:  opts.Observer,
	}
	if c.lockTTL <= 0 {
		c.lockTTL = 10 * time.Second
	}
	if c.backoff == (lock.Backoff{}) {
		c.backoff = lock.Backoff{Attempts: 20, Base: 10 * time.Millisecond, Max: 200 * time.Millisecond}
	}
	if c.clock == nil {
		c.clock = clock.NewRealClock()
	}
	if c.log == nil {
		c.log = flashcache.NopLogger{}
	}
	return c, nil
}

// Purchase runs one purchase attempt for userID. Business rejections come
// back as a Result; the error is reserved for unknown offers and backend
// failures.
func (c *Coordinator) Purchase(ctx context.Context, userID, offerID int64) (Result, error) {
	start := time.Now()
	res, err := c.purchase(ctx, userID, offerID)
	if err == nil && c.observer != nil {
		c.observer.Observe(res.Status, time.Since(start))
	}
	return res, err
}

func (c *Coordinator) purchase(ctx context.Context, userID, offerID int64) (Result, error) {
	offer, err := c.store.Offer(ctx, offerID)
	if err != nil {
		if errors.Is(err, ErrOfferNotFound) {
			return Result{}, err
		}
		return Result{}, &flashcache.TransientError{Op: "offer", Key: strconv.FormatInt(offerID, 10), Err: err}
	}

	now := c.clock.Now()
	switch {
	case now.Before(offer.BeginTime):
		return Result{Status: NotStarted}, nil
	case now.After(offer.EndTime):
		return Result{Status: Ended}, nil
	case offer.Stock < 1:
		return Result{Status: OutOfStock}, nil
	}

	lk := keys.Lock(c.ns, OrderPrefix, strconv.FormatInt(userID, 10))
	token, err := lock.Acquire(ctx, c.locker, lk, c.lockTTL, c.backoff)
	if err != nil {
		if errors.Is(err, lock.ErrBusy) {
			c.log.Warn("purchase lock busy", flashcache.Fields{"user": userID, "offer": offerID})
			return Result{Status: Busy}, nil
		}
		return Result{}, &flashcache.TransientError{Op: "lock", Key: lk, Err: err}
	}
	defer c.release(ctx, lk, token)

	var (
		res   Result
		order Order
	)
	err = c.store.Within(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		res, order, err = c.createOrder(ctx, tx, userID, offerID)
		return err
	})
	switch {
	case errors.Is(err, ErrDuplicateOrder):
		// the unique index caught what the lock did not (another process)
		return Result{Status: AlreadyPurchased}, nil
	case err != nil:
		return Result{}, &flashcache.TransientError{Op: "purchase", Key: lk, Err: err}
	}

	if res.Status == Committed {
		c.log.Debug("order committed", flashcache.Fields{"order": order.ID, "user": userID, "offer": offerID})
		c.publish(ctx, order)
	}
	return res, nil
}

// createOrder is the transactional part of a purchase. Returning an error
// rolls back the decrement.
func (c *Coordinator) createOrder(ctx context.Context, tx Tx, userID, offerID int64) (Result, Order, error) {
	exists, err := tx.OrderExists(ctx, userID, offerID)
	if err != nil {
		return Result{}, Order{}, err
	}
	if exists {
		return Result{Status: AlreadyPurchased}, Order{}, nil
	}

	n, err := tx.DecrementStock(ctx, offerID)
	if err != nil {
		return Result{}, Order{}, err
	}
	if n == 0 {
		return Result{Status: OutOfStock}, Order{}, nil
	}

	id, err := c.ids.NextID(ctx, OrderPrefix)
	if err != nil {
		return Result{}, Order{}, err
	}
	o := Order{
		ID:        int64(id), // #nosec G115 -- 31 bits of seconds keep the sign bit clear
		UserID:    userID,
		OfferID:   offerID,
		CreatedAt: c.clock.Now(),
	}
	if err := tx.InsertOrder(ctx, o); err != nil {
		return Result{}, Order{}, err
	}
	return Result{Status: Committed, OrderID: o.ID}, o, nil
}

func (c *Coordinator) release(ctx context.Context, lk, token string) {
	ok, err := c.locker.Release(context.WithoutCancel(ctx), lk, token)
	if err != nil {
		c.log.Warn("purchase lock release failed", flashcache.Fields{"key": lk, "err": err})
	} else if !ok {
		c.log.Warn("purchase lock expired while held", flashcache.Fields{"key": lk, "ttl": c.lockTTL})
	}
}

func (c *Coordinator) publish(ctx context.Context, o Order) {
	if c.publisher == nil {
		return
	}
	if err := c.publisher.Publish(ctx, o); err != nil {
		c.log.Error("order publish failed", flashcache.Fields{"order": o.ID, "err": err})
	}
}
