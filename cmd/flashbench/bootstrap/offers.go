package bootstrap

import (
	"context"
	"strconv"

	"github.com/cockroachdb/errors"

	"github.com/unkn0wn-root/flashcache"
	"github.com/unkn0wn-root/flashcache/seckill"
)

// CachedOffers serves offer reads through the cache and invalidates every
// offer whose stock a committed transaction changed.
type CachedOffers struct {
	inner seckill.Store
	cache flashcache.Store[seckill.Offer]
	log   flashcache.Logger
}

var _ seckill.Store = (*CachedOffers)(nil)

func NewCachedOffers(inner OrderStore, cache flashcache.Store[seckill.Offer], log flashcache.Logger) *CachedOffers {
	if log == nil {
		log = flashcache.NopLogger{}
	}
	return &CachedOffers{inner: inner, cache: cache, log: log}
}

func offerKey(id int64) string { return strconv.FormatInt(id, 10) }

func (c *CachedOffers) Offer(ctx context.Context, id int64) (seckill.Offer, error) {
	o, err := c.cache.Get(ctx, offerKey(id), c.load, 0)
	if errors.Is(err, flashcache.ErrNotFound) {
		return seckill.Offer{}, seckill.ErrOfferNotFound
	}
	return o, err
}

// Warm seeds a logical entry for id; required before LogicalExpire reads.
func (c *CachedOffers) Warm(ctx context.Context, id int64) error {
	return c.cache.Warm(ctx, offerKey(id), c.load, 0)
}

func (c *CachedOffers) load(ctx context.Context, id string) (seckill.Offer, bool, error) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return seckill.Offer{}, false, nil
	}
	o, err := c.inner.Offer(ctx, n)
	if errors.Is(err, seckill.ErrOfferNotFound) {
		return seckill.Offer{}, false, nil
	}
	if err != nil {
		return seckill.Offer{}, false, err
	}
	return o, true, nil
}

func (c *CachedOffers) Within(ctx context.Context, fn func(ctx context.Context, tx seckill.Tx) error) error {
	var touched []int64
	err := c.inner.Within(ctx, func(ctx context.Context, tx seckill.Tx) error {
		// Within may retry fn; only the committed attempt counts.
		touched = touched[:0]
		return fn(ctx, &trackingTx{Tx: tx, touched: &touched})
	})
	if err != nil {
		return err
	}
	for _, id := range touched {
		if ierr := c.cache.Invalidate(ctx, offerKey(id)); ierr != nil {
			c.log.Warn("offer invalidate failed", flashcache.Fields{"offer_id": id, "err": ierr})
		}
	}
	return nil
}

type trackingTx struct {
	seckill.Tx
	touched *[]int64
}

func (t *trackingTx) DecrementStock(ctx context.Context, offerID int64) (int64, error) {
	n, err := t.Tx.DecrementStock(ctx, offerID)
	if err == nil && n > 0 {
		*t.touched = append(*t.touched, offerID)
	}
	return n, err
}
