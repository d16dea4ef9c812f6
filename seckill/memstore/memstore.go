// Package memstore is an in-process seckill.Store. Transactions are
// serialized by one mutex; their writes are buffered and applied to the live
// state only when the transaction function succeeds.
package memstore

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/unkn0wn-root/flashcache/seckill"
)

type orderKey struct{ user, offer int64 }

type state struct {
	offers map[int64]seckill.Offer
	orders map[orderKey]seckill.Order
	ids    map[int64]struct{}
}

type Store struct {
	mu sync.Mutex
	st state
}

var _ seckill.Store = (*Store)(nil)

func New() *Store {
	return &Store{st: state{
		offers: make(map[int64]seckill.Offer),
		orders: make(map[orderKey]seckill.Order),
		ids:    make(map[int64]struct{}),
	}}
}

// PutOffer inserts or replaces an offer.
func (s *Store) PutOffer(o seckill.Offer) {
	s.mu.Lock()
	s.st.offers[o.ID] = o
	s.mu.Unlock()
}

func (s *Store) Offer(_ context.Context, id int64) (seckill.Offer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.st.offers[id]
	if !ok {
		return seckill.Offer{}, errors.Wrapf(seckill.ErrOfferNotFound, "offer %d", id)
	}
	return o, nil
}

// Orders returns the committed orders for an offer.
func (s *Store) Orders(offerID int64) []seckill.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []seckill.Order
	for k, o := range s.st.orders {
		if k.offer == offerID {
			out = append(out, o)
		}
	}
	return out
}

func (s *Store) Within(ctx context.Context, fn func(ctx context.Context, tx seckill.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	t := &tx{st: &s.st, offers: map[int64]seckill.Offer{}}
	if err := fn(ctx, t); err != nil {
		return err
	}
	t.commit()
	return nil
}

// tx reads through to the live state and keeps its own writes aside until
// commit.
type tx struct {
	st     *state
	offers map[int64]seckill.Offer
	orders []seckill.Order
}

func (t *tx) offer(id int64) (seckill.Offer, bool) {
	if o, ok := t.offers[id]; ok {
		return o, true
	}
	o, ok := t.st.offers[id]
	return o, ok
}

func (t *tx) pending(match func(seckill.Order) bool) bool {
	for _, o := range t.orders {
		if match(o) {
			return true
		}
	}
	return false
}

func (t *tx) OrderExists(_ context.Context, userID, offerID int64) (bool, error) {
	if _, ok := t.st.orders[orderKey{userID, offerID}]; ok {
		return true, nil
	}
	return t.pending(func(o seckill.Order) bool { return o.UserID == userID && o.OfferID == offerID }), nil
}

func (t *tx) DecrementStock(_ context.Context, offerID int64) (int64, error) {
	o, ok := t.offer(offerID)
	if !ok || o.Stock <= 0 {
		return 0, nil
	}
	o.Stock--
	t.offers[offerID] = o
	return 1, nil
}

func (t *tx) InsertOrder(ctx context.Context, o seckill.Order) error {
	if dup, _ := t.OrderExists(ctx, o.UserID, o.OfferID); dup {
		return errors.Wrapf(seckill.ErrDuplicateOrder, "user %d offer %d", o.UserID, o.OfferID)
	}
	_, used := t.st.ids[o.ID]
	if used || t.pending(func(p seckill.Order) bool { return p.ID == o.ID }) {
		return errors.Newf("memstore: order id %d already used", o.ID)
	}
	t.orders = append(t.orders, o)
	return nil
}

func (t *tx) commit() {
	for id, o := range t.offers {
		t.st.offers[id] = o
	}
	for _, o := range t.orders {
		t.st.orders[orderKey{o.UserID, o.OfferID}] = o
		t.st.ids[o.ID] = struct{}{}
	}
}
