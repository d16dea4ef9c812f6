package pgstore

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/unkn0wn-root/flashcache/seckill"
)

// querier is the part of pgx shared by the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type tx struct{ q querier }

var _ seckill.Tx = (*tx)(nil)

func (t *tx) OrderExists(ctx context.Context, userID, offerID int64) (bool, error) {
	var exists bool
	err := t.q.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM voucher_order WHERE user_id = $1 AND voucher_id = $2)`,
		userID, offerID).Scan(&exists)
	if err != nil {
		return false, errors.Wrap(err, "pgstore: order exists")
	}
	return exists, nil
}

func (t *tx) DecrementStock(ctx context.Context, offerID int64) (int64, error) {
	tag, err := t.q.Exec(ctx,
		`UPDATE seckill_voucher SET stock = stock - 1, update_time = now()
		 WHERE voucher_id = $1 AND stock > 0`,
		offerID)
	if err != nil {
		return 0, errors.Wrap(err, "pgstore: decrement stock")
	}
	return tag.RowsAffected(), nil
}

func (t *tx) InsertOrder(ctx context.Context, o seckill.Order) error {
	_, err := t.q.Exec(ctx,
		`INSERT INTO voucher_order (id, user_id, voucher_id, create_time) VALUES ($1, $2, $3, $4)`,
		o.ID, o.UserID, o.OfferID, o.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.Mark(errors.Wrapf(err, "user %d offer %d", o.UserID, o.OfferID), seckill.ErrDuplicateOrder)
		}
		return errors.Wrap(err, "pgstore: insert order")
	}
	return nil
}

func scanOffer(ctx context.Context, q querier, id int64) (seckill.Offer, error) {
	o := seckill.Offer{ID: id}
	err := q.QueryRow(ctx,
		`SELECT stock, begin_time, end_time FROM seckill_voucher WHERE voucher_id = $1`,
		id).Scan(&o.Stock, &o.BeginTime, &o.EndTime)
	if errors.Is(err, pgx.ErrNoRows) {
		return seckill.Offer{}, errors.Wrapf(seckill.ErrOfferNotFound, "offer %d", id)
	}
	if err != nil {
		return seckill.Offer{}, errors.Wrap(err, "pgstore: load offer")
	}
	return o, nil
}
