// Package pgstore is the PostgreSQL seckill.Store.
package pgstore

import (
	"context"
	"crypto/rand"
	_ "embed"
	"encoding/binary"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/unkn0wn-root/flashcache"
	"github.com/unkn0wn-root/flashcache/seckill"
)

//go:embed schema.sql
var schema string

const (
	pgErrCodeUniqueViolation      = "23505"
	pgErrCodeSerializationFailure = "40001"
	pgErrCodeDeadlockDetected     = "40P01"

	uniqueOrderConstraint = "voucher_order_user_voucher_key"
)

var (
	errTransactionBegin   = errors.New("pgstore: failed to begin transaction")
	errTransactionCommit  = errors.New("pgstore: failed to commit transaction")
	errMaxRetriesExceeded = errors.New("pgstore: transaction failed after max retries")
)

type Options struct {
	MaxRetries  int               // retries after the first attempt on 40001/40P01; 0 => 3
	BackoffBase time.Duration     // 0 => 100ms
	Logger      flashcache.Logger // nil => NopLogger
}

type Store struct {
	pool       *pgxpool.Pool
	maxRetries int
	base       time.Duration
	log        flashcache.Logger
}

var _ seckill.Store = (*Store)(nil)

func New(pool *pgxpool.Pool, opts Options) *Store {
	s := &Store{pool: pool, maxRetries: opts.MaxRetries, base: opts.BackoffBase, log: opts.Logger}
	if s.maxRetries <= 0 {
		s.maxRetries = 3
	}
	if s.base <= 0 {
		s.base = 100 * time.Millisecond
	}
	if s.log == nil {
		s.log = flashcache.NopLogger{}
	}
	return s
}

// Migrate creates the tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return errors.Wrap(err, "pgstore: migrate")
	}
	return nil
}

// SeedOffer inserts or replaces an offer.
func (s *Store) SeedOffer(ctx context.Context, o seckill.Offer) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO seckill_voucher (voucher_id, stock, begin_time, end_time)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (voucher_id) DO UPDATE
		SET stock = EXCLUDED.stock, begin_time = EXCLUDED.begin_time,
		    end_time = EXCLUDED.end_time, update_time = now()`,
		o.ID, o.Stock, o.BeginTime, o.EndTime)
	return errors.Wrapf(err, "pgstore: seed offer %d", o.ID)
}

func (s *Store) Offer(ctx context.Context, id int64) (seckill.Offer, error) {
	return scanOffer(ctx, s.pool, id)
}

// CountOrders reports how many orders exist for an offer.
func (s *Store) CountOrders(ctx context.Context, offerID int64) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM voucher_order WHERE voucher_id = $1`, offerID).Scan(&n)
	return n, errors.Wrap(err, "pgstore: count orders")
}

// ReadCommitted is enough: the decrement re-checks stock on the row it locks.
func (s *Store) Within(ctx context.Context, fn func(ctx context.Context, tx seckill.Tx) error) error {
	return s.runInTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, fn)
}

// Avoids defer accumulation in the retry loop to prevent connection leaks
func (s *Store) runInTx(ctx context.Context, options pgx.TxOptions, fn func(ctx context.Context, tx seckill.Tx) error) error {
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		pgxTx, err := s.pool.BeginTx(ctx, options)
		if err != nil {
			return errors.Mark(err, errTransactionBegin)
		}

		err = fn(ctx, &tx{q: pgxTx})
		if err == nil {
			if err = pgxTx.Commit(ctx); err == nil {
				return nil
			}
			err = errors.Mark(err, errTransactionCommit)
		}

		if rollbackErr := pgxTx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Warn("rollback failed", flashcache.Fields{"attempt": attempt + 1, "err": rollbackErr})
		}

		if !isRetryable(err) {
			return err
		}
		if attempt == s.maxRetries {
			s.log.Error("transaction failed after max retries", flashcache.Fields{"attempts": attempt + 1, "err": err})
			return errors.Mark(err, errMaxRetriesExceeded)
		}

		wait := backoff(attempt, s.base)
		s.log.Warn("retrying transaction", flashcache.Fields{"attempt": attempt + 1, "wait_ms": wait.Milliseconds(), "err": err})

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	return errMaxRetriesExceeded
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case pgErrCodeSerializationFailure, pgErrCodeDeadlockDetected:
		return true
	default:
		return false
	}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgErrCodeUniqueViolation &&
		(pgErr.ConstraintName == "" || pgErr.ConstraintName == uniqueOrderConstraint)
}

func backoff(attempt int, base time.Duration) time.Duration {
	wait := time.Duration(1<<attempt) * base
	return wait + time.Duration(cryptoRandInt63n(int64(wait/5)))
}

func cryptoRandInt63n(n int64) int64 {
	if n <= 0 {
		return 0
	}
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0
	}
	uval := binary.BigEndian.Uint64(buf[:]) & 0x7FFFFFFFFFFFFFFF
	// #nosec G115 -- high bit masked off
	return int64(uval) % n
}
