package main

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/unkn0wn-root/flashcache"
	"github.com/unkn0wn-root/flashcache/cmd/flashbench/bootstrap"
	"github.com/unkn0wn-root/flashcache/config"
	"github.com/unkn0wn-root/flashcache/seckill"
)

const maxInFlight = 256

type benchParams struct {
	fx.In

	Lifecycle   fx.Lifecycle
	Shutdowner  fx.Shutdowner
	Config      config.Config
	Log         *zap.Logger
	Orders      bootstrap.OrderStore
	Offers      *bootstrap.CachedOffers
	Coordinator *seckill.Coordinator
}

func startBench(p benchParams) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				code := 0
				if err := runBench(ctx, p); err != nil {
					p.Log.Error("bench failed", zap.Error(err))
					code = 1
				}
				_ = p.Shutdowner.Shutdown(fx.ExitCode(code))
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-stopCtx.Done():
			}
			return nil
		},
	})
}

type tally struct {
	mu       sync.Mutex
	byStatus map[seckill.Status]int
	failed   int
}

func (t *tally) add(s seckill.Status, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err != nil {
		t.failed++
		return
	}
	t.byStatus[s]++
}

func runBench(ctx context.Context, p benchParams) error {
	sc := p.Config.Seckill
	now := time.Now()
	offer := seckill.Offer{
		ID:        sc.OfferID,
		BeginTime: now.Add(-time.Second),
		EndTime:   now.Add(sc.Window),
		Stock:     sc.Stock,
	}
	if err := p.Orders.SeedOffer(ctx, offer); err != nil {
		return errors.Wrap(err, "seed offer")
	}
	// Orders from earlier runs against the same offer stay in the table.
	before, err := p.Orders.CountOrders(ctx, offer.ID)
	if err != nil {
		return errors.Wrap(err, "count orders")
	}
	strategy, _ := p.Config.Cache.ParseStrategy()
	if strategy == flashcache.LogicalExpire {
		if err := p.Offers.Warm(ctx, offer.ID); err != nil {
			return errors.Wrap(err, "warm offer")
		}
	}

	p.Log.Info("bench starting",
		zap.Int64("offer_id", offer.ID),
		zap.Int("stock", offer.Stock),
		zap.Int("users", sc.Users),
		zap.Int("attempts_per_user", sc.AttemptsPerUser),
		zap.Stringer("strategy", strategy),
		zap.String("provider", p.Config.Cache.Provider),
	)

	t := &tally{byStatus: make(map[seckill.Status]int)}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxInFlight)
	start := time.Now()
	for u := 1; u <= sc.Users; u++ {
		for range sc.AttemptsPerUser {
			userID := int64(u)
			g.Go(func() error {
				res, err := p.Coordinator.Purchase(gctx, userID, offer.ID)
				if errors.Is(err, seckill.ErrOfferNotFound) {
					return err
				}
				t.add(res.Status, err)
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return err
	}
	took := time.Since(start)

	after, err := p.Orders.CountOrders(ctx, offer.ID)
	if err != nil {
		return errors.Wrap(err, "count orders")
	}
	sold := after - before
	left, err := p.Orders.Offer(ctx, offer.ID)
	if err != nil {
		return errors.Wrap(err, "read offer")
	}

	fields := []zap.Field{
		zap.Duration("took", took),
		zap.Int("orders", sold),
		zap.Int("stock_left", left.Stock),
		zap.Int("backend_errors", t.failed),
	}
	for s, n := range t.byStatus {
		fields = append(fields, zap.Int(s.String(), n))
	}
	p.Log.Info("bench finished", fields...)

	if sold+left.Stock != offer.Stock {
		return errors.Newf("stock mismatch: %d sold + %d left != %d seeded", sold, left.Stock, offer.Stock)
	}
	return nil
}
