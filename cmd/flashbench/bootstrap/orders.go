package bootstrap

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/fx"

	"github.com/unkn0wn-root/flashcache"
	"github.com/unkn0wn-root/flashcache/config"
	"github.com/unkn0wn-root/flashcache/seckill"
	"github.com/unkn0wn-root/flashcache/seckill/memstore"
	"github.com/unkn0wn-root/flashcache/seckill/pgstore"
)

var OrderModule = fx.Module("orders",
	fx.Provide(
		NewOrderStore,
	),
)

// OrderStore is the durable store plus the helpers the bench needs to seed
// an offer and count what was sold.
type OrderStore interface {
	seckill.Store
	SeedOffer(ctx context.Context, o seckill.Offer) error
	CountOrders(ctx context.Context, offerID int64) (int, error)
}

func NewOrderStore(lc fx.Lifecycle, cfg config.Config, log flashcache.Logger) (OrderStore, error) {
	switch cfg.DB.Driver {
	case "memory":
		return memOrders{memstore.New()}, nil
	case "postgres":
	default:
		return nil, errors.Newf("unknown db driver %q", cfg.DB.Driver)
	}

	pool, err := pgxpool.New(context.Background(), cfg.DB.BuildDSN())
	if err != nil {
		return nil, errors.Wrap(err, "failed to create pgx pool")
	}
	st := pgstore.New(pool, pgstore.Options{Logger: log})
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := pool.Ping(ctx); err != nil {
				return errors.Wrap(err, "failed to ping database")
			}
			return st.Migrate(ctx)
		},
		OnStop: func(context.Context) error {
			pool.Close()
			return nil
		},
	})
	return st, nil
}

type memOrders struct{ *memstore.Store }

func (m memOrders) SeedOffer(_ context.Context, o seckill.Offer) error {
	m.PutOffer(o)
	return nil
}

func (m memOrders) CountOrders(_ context.Context, offerID int64) (int, error) {
	return len(m.Orders(offerID)), nil
}
