package bootstrap

import (
	"context"
	"time"

	"go.uber.org/fx"

	"github.com/unkn0wn-root/flashcache"
	"github.com/unkn0wn-root/flashcache/config"
	promhooks "github.com/unkn0wn-root/flashcache/hooks/prom"
	"github.com/unkn0wn-root/flashcache/lock"
	"github.com/unkn0wn-root/flashcache/seckill"
	"github.com/unkn0wn-root/flashcache/seckill/kafkapub"
)

var SeckillModule = fx.Module("seckill",
	fx.Provide(
		NewCachedOffers,
		NewPublisher,
		NewCoordinator,
	),
)

// NewPublisher returns nil when no brokers are configured.
func NewPublisher(lc fx.Lifecycle, cfg config.Config) (seckill.Publisher, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return nil, nil
	}
	p, err := kafkapub.New(kafkapub.Options{
		Brokers: cfg.Kafka.Brokers,
		Topic:   cfg.Kafka.Topic,
		Timeout: 5 * time.Second,
	})
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return p.Close()
		},
	})
	return p, nil
}

func NewCoordinator(
	cfg config.Config,
	offers *CachedOffers,
	ids seckill.IDSource,
	locker lock.Locker,
	pub seckill.Publisher,
	log flashcache.Logger,
	m *promhooks.Metrics,
) (*seckill.Coordinator, error) {
	return seckill.New(seckill.Options{
		Namespace: cfg.Cache.Namespace,
		Store:     offers,
		IDs:       ids,
		Locker:    locker,
		LockTTL:   cfg.Seckill.UserLockTTL,
		Logger:    log,
		Publisher: pub,
		Observer:  m,
	})
}
