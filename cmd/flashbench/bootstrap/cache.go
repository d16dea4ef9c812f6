package bootstrap

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"

	"github.com/unkn0wn-root/flashcache"
	"github.com/unkn0wn-root/flashcache/codec"
	"github.com/unkn0wn-root/flashcache/config"
	promhooks "github.com/unkn0wn-root/flashcache/hooks/prom"
	"github.com/unkn0wn-root/flashcache/lock"
	pr "github.com/unkn0wn-root/flashcache/provider"
	"github.com/unkn0wn-root/flashcache/provider/bigcache"
	"github.com/unkn0wn-root/flashcache/provider/memory"
	rp "github.com/unkn0wn-root/flashcache/provider/redis"
	"github.com/unkn0wn-root/flashcache/provider/ristretto"
	"github.com/unkn0wn-root/flashcache/seckill"
)

var CacheModule = fx.Module("cache",
	fx.Provide(
		NewProvider,
		NewOfferCodec,
		NewOfferCache,
	),
)

// NewProvider picks the byte store behind the offer cache. Only "redis" is
// shared between processes; the others are per-process.
func NewProvider(cfg config.Config, client redis.UniversalClient) (pr.Provider, error) {
	switch cfg.Cache.Provider {
	case "redis":
		return rp.New(rp.Config{Client: client})
	case "memory":
		return memory.New(nil), nil
	case "ristretto":
		return ristretto.New(ristretto.Config{
			NumCounters: 1e5,
			MaxCost:     64 << 20,
			BufferItems: 64,
		})
	case "bigcache":
		return bigcache.New(context.Background(), bigcache.Config{
			LifeWindow:         cfg.Cache.DefaultTTL,
			CleanWindow:        time.Minute,
			Shards:             64,
			MaxEntriesInWindow: 10_000,
			MaxEntrySize:       512,
		})
	default:
		return nil, errors.Newf("unknown cache provider %q", cfg.Cache.Provider)
	}
}

func NewOfferCodec(cfg config.Config) (codec.Codec[seckill.Offer], error) {
	var inner codec.Codec[seckill.Offer]
	switch cfg.Cache.Codec {
	case "json":
		inner = codec.JSON[seckill.Offer]{}
	case "msgpack":
		inner = codec.Msgpack[seckill.Offer]{}
	case "cbor":
		c, err := codec.NewCBOR[seckill.Offer](true)
		if err != nil {
			return nil, err
		}
		inner = c
	default:
		return nil, errors.Newf("unknown cache codec %q", cfg.Cache.Codec)
	}
	return codec.Limit[seckill.Offer]{Inner: inner, MaxDecode: cfg.Cache.MaxEntryBytes}, nil
}

func NewOfferCache(
	lc fx.Lifecycle,
	cfg config.Config,
	p pr.Provider,
	cd codec.Codec[seckill.Offer],
	locker lock.Locker,
	log flashcache.Logger,
	m *promhooks.Metrics,
) (flashcache.Store[seckill.Offer], error) {
	strategy, err := cfg.Cache.ParseStrategy()
	if err != nil {
		return nil, err
	}
	s, err := flashcache.New[seckill.Offer](flashcache.Options[seckill.Offer]{
		Namespace:      cfg.Cache.Namespace,
		Kind:           "voucher",
		Provider:       p,
		Codec:          cd,
		Strategy:       strategy,
		Locker:         locker,
		Logger:         log,
		Hooks:          m,
		DefaultTTL:     cfg.Cache.DefaultTTL,
		NullTTL:        cfg.Cache.NullTTL,
		LockTTL:        cfg.Cache.LockTTL,
		RebuildWorkers: cfg.Cache.RebuildWorkers,
	})
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return s.Close(ctx)
		},
	})
	return s, nil
}
