package bootstrap

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"

	"github.com/unkn0wn-root/flashcache/config"
	"github.com/unkn0wn-root/flashcache/idgen"
	"github.com/unkn0wn-root/flashcache/lock"
	"github.com/unkn0wn-root/flashcache/seckill"
)

var RedisModule = fx.Module("redis",
	fx.Provide(
		NewRedis,
		fx.Annotate(
			lock.NewRedis,
			fx.As(new(lock.Locker)),
		),
		fx.Annotate(
			NewIDs,
			fx.As(new(seckill.IDSource)),
		),
	),
)

func NewRedis(lc fx.Lifecycle, cfg config.Config) redis.UniversalClient {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := client.Ping(ctx).Err(); err != nil {
				return errors.Wrapf(err, "failed to reach redis at %s", cfg.Redis.Addr)
			}
			return nil
		},
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return client
}

func NewIDs(client redis.UniversalClient, cfg config.Config) (*idgen.Generator, error) {
	return idgen.New(idgen.NewRedisCounter(client), cfg.Cache.Namespace, nil)
}
