package bootstrap

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"

	"github.com/unkn0wn-root/flashcache/config"
	promhooks "github.com/unkn0wn-root/flashcache/hooks/prom"
)

var Module = fx.Options(
	ConfigModule,
	LoggerModule,
	RedisModule,
	MetricsModule,
	OrderModule,
	CacheModule,
	SeckillModule,
)

var ConfigModule = fx.Module("config",
	fx.Provide(
		config.Load,
	),
)

var MetricsModule = fx.Module("metrics",
	fx.Provide(
		NewRegistry,
		NewMetrics,
	),
)

func NewRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

func NewMetrics(reg *prometheus.Registry, cfg config.Config) *promhooks.Metrics {
	return promhooks.New(reg, cfg.Cache.Namespace)
}
