package bootstrap

import (
	"context"

	"github.com/cockroachdb/errors"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/unkn0wn-root/flashcache"
	"github.com/unkn0wn-root/flashcache/config"
	flashzap "github.com/unkn0wn-root/flashcache/log/zap"
)

var LoggerModule = fx.Module("logger",
	fx.Provide(
		NewLogger,
		func(l *zap.Logger) flashcache.Logger { return flashzap.ZapLogger{L: l} },
	),
)

func NewLogger(lc fx.Lifecycle, cfg config.Config) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(cfg.Log.Level)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid log level %q", cfg.Log.Level)
	}
	zc := zap.NewProductionConfig()
	zc.Level = lvl
	l, err := zc.Build()
	if err != nil {
		return nil, errors.Wrap(err, "failed to build logger")
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			_ = l.Sync()
			return nil
		},
	})
	return l, nil
}
