package zap

import (
	"go.uber.org/zap"

	"github.com/unkn0wn-root/flashcache"
)

var _ flashcache.Logger = ZapLogger{}

type ZapLogger struct{ L *zap.Logger }

func (z ZapLogger) Debug(msg string, f flashcache.Fields) { z.L.Debug(msg, zf(f)...) }
func (z ZapLogger) Info(msg string, f flashcache.Fields)  { z.L.Info(msg, zf(f)...) }
func (z ZapLogger) Warn(msg string, f flashcache.Fields)  { z.L.Warn(msg, zf(f)...) }
func (z ZapLogger) Error(msg string, f flashcache.Fields) { z.L.Error(msg, zf(f)...) }

func zf(f flashcache.Fields) []zap.Field {
	if len(f) == 0 {
		return nil
	}
	out := make([]zap.Field, 0, len(f))
	for k, v := range f {
		switch tv := v.(type) {
		case error:
			out = append(out, zap.NamedError(k, tv))
		case string:
			out = append(out, zap.String(k, tv))
		default:
			out = append(out, zap.Any(k, v))
		}
	}
	return out
}
