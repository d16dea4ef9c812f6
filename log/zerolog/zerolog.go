// Package zerolog adapts rs/zerolog to flashcache.Logger.
package zerolog

import (
	"github.com/rs/zerolog"

	"github.com/unkn0wn-root/flashcache"
)

var _ flashcache.Logger = Logger{}

type Logger struct{ L zerolog.Logger }

func (z Logger) Debug(msg string, f flashcache.Fields) { with(z.L.Debug(), f).Msg(msg) }
func (z Logger) Info(msg string, f flashcache.Fields)  { with(z.L.Info(), f).Msg(msg) }
func (z Logger) Warn(msg string, f flashcache.Fields)  { with(z.L.Warn(), f).Msg(msg) }
func (z Logger) Error(msg string, f flashcache.Fields) { with(z.L.Error(), f).Msg(msg) }

// with is safe on a disabled level: zerolog returns a nil *Event that ignores fields.
func with(e *zerolog.Event, f flashcache.Fields) *zerolog.Event {
	for k, v := range f {
		if err, ok := v.(error); ok {
			e = e.AnErr(k, err)
			continue
		}
		e = e.Interface(k, v)
	}
	return e
}
