// Package keys builds the storage keys shared by the cache, lock and id
// generator. Keys are plain strings joined by ':'.
//
//	<ns>:<kind>:<id>          cache entries
//	<ns>:lock:<kind>:<id>     locks
//	<ns>:seq:<prefix>:<day>   id counters
package keys

import (
	"strings"
	"time"
)

const sep = ":"

// DayLayout formats the calendar-day component of a sequence key (yyyy:MM:dd).
const DayLayout = "2006:01:02"

func Entry(ns, kind, id string) string {
	return join(ns, kind, id)
}

func Lock(ns, kind, id string) string {
	return join(ns, "lock", kind, id)
}

// Seq returns the counter key for prefix on the UTC calendar day of t.
func Seq(ns, prefix string, t time.Time) string {
	return join(ns, "seq", prefix, t.UTC().Format(DayLayout))
}

func join(parts ...string) string {
	n := len(parts) - 1
	for _, p := range parts {
		n += len(p)
	}
	var b strings.Builder
	b.Grow(n)
	for i, p := range parts {
		if i > 0 {
			b.WriteString(sep)
		}
		b.WriteString(p)
	}
	return b.String()
}
