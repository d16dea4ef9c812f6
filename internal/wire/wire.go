package wire

import (
	"bytes"
	"encoding/binary"
	"time"

	"github.com/cockroachdb/errors"
)

const (
	version byte = 1

	KindValue  byte = 1
	KindAbsent byte = 2

	hdrLen = 4 + 1 + 1 + 8 + 4
)

var (
	ErrCorrupt = errors.New("flashcache: corrupt entry")
	magic4     = [...]byte{'F', 'L', 'S', 'H'}
)

// Entry is the storage-boundary envelope for one cached record.
// ExpiresAt is the logical expiry; the zero time means "none".
// Absent entries carry no payload.
type Entry struct {
	Kind      byte
	ExpiresAt time.Time
	Payload   []byte
}

func (e Entry) Absent() bool { return e.Kind == KindAbsent }

// Expired reports whether a logical expiry is set and now is at or past it.
func (e Entry) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}

// magic(4) | ver(1) | kind(1) | expiresAt(i64 be, unix nanos, 0=none) | vlen(u32 be) | payload(vlen)
func Encode(e Entry) []byte {
	payload := e.Payload
	if e.Kind == KindAbsent {
		payload = nil
	}

	var buf bytes.Buffer
	buf.Grow(hdrLen + len(payload))

	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(e.Kind)

	var u8 [8]byte
	var u4 [4]byte

	var exp int64
	if !e.ExpiresAt.IsZero() {
		exp = e.ExpiresAt.UnixNano()
	}
	binary.BigEndian.PutUint64(u8[:], uint64(exp))
	buf.Write(u8[:])

	binary.BigEndian.PutUint32(u4[:], uint32(len(payload)))
	buf.Write(u4[:])

	buf.Write(payload)
	return buf.Bytes()
}

func Value(payload []byte, expiresAt time.Time) []byte {
	return Encode(Entry{Kind: KindValue, ExpiresAt: expiresAt, Payload: payload})
}

func Absent() []byte {
	return Encode(Entry{Kind: KindAbsent})
}

func Decode(b []byte) (Entry, error) {
	if len(b) < hdrLen || !bytes.Equal(b[:4], magic4[:]) || b[4] != version {
		return Entry{}, ErrCorrupt
	}
	kind := b[5]
	if kind != KindValue && kind != KindAbsent {
		return Entry{}, ErrCorrupt
	}
	off := 6

	exp := int64(binary.BigEndian.Uint64(b[off : off+8]))
	off += 8

	vlen := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	if vlen < 0 || vlen != len(b)-off { // exact framing; trailing bytes are corruption
		return Entry{}, ErrCorrupt
	}
	if kind == KindAbsent && vlen != 0 {
		return Entry{}, ErrCorrupt
	}

	e := Entry{Kind: kind, Payload: b[off : off+vlen]}
	if exp != 0 {
		e.ExpiresAt = time.Unix(0, exp)
	}
	return e, nil
}
