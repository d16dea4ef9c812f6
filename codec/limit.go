package codec

import "github.com/cockroachdb/errors"

var ErrPayloadTooLarge = errors.New("codec: payload too large")

// Limit wraps another codec and refuses to decode payloads larger than
// MaxDecode bytes. Encode is forwarded unchanged. MaxDecode <= 0 disables the check.
//
// Entries come from a shared store; a bounded decode keeps one oversized or
// foreign value from ballooning a reader's memory.
type Limit[V any] struct {
	Inner     Codec[V]
	MaxDecode int
}

func (c Limit[V]) Encode(v V) ([]byte, error) { return c.Inner.Encode(v) }
func (c Limit[V]) Decode(b []byte) (V, error) {
	if c.MaxDecode > 0 && len(b) > c.MaxDecode {
		var zero V
		return zero, errors.Mark(errors.Newf("payload %d bytes exceeds limit %d", len(b), c.MaxDecode), ErrPayloadTooLarge)
	}
	return c.Inner.Decode(b)
}
