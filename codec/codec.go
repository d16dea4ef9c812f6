// Package codec converts cached values to and from the opaque payload bytes
// that the cache stores inside its entry envelope.
package codec

// Codec encodes/decodes values V to []byte for storage.
// Implementations must be safe for concurrent use.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}
