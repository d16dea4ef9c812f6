package codec

import (
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

type shop struct {
	ID       int64     `json:"id" msgpack:"id" cbor:"id"`
	Name     string    `json:"name" msgpack:"name" cbor:"name"`
	OpenedAt time.Time `json:"opened_at" msgpack:"opened_at" cbor:"opened_at"`
}

func TestStructCodecs(t *testing.T) {
	in := shop{ID: 7, Name: "noodle bar", OpenedAt: time.Date(2023, 5, 1, 10, 0, 0, 0, time.UTC)}

	codecs := map[string]Codec[shop]{
		"json":     JSON[shop]{},
		"msgpack":  Msgpack[shop]{},
		"cbor":     MustCBOR[shop](false),
		"cbor-det": MustCBOR[shop](true),
	}
	for name, c := range codecs {
		t.Run(name, func(t *testing.T) {
			b, err := c.Encode(in)
			require.NoError(t, err)
			out, err := c.Decode(b)
			require.NoError(t, err)
			assert.Equal(t, in.ID, out.ID)
			assert.Equal(t, in.Name, out.Name)
			assert.True(t, in.OpenedAt.Equal(out.OpenedAt))
		})
	}
}

func TestProtobuf(t *testing.T) {
	c := NewProtobuf(func() *wrapperspb.StringValue { return &wrapperspb.StringValue{} })
	b, err := c.Encode(wrapperspb.String("hot pot"))
	require.NoError(t, err)
	out, err := c.Decode(b)
	require.NoError(t, err)
	assert.Equal(t, "hot pot", out.GetValue())
}

func TestLimit(t *testing.T) {
	c := Limit[string]{Inner: String{}, MaxDecode: 4}

	v, err := c.Decode([]byte("abcd"))
	require.NoError(t, err)
	assert.Equal(t, "abcd", v)

	_, err = c.Decode([]byte("abcde"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPayloadTooLarge))

	unlimited := Limit[string]{Inner: String{}}
	_, err = unlimited.Decode(make([]byte, 1<<16))
	assert.NoError(t, err)
}
