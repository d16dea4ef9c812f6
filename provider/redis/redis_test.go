package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProvider(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	p, err := New(Config{Client: rdb, CloseClient: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close(context.Background()) })
	return p, mr
}

func TestRedisProviderRoundTrip(t *testing.T) {
	ctx := context.Background()
	p, mr := newTestProvider(t)

	_, ok, err := p.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = p.Set(ctx, "k", []byte{0, 1, 2}, 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	b, ok, err := p.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte{0, 1, 2}, b)

	mr.FastForward(2 * time.Minute)
	_, ok, err = p.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok, "entry should expire with its store TTL")
}

func TestRedisProviderNoTTL(t *testing.T) {
	ctx := context.Background()
	p, mr := newTestProvider(t)

	_, err := p.Set(ctx, "logical", []byte("v"), 1, 0)
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), mr.TTL("logical"))

	require.NoError(t, p.Del(ctx, "logical"))
	require.NoError(t, p.Del(ctx, "logical"))
	assert.False(t, mr.Exists("logical"))
}

func TestRedisProviderSurfacesOutage(t *testing.T) {
	ctx := context.Background()
	p, mr := newTestProvider(t)
	mr.Close()

	_, _, err := p.Get(ctx, "k")
	assert.Error(t, err)
}

func TestNilClient(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorIs(t, err, ErrNilClient)
}
