package cache

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Total string `json:"total"`
	Count int    `json:"count"`
}

func newTestCache(t *testing.T, ttl time.Duration) (*JSON, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client, "pricing:", ttl), mr
}

func TestJSONRoundTrip(t *testing.T) {
	c, mr := newTestCache(t, time.Minute)
	ctx := context.Background()

	var got payload
	found, err := c.Get(ctx, "k1", &got)
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, c.Set(ctx, "k1", payload{Total: "12.50", Count: 2}))
	require.True(t, mr.Exists("pricing:k1"))
	require.Equal(t, time.Minute, mr.TTL("pricing:k1"))

	found, err = c.Get(ctx, "k1", &got)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, payload{Total: "12.50", Count: 2}, got)
}

func TestJSONExpires(t *testing.T) {
	c, mr := newTestCache(t, time.Second)
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "k", payload{Count: 1}))
	mr.FastForward(2 * time.Second)

	var got payload
	found, err := c.Get(ctx, "k", &got)
	require.NoError(t, err)
	require.False(t, found)
}

func TestJSONCorruptValue(t *testing.T) {
	c, mr := newTestCache(t, time.Minute)
	require.NoError(t, mr.Set("pricing:bad", "{not-json"))
	var got payload
	_, err := c.Get(context.Background(), "bad", &got)
	require.Error(t, err)
}

func TestJSONDisabled(t *testing.T) {
	var nilCache *JSON
	require.False(t, nilCache.Enabled())
	found, err := nilCache.Get(context.Background(), "k", &payload{})
	require.NoError(t, err)
	require.False(t, found)
	require.NoError(t, nilCache.Set(context.Background(), "k", payload{}))

	noTTL := New(redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"}), "", 0)
	require.False(t, noTTL.Enabled())
	require.NoError(t, noTTL.Set(context.Background(), "k", payload{}))
}
