package redisstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/file-classifier/internal/adapter/redisstore"
	"github.com/fairyhunter13/file-classifier/internal/domain"
)

func newStore(t *testing.T) (*redisstore.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c := redisstore.NewFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestClient_ListPushPop(t *testing.T) {
	c, _ := newStore(t)
	ctx := context.Background()

	require.NoError(t, c.ListPushLeft(ctx, "q", []byte("a")))
	require.NoError(t, c.ListPushLeft(ctx, "q", []byte("b")))

	n, err := c.ListLen(ctx, "q")
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	// Push-left pop-right keeps FIFO order.
	v, err := c.ListBlockingPopRight(ctx, "q", 100*time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, []byte("a"), v)
	v, err = c.ListBlockingPopRight(ctx, "q", 100*time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, []byte("b"), v)
}

func TestClient_BlockingPopMiss(t *testing.T) {
	c, _ := newStore(t)
	ctx := context.Background()

	v, err := c.ListBlockingPopLeft(ctx, "empty", 50*time.Millisecond)
	require.NoError(t, err)
	require.Nil(t, v)

	v, err = c.ListBlockingPopRight(ctx, "empty", 50*time.Millisecond)
	require.NoError(t, err)
	require.Nil(t, v)
}

func TestClient_SetGetDelete(t *testing.T) {
	c, mr := newStore(t)
	ctx := context.Background()

	require.NoError(t, c.SetWithTTL(ctx, "k", []byte("v"), time.Hour))
	v, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, []byte("v"), v)
	require.Greater(t, mr.TTL("k"), time.Duration(0))

	require.NoError(t, c.Delete(ctx, "k"))
	v, err = c.Get(ctx, "k")
	require.NoError(t, err)
	require.Nil(t, v)
}

func TestClient_Expire(t *testing.T) {
	c, mr := newStore(t)
	ctx := context.Background()

	require.NoError(t, c.ListPushRight(ctx, "res", []byte("x")))
	require.NoError(t, c.Expire(ctx, "res", time.Minute))
	require.Equal(t, time.Minute, mr.TTL("res"))
}

func TestClient_Hash(t *testing.T) {
	c, _ := newStore(t)
	ctx := context.Background()

	require.NoError(t, c.HashSet(ctx, "h", map[string]any{"count": 3, "ratio": 0.5}))
	fields, err := c.HashGetAll(ctx, "h")
	require.NoError(t, err)
	require.Equal(t, "3", fields["count"])
	require.Contains(t, fields, "ratio")

	// Missing hash yields an empty map, not an error.
	fields, err = c.HashGetAll(ctx, "missing")
	require.NoError(t, err)
	require.Empty(t, fields)
}

func TestClient_CancellationVisibleThroughWrap(t *testing.T) {
	c, _ := newStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Shutdown cancellation must stay recoverable so the worker's claim loop
	// exits instead of backing off.
	_, err := c.ListBlockingPopRight(ctx, "q", 100*time.Millisecond)
	require.ErrorIs(t, err, context.Canceled)
	require.ErrorIs(t, err, domain.ErrBrokerUnavailable)

	_, err = c.Get(ctx, "k")
	require.ErrorIs(t, err, context.Canceled)
}

func TestClient_BrokerUnavailable(t *testing.T) {
	c, mr := newStore(t)
	ctx := context.Background()
	require.NoError(t, c.Ping(ctx))

	mr.Close()
	err := c.Ping(ctx)
	require.ErrorIs(t, err, domain.ErrBrokerUnavailable)
	err = c.ListPushLeft(ctx, "q", []byte("a"))
	require.ErrorIs(t, err, domain.ErrBrokerUnavailable)
	_, err = c.Get(ctx, "k")
	require.ErrorIs(t, err, domain.ErrBrokerUnavailable)
}
