// Package redisstore implements the key-value broker capability set on
// top of Redis. All transport failures surface as
// domain.ErrBrokerUnavailable so callers can map them to a 503.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/file-classifier/internal/domain"
)

// Client wraps a go-redis client behind domain.Store.
type Client struct {
	rdb *redis.Client
}

// New constructs a Client for the given address (host:port).
func New(addr string) *Client {
	return &Client{rdb: redis.NewClient(&redis.Options{Addr: addr})}
}

// NewFromClient wraps an existing go-redis client (used by tests).
func NewFromClient(rdb *redis.Client) *Client { return &Client{rdb: rdb} }

// Close releases the underlying connection pool.
func (c *Client) Close() error { return c.rdb.Close() }

// wrap tags transport failures while keeping the underlying error in the
// chain so context cancellation stays visible to errors.Is.
func wrap(op string, err error) error {
	return fmt.Errorf("op=redisstore.%s: %w: %w", op, domain.ErrBrokerUnavailable, err)
}

func (c *Client) ListPushLeft(ctx context.Context, name string, payload []byte) error {
	if err := c.rdb.LPush(ctx, name, payload).Err(); err != nil {
		return wrap("ListPushLeft", err)
	}
	return nil
}

func (c *Client) ListPushRight(ctx context.Context, name string, payload []byte) error {
	if err := c.rdb.RPush(ctx, name, payload).Err(); err != nil {
		return wrap("ListPushRight", err)
	}
	return nil
}

// ListBlockingPopLeft waits up to timeout for an element at the head of the
// list. A miss returns (nil, nil).
func (c *Client) ListBlockingPopLeft(ctx context.Context, name string, timeout time.Duration) ([]byte, error) {
	res, err := c.rdb.BLPop(ctx, timeout, name).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, wrap("ListBlockingPopLeft", err)
	}
	// BLPop returns [key, value].
	if len(res) < 2 {
		return nil, nil
	}
	return []byte(res[1]), nil
}

func (c *Client) ListBlockingPopRight(ctx context.Context, name string, timeout time.Duration) ([]byte, error) {
	res, err := c.rdb.BRPop(ctx, timeout, name).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, wrap("ListBlockingPopRight", err)
	}
	if len(res) < 2 {
		return nil, nil
	}
	return []byte(res[1]), nil
}

func (c *Client) ListLen(ctx context.Context, name string) (int64, error) {
	n, err := c.rdb.LLen(ctx, name).Result()
	if err != nil {
		return 0, wrap("ListLen", err)
	}
	return n, nil
}

func (c *Client) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return wrap("SetWithTTL", err)
	}
	return nil
}

// Get returns (nil, nil) for a missing key.
func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, wrap("Get", err)
	}
	return b, nil
}

func (c *Client) Delete(ctx context.Context, key string) error {
	if err := c.rdb.Del(ctx, key).Err(); err != nil {
		return wrap("Delete", err)
	}
	return nil
}

func (c *Client) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := c.rdb.Expire(ctx, key, ttl).Err(); err != nil {
		return wrap("Expire", err)
	}
	return nil
}

func (c *Client) HashSet(ctx context.Context, key string, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	if err := c.rdb.HSet(ctx, key, fields).Err(); err != nil {
		return wrap("HashSet", err)
	}
	return nil
}

func (c *Client) HashGetAll(ctx context.Context, key string) (map[string]string, error) {
	m, err := c.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, wrap("HashGetAll", err)
	}
	return m, nil
}

func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return wrap("Ping", err)
	}
	return nil
}
