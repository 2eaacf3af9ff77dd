package cache

import (
	"context"
	"errors"
	"time"
)

// LayeredCache keeps a short-lived in-process copy (L1) in front of a
// shared store (L2). Writes go through to L2; locks live only in L2 so
// replicas contend on the same key.
type LayeredCache struct {
	l1    *MemoryCache
	l2    Store
	l1TTL time.Duration
}

// NewLayeredCache caps L1 at l1Items entries served for at most l1TTL.
func NewLayeredCache(l2 Store, l1Items int, l1TTL time.Duration) *LayeredCache {
	if l1TTL <= 0 {
		l1TTL = 30 * time.Second
	}
	return &LayeredCache{l1: NewMemoryCache(l1Items), l2: l2, l1TTL: l1TTL}
}

func (c *LayeredCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.l2.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	l1 := c.l1TTL
	if ttl > 0 && ttl < l1 {
		l1 = ttl
	}
	return c.l1.Set(ctx, key, value, l1)
}

func (c *LayeredCache) Get(ctx context.Context, key string) ([]byte, error) {
	if b, err := c.l1.Get(ctx, key); err == nil {
		return b, nil
	}
	b, err := c.l2.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	_ = c.l1.Set(ctx, key, b, c.l1TTL)
	return b, nil
}

// MGet reads L2 and falls back to whatever L1 still holds when L2 fails.
func (c *LayeredCache) MGet(ctx context.Context, keys ...string) (map[string][]byte, error) {
	out, err := c.l2.MGet(ctx, keys...)
	if err == nil {
		return out, nil
	}
	held, _ := c.l1.MGet(ctx, keys...)
	if len(held) == 0 {
		return nil, err
	}
	return held, nil
}

func (c *LayeredCache) TryLock(ctx context.Context, key string, ttl time.Duration) (*Lock, error) {
	return c.l2.TryLock(ctx, key, ttl)
}

func (c *LayeredCache) Close() error {
	return errors.Join(c.l1.Close(), c.l2.Close())
}

var _ Store = (*LayeredCache)(nil)
