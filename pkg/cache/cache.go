package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrCacheMiss = errors.New("cache: key not found")

// Store keeps encoded values under string keys and hands out exclusive
// locks. The engine uses it for latest decisions and training locks.
type Store interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	// MGet returns the keys that were found; missing keys are absent.
	MGet(ctx context.Context, keys ...string) (map[string][]byte, error)
	// TryLock returns nil and no error when another holder has key.
	TryLock(ctx context.Context, key string, ttl time.Duration) (*Lock, error)
	Close() error
}

// Lock is one holder's claim on a key. Release only removes the claim it
// made, so a lock that expired and was taken by another holder survives.
type Lock struct {
	key     string
	token   string
	release func(ctx context.Context, key, token string) error
}

func (l *Lock) Key() string { return l.key }

func (l *Lock) Release(ctx context.Context) error {
	if l == nil {
		return nil
	}
	return l.release(ctx, l.key, l.token)
}

// Key joins parts under prefix. Parts are lower-cased so "BTCUSDT" and
// "btcusdt" share an entry.
func Key(prefix string, parts ...interface{}) string {
	var b strings.Builder
	b.WriteString(prefix)
	for _, p := range parts {
		b.WriteByte(':')
		b.WriteString(strings.ToLower(fmt.Sprint(p)))
	}
	return b.String()
}

func SetJSON[T any](ctx context.Context, s Store, key string, v T, ttl time.Duration) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("cache: encode %s: %w", key, err)
	}
	return s.Set(ctx, key, b, ttl)
}

func GetJSON[T any](ctx context.Context, s Store, key string) (T, error) {
	var v T
	b, err := s.Get(ctx, key)
	if err != nil {
		return v, err
	}
	if err := json.Unmarshal(b, &v); err != nil {
		return v, fmt.Errorf("cache: decode %s: %w", key, err)
	}
	return v, nil
}

// GetManyJSON decodes every key found. Entries that no longer decode as T
// are treated as missing.
func GetManyJSON[T any](ctx context.Context, s Store, keys ...string) (map[string]T, error) {
	out := make(map[string]T, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	raw, err := s.MGet(ctx, keys...)
	if err != nil {
		return out, err
	}
	for k, b := range raw {
		var v T
		if json.Unmarshal(b, &v) == nil {
			out[k] = v
		}
	}
	return out, nil
}
