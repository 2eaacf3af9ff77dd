package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type decision struct {
	ID         string  `json:"id"`
	Confidence float64 `json:"confidence"`
}

// clock lets tests move a MemoryCache through time.
type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newClockedCache(max int) (*MemoryCache, *clock) {
	c := &clock{t: time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)}
	mc := NewMemoryCache(max)
	mc.now = c.now
	return mc, c
}

func TestJSONRoundTrip(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache(0)

	require.NoError(t, SetJSON(ctx, mc, "d", decision{ID: "a", Confidence: 0.7}, time.Minute))
	got, err := GetJSON[decision](ctx, mc, "d")
	require.NoError(t, err)
	assert.Equal(t, decision{ID: "a", Confidence: 0.7}, got)

	_, err = GetJSON[decision](ctx, mc, "missing")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryCacheExpiry(t *testing.T) {
	ctx := context.Background()
	mc, clk := newClockedCache(10)

	require.NoError(t, mc.Set(ctx, "k", []byte("1"), time.Minute))
	clk.advance(59 * time.Second)
	_, err := mc.Get(ctx, "k")
	require.NoError(t, err)
	clk.advance(time.Second)
	_, err = mc.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
	assert.Zero(t, mc.Len())
}

func TestMemoryCacheEvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache(2)

	require.NoError(t, mc.Set(ctx, "a", []byte("1"), 0))
	require.NoError(t, mc.Set(ctx, "b", []byte("2"), 0))
	_, err := mc.Get(ctx, "a") // touch a
	require.NoError(t, err)
	require.NoError(t, mc.Set(ctx, "c", []byte("3"), 0))

	assert.Equal(t, 2, mc.Len())
	_, err = mc.Get(ctx, "b")
	assert.ErrorIs(t, err, ErrCacheMiss)
	_, err = mc.Get(ctx, "a")
	assert.NoError(t, err)
}

func TestMemoryCacheCopiesValues(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache(0)
	v := []byte("abc")
	require.NoError(t, mc.Set(ctx, "k", v, 0))
	v[0] = 'x'
	got, err := mc.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
}

func TestMemoryCacheLock(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache(0)

	lock, err := mc.TryLock(ctx, "train:btcusdt:1m", time.Minute)
	require.NoError(t, err)
	require.NotNil(t, lock)
	assert.Equal(t, "train:btcusdt:1m", lock.Key())

	held, err := mc.TryLock(ctx, "train:btcusdt:1m", time.Minute)
	require.NoError(t, err)
	assert.Nil(t, held)

	require.NoError(t, lock.Release(ctx))
	again, err := mc.TryLock(ctx, "train:btcusdt:1m", time.Minute)
	require.NoError(t, err)
	assert.NotNil(t, again)
}

func TestExpiredLockReleaseKeepsNewHolder(t *testing.T) {
	ctx := context.Background()
	mc, clk := newClockedCache(10)

	first, err := mc.TryLock(ctx, "train", time.Minute)
	require.NoError(t, err)
	clk.advance(2 * time.Minute)
	second, err := mc.TryLock(ctx, "train", time.Minute)
	require.NoError(t, err)
	require.NotNil(t, second)

	require.NoError(t, first.Release(ctx))
	blocked, err := mc.TryLock(ctx, "train", time.Minute)
	require.NoError(t, err)
	assert.Nil(t, blocked, "the stale holder must not free the new holder's lock")
}

func TestNilLockRelease(t *testing.T) {
	var l *Lock
	assert.NoError(t, l.Release(context.Background()))
}

func TestGetManyJSONSkipsUndecodable(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache(0)

	require.NoError(t, SetJSON(ctx, mc, "x", decision{ID: "x"}, 0))
	require.NoError(t, mc.Set(ctx, "bad", []byte("not json"), 0))

	got, err := GetManyJSON[decision](ctx, mc, "x", "bad", "missing")
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, "x", got["x"].ID)
}

type downStore struct{ *MemoryCache }

var errDown = errors.New("down")

func (downStore) Get(context.Context, string) ([]byte, error) { return nil, errDown }
func (downStore) MGet(context.Context, ...string) (map[string][]byte, error) {
	return nil, errDown
}

func TestLayeredCacheReadsThrough(t *testing.T) {
	ctx := context.Background()
	l2, clk := newClockedCache(10)
	lc := NewLayeredCache(l2, 10, time.Hour)

	require.NoError(t, SetJSON(ctx, l2, "k", decision{ID: "k"}, time.Minute))
	got, err := GetJSON[decision](ctx, lc, "k")
	require.NoError(t, err)
	assert.Equal(t, "k", got.ID)

	// L1 keeps serving once L2 has expired the entry.
	clk.advance(2 * time.Minute)
	got, err = GetJSON[decision](ctx, lc, "k")
	require.NoError(t, err)
	assert.Equal(t, "k", got.ID)
}

func TestLayeredCacheMGetFallsBackToMemory(t *testing.T) {
	ctx := context.Background()
	lc := NewLayeredCache(downStore{NewMemoryCache(0)}, 10, time.Minute)

	require.NoError(t, SetJSON(ctx, lc, "k", decision{ID: "k"}, time.Minute))
	out, err := lc.MGet(ctx, "k")
	require.NoError(t, err)
	assert.Contains(t, out, "k")

	_, err = lc.MGet(ctx, "other")
	assert.ErrorIs(t, err, errDown)
}

func TestLayeredLocksLiveInL2(t *testing.T) {
	ctx := context.Background()
	l2 := NewMemoryCache(0)
	lc := NewLayeredCache(l2, 10, time.Minute)

	lock, err := lc.TryLock(ctx, "train", time.Minute)
	require.NoError(t, err)
	require.NotNil(t, lock)
	held, err := l2.TryLock(ctx, "train", time.Minute)
	require.NoError(t, err)
	assert.Nil(t, held)
}

func TestKey(t *testing.T) {
	assert.Equal(t, "decision:btcusdt:1m", Key("decision", "BTCUSDT", "1m"))
}
