package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// foreverTTL stands in for "no expiry".
const foreverTTL = 7 * 24 * time.Hour

type memoryEntry struct {
	key     string
	value   []byte
	expires time.Time
}

// MemoryCache is a bounded LRU store. Expired entries are dropped when
// touched or when they reach the cold end of the list.
type MemoryCache struct {
	mu    sync.Mutex
	max   int
	order *list.List // front is most recently used
	items map[string]*list.Element
	now   func() time.Time
}

// NewMemoryCache holds at most maxItems entries; non-positive means 1000.
func NewMemoryCache(maxItems int) *MemoryCache {
	if maxItems <= 0 {
		maxItems = 1000
	}
	return &MemoryCache{
		max:   maxItems,
		order: list.New(),
		items: make(map[string]*list.Element),
		now:   time.Now,
	}
}

func (m *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.put(key, append([]byte(nil), value...), ttl)
	return nil
}

func (m *MemoryCache) put(key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = foreverTTL
	}
	expires := m.now().Add(ttl)
	if el, ok := m.items[key]; ok {
		e := el.Value.(*memoryEntry)
		e.value, e.expires = value, expires
		m.order.MoveToFront(el)
		return
	}
	for m.order.Len() >= m.max {
		m.drop(m.order.Back())
	}
	m.items[key] = m.order.PushFront(&memoryEntry{key: key, value: value, expires: expires})
}

// live returns the entry for key and marks it used, or nil when it is
// missing or expired.
func (m *MemoryCache) live(key string) *memoryEntry {
	el, ok := m.items[key]
	if !ok {
		return nil
	}
	e := el.Value.(*memoryEntry)
	if !m.now().Before(e.expires) {
		m.drop(el)
		return nil
	}
	m.order.MoveToFront(el)
	return e
}

func (m *MemoryCache) drop(el *list.Element) {
	if el == nil {
		return
	}
	m.order.Remove(el)
	delete(m.items, el.Value.(*memoryEntry).key)
}

func (m *MemoryCache) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.live(key)
	if e == nil {
		return nil, ErrCacheMiss
	}
	return append([]byte(nil), e.value...), nil
}

func (m *MemoryCache) MGet(_ context.Context, keys ...string) (map[string][]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string][]byte, len(keys))
	for _, k := range keys {
		if e := m.live(k); e != nil {
			out[k] = append([]byte(nil), e.value...)
		}
	}
	return out, nil
}

func (m *MemoryCache) TryLock(_ context.Context, key string, ttl time.Duration) (*Lock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.live(key) != nil {
		return nil, nil
	}
	token := uuid.NewString()
	m.put(key, []byte(token), ttl)
	return &Lock{key: key, token: token, release: m.release}, nil
}

func (m *MemoryCache) release(_ context.Context, key, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if el, ok := m.items[key]; ok && string(el.Value.(*memoryEntry).value) == token {
		m.drop(el)
	}
	return nil
}

// Len reports stored entries, expired ones not yet dropped included.
func (m *MemoryCache) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.order.Len()
}

func (m *MemoryCache) Close() error { return nil }

var _ Store = (*MemoryCache)(nil)
