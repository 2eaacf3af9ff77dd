package engine

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Key identifies one engine.
type Key struct {
	Symbol    string
	Timeframe string
}

func (k Key) String() string { return k.Symbol + "/" + k.Timeframe }

// Registry lazily creates one engine per symbol/timeframe.
type Registry struct {
	mu      sync.RWMutex
	cfg     Config
	opts    []Option
	engines map[Key]*Engine
}

func NewRegistry(cfg Config, opts ...Option) *Registry {
	return &Registry{cfg: cfg, opts: opts, engines: make(map[Key]*Engine)}
}

// Get returns the engine for symbol/timeframe, creating it on first use.
func (r *Registry) Get(symbol, timeframe string) *Engine {
	k := Key{Symbol: symbol, Timeframe: timeframe}
	r.mu.RLock()
	e, ok := r.engines[k]
	r.mu.RUnlock()
	if ok {
		return e
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.engines[k]; ok {
		return e
	}
	e = New(symbol, timeframe, r.cfg, r.opts...)
	r.engines[k] = e
	return e
}

// Lookup returns an existing engine without creating one.
func (r *Registry) Lookup(symbol, timeframe string) (*Engine, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.engines[Key{Symbol: symbol, Timeframe: timeframe}]
	return e, ok
}

// Keys lists the tracked engines in a stable order.
func (r *Registry) Keys() []Key {
	r.mu.RLock()
	keys := make([]Key, 0, len(r.engines))
	for k := range r.engines {
		keys = append(keys, k)
	}
	r.mu.RUnlock()
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys
}

func (r *Registry) Config() Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cfg
}

// ApplyConfig stores cfg for new engines and hot-reloads existing ones.
func (r *Registry) ApplyConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	r.cfg = cfg
	engines := make([]*Engine, 0, len(r.engines))
	for _, e := range r.engines {
		engines = append(engines, e)
	}
	r.mu.Unlock()

	var errs []error
	for _, e := range engines {
		if err := e.ApplyConfig(cfg); err != nil {
			errs = append(errs, fmt.Errorf("%s/%s: %w", e.Symbol(), e.Timeframe(), err))
		}
	}
	return errors.Join(errs...)
}

// Close stops background work of every engine.
func (r *Registry) Close() {
	r.mu.Lock()
	engines := r.engines
	r.engines = make(map[Key]*Engine)
	r.mu.Unlock()
	for _, e := range engines {
		e.Close()
	}
}
