package usecase

import (
	"sync"

	"FinFusion/internal/domain/models"
	"FinFusion/internal/engine"
	"FinFusion/internal/engine/ringbuf"
)

// series is the rolling history the host keeps for one engine.
type series struct {
	mu         sync.Mutex
	candles    *ringbuf.Ring[models.Candle]
	samples    *ringbuf.Ring[models.IndicatorSample]
	conditions *models.MarketConditions
	zones      []models.ConfluenceZone
}

// Snapshot is a consistent copy of one series, oldest first.
type Snapshot struct {
	Candles    []models.Candle
	Samples    []models.IndicatorSample
	Conditions *models.MarketConditions
	Zones      []models.ConfluenceZone
}

// History holds per symbol/timeframe ring buffers of ingested bars.
type History struct {
	mu   sync.RWMutex
	size int
	m    map[engine.Key]*series
}

func NewHistory(size int) *History {
	if size < 1 {
		size = 600
	}
	return &History{size: size, m: make(map[engine.Key]*series)}
}

func (h *History) series(k engine.Key, create bool) *series {
	h.mu.RLock()
	s, ok := h.m[k]
	h.mu.RUnlock()
	if ok || !create {
		return s
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if s, ok := h.m[k]; ok {
		return s
	}
	s = &series{
		candles: ringbuf.New[models.Candle](h.size),
		samples: ringbuf.New[models.IndicatorSample](h.size),
	}
	h.m[k] = s
	return s
}

// Append adds bar to its series. Bars not newer than the last stored candle
// are dropped and Append reports false. Conditions only describe the bar
// they came with; zones stay until a bar brings new ones.
func (h *History) Append(bar models.Bar) bool {
	s := h.series(engine.Key{Symbol: bar.Symbol, Timeframe: bar.Timeframe}, true)
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stale(bar) {
		return false
	}
	s.candles.Push(bar.Candle)
	if m, ok := sampleOf(bar); ok {
		s.samples.Push(m)
	}
	s.conditions = conditionsOf(bar)
	if bar.Zones != nil {
		s.zones = append([]models.ConfluenceZone(nil), bar.Zones...)
	}
	return true
}

// Peek returns the snapshot the series would hold after Append(bar) without
// storing anything. ok is false when bar is stale.
func (h *History) Peek(bar models.Bar) (Snapshot, bool) {
	var out Snapshot
	if s := h.series(engine.Key{Symbol: bar.Symbol, Timeframe: bar.Timeframe}, false); s != nil {
		s.mu.Lock()
		if s.stale(bar) {
			s.mu.Unlock()
			return Snapshot{}, false
		}
		out = s.snapshot()
		s.mu.Unlock()
	}
	out.Candles = appendBounded(out.Candles, bar.Candle, h.size)
	if m, ok := sampleOf(bar); ok {
		out.Samples = appendBounded(out.Samples, m, h.size)
	}
	out.Conditions = conditionsOf(bar)
	if bar.Zones != nil {
		out.Zones = append([]models.ConfluenceZone(nil), bar.Zones...)
	}
	return out, true
}

// stale reports whether bar is not newer than the last stored candle.
// Callers hold s.mu.
func (s *series) stale(bar models.Bar) bool {
	last, ok := s.candles.Newest()
	return ok && !bar.Candle.Bucket.After(last.Bucket)
}

func (s *series) snapshot() Snapshot {
	out := Snapshot{
		Candles: s.candles.Items(),
		Samples: s.samples.Items(),
		Zones:   append([]models.ConfluenceZone(nil), s.zones...),
	}
	if s.conditions != nil {
		c := *s.conditions
		out.Conditions = &c
	}
	return out
}

func sampleOf(bar models.Bar) (models.IndicatorSample, bool) {
	if bar.Sample == nil {
		return models.IndicatorSample{}, false
	}
	m := *bar.Sample
	if m.Timestamp.IsZero() {
		m.Timestamp = bar.Candle.Bucket
	}
	return m, true
}

func conditionsOf(bar models.Bar) *models.MarketConditions {
	if bar.Conditions == nil {
		return nil
	}
	c := *bar.Conditions
	return &c
}

func appendBounded[T any](xs []T, v T, size int) []T {
	xs = append(xs, v)
	if len(xs) > size {
		xs = xs[len(xs)-size:]
	}
	return xs
}

// Seed replaces the series with stored history, e.g. at startup.
func (h *History) Seed(k engine.Key, candles []models.Candle, samples []models.IndicatorSample) {
	s := h.series(k, true)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.candles.Reset()
	s.samples.Reset()
	for _, c := range candles {
		s.candles.Push(c)
	}
	for _, m := range samples {
		s.samples.Push(m)
	}
}

// Snapshot returns the series for k; ok is false when nothing was stored.
func (h *History) Snapshot(k engine.Key) (Snapshot, bool) {
	s := h.series(k, false)
	if s == nil {
		return Snapshot{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.snapshot()
	return out, len(out.Candles) > 0
}

// Len is the number of candles stored for k.
func (h *History) Len(k engine.Key) int {
	if s := h.series(k, false); s != nil {
		return s.candles.Len()
	}
	return 0
}

// Keys lists every tracked series.
func (h *History) Keys() []engine.Key {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]engine.Key, 0, len(h.m))
	for k := range h.m {
		out = append(out, k)
	}
	return out
}
