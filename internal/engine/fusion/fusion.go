// Package fusion combines matrix scores, thresholds, predictor output and
// market context into one weighted confidence decision.
package fusion

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"FinFusion/internal/domain/models"
	"FinFusion/internal/engine/ringbuf"
	"FinFusion/internal/services/features"
)

// Fusion is safe for concurrent use; Calculate holds no lock while computing.
type Fusion struct {
	mu    sync.RWMutex
	cfg   Config
	valid bool

	perf *ringbuf.Ring[float64]
	now  func() time.Time
}

func NewFusion(cfg Config) *Fusion {
	window := cfg.PerformanceWindow
	if window < 1 {
		window = DefaultConfig().PerformanceWindow
	}
	return &Fusion{
		cfg:   cfg,
		valid: cfg.Validate() == nil,
		perf:  ringbuf.New[float64](window),
		now:   time.Now,
	}
}

// SetClock replaces the wall clock used for staleness.
func (f *Fusion) SetClock(now func() time.Time) {
	f.mu.Lock()
	f.now = now
	f.mu.Unlock()
}

func (f *Fusion) Config() Config {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.cfg
}

func (f *Fusion) Valid() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.valid
}

// ApplyConfig swaps the configuration. The performance series is kept unless
// the window size changes.
func (f *Fusion) ApplyConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if cfg.PerformanceWindow != f.perf.Cap() {
		old := f.perf.Items()
		f.perf = ringbuf.New[float64](cfg.PerformanceWindow)
		for _, v := range old {
			f.perf.Push(v)
		}
	}
	f.cfg = cfg
	f.valid = true
	return nil
}

// RecordOutcome feeds the realized quality of a past decision, in [0,1], into
// the rolling performance series.
func (f *Fusion) RecordOutcome(score float64) {
	f.mu.RLock()
	perf := f.perf
	f.mu.RUnlock()
	perf.Push(features.Clamp01(score))
}

// Performance returns the rolling mean outcome and the number of outcomes.
func (f *Fusion) Performance() (float64, int) {
	f.mu.RLock()
	perf := f.perf
	f.mu.RUnlock()
	items := perf.Items()
	return features.Mean(items), len(items)
}

// Calculate runs one fusion cycle. It never fails: broken contributors fall
// back to defaults and are listed in the adjustments.
func (f *Fusion) Calculate(in Input) models.WeightedConfidence {
	f.mu.RLock()
	cfg, valid, clock := f.cfg, f.valid, f.now
	f.mu.RUnlock()

	now := in.Now
	if now.IsZero() {
		now = clock()
	}

	out := models.WeightedConfidence{
		ID:        uuid.NewString(),
		Symbol:    in.Symbol,
		Timeframe: in.Timeframe,
		Timestamp: now,
		Signal:    in.Matrix.DominantSignal,
	}
	if out.Signal == "" {
		out.Signal = models.SignalNeutral
	}

	if !valid {
		out.Adjustments = []models.ConfidenceAdjustment{{
			Type:   AdjInvalidConfig,
			Reason: "invalid fusion configuration, component disabled",
		}}
		out.RiskLevel = models.RiskHigh
		return out
	}

	t := &trail{}
	factors := computeFactors(in, cfg, t)
	blendPredictor(&factors, in, cfg, t)
	weights := adaptWeights(in, cfg, t)

	applyTimeDecay(&factors, in, cfg, now, t)
	applyVolatility(&factors, in, cfg, t)
	avg, n := f.Performance()
	applyPerformance(&factors, avg, n, cfg, t)
	applyCorrelationBoost(&factors, cfg, t)

	raw := 0.0
	fv, wv := factors.Values(), weights.Values()
	for i := range fv {
		raw += fv[i] * wv[i]
	}
	conf := features.Clamp(features.Sanitize(raw, cfg.MinConfidenceThreshold),
		cfg.MinConfidenceThreshold, cfg.MaxConfidenceThreshold)
	t.record(AdjConfidenceClamp, "", raw, conf,
		fmt.Sprintf("confidence bounded to [%.2f, %.2f]", cfg.MinConfidenceThreshold, cfg.MaxConfidenceThreshold))

	out.OverallConfidence = conf
	out.Factors = factors
	out.Weights = weights
	out.Adjustments = t.items
	out.Reliability = reliability(factors, in.Matrix.Correlation)
	out.RiskLevel = riskLevel(conf, factors, in)
	if out.Adjustments == nil {
		out.Adjustments = []models.ConfidenceAdjustment{}
	}
	return out
}
