// Package thresholds adapts indicator interpretation levels to volatility,
// regime and trading session.
package thresholds

import (
	"fmt"
	"math"
	"sync"
	"time"

	"FinFusion/internal/domain/models"
	"FinFusion/internal/engine/ringbuf"
	"FinFusion/internal/services/features"
)

// Controller owns the current adaptive thresholds of one engine.
// Updates are serialized; readers get copies.
type Controller struct {
	mu      sync.Mutex
	cfg     Config
	valid   bool
	current models.AdaptiveThresholds
	history *ringbuf.Ring[models.ThresholdAdjustment]
	recent  []models.ThresholdAdjustment
	last    Factors
	now     func() time.Time
}

// NewController creates a controller starting at cfg.Base. An invalid config yields
// a controller that never moves off its starting levels.
func NewController(cfg Config) *Controller {
	size := cfg.HistorySize
	if size <= 0 {
		size = 100
	}
	return &Controller{
		cfg:     cfg,
		valid:   cfg.Validate() == nil,
		current: cfg.Base,
		history: ringbuf.New[models.ThresholdAdjustment](size),
		now:     time.Now,
	}
}

// SetClock overrides the timestamp source (tests).
func (c *Controller) SetClock(now func() time.Time) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}

// Update runs one adaptation cycle and returns the new thresholds.
// Below MinDataPoints candles it is a no-op.
func (c *Controller) Update(candles []models.Candle, cond models.MarketConditions) models.AdaptiveThresholds {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.recent = nil
	if !c.valid || len(candles) < c.cfg.MinDataPoints {
		return c.current
	}

	f := computeFactors(c.cfg, candles, cond)
	c.last = f
	reason := describe(f)
	ts := c.now()

	next := c.current
	for _, fd := range fields {
		base := *fd.ptr(&c.cfg.Base)
		cur := *fd.ptr(&c.current)
		lo, hi := fd.envelope(base, c.cfg.MaxAdjustment)

		target := features.Clamp(fd.target(base, f.Combined), lo, hi)
		adjusted := features.Clamp(c.smooth(cur, target, base), lo, hi)
		*fd.ptr(&next) = adjusted

		if c.material(cur, adjusted) {
			adj := models.ThresholdAdjustment{
				Indicator:        fd.name,
				OriginalValue:    cur,
				AdjustedValue:    adjusted,
				AdjustmentFactor: f.Combined,
				Reason:           reason,
				Timestamp:        ts,
			}
			c.history.Push(adj)
			c.recent = append(c.recent, adj)
		}
	}
	keepRSIOrder(&next.RSI)
	c.current = next
	return next
}

// smooth moves cur toward target by AdaptationSpeed, capping the step at
// MaxStepRatio of the current value.
func (c *Controller) smooth(cur, target, base float64) float64 {
	step := c.cfg.AdaptationSpeed * (target - cur)
	ref := math.Abs(cur)
	if ref == 0 {
		ref = math.Abs(base)
	}
	limit := c.cfg.MaxStepRatio * ref
	if limit > 0 && math.Abs(step) > limit {
		step = math.Copysign(limit, step)
	}
	return cur + step
}

func (c *Controller) material(before, after float64) bool {
	d := math.Abs(after - before)
	if d > c.cfg.MaterialChange {
		return true
	}
	return before != 0 && d > c.cfg.MaterialChangeRatio*math.Abs(before)
}

func describe(f Factors) string {
	return fmt.Sprintf("volatility=%.3f(%s,x%.2f) regime=%s(x%.2f) session=%s(x%.2f) combined=%.3f",
		f.Volatility, f.VolatilitySource, f.VolatilityFactor,
		orDash(string(f.Regime)), f.RegimeFactor,
		orDash(string(f.Session)), f.SessionFactor,
		f.Combined)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// Current returns a copy of the live thresholds.
func (c *Controller) Current() models.AdaptiveThresholds {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Base returns the configured base thresholds.
func (c *Controller) Base() models.AdaptiveThresholds {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg.Base
}

// History returns recorded adjustments, oldest first.
func (c *Controller) History() []models.ThresholdAdjustment {
	return c.history.Items()
}

// Recent returns the adjustments recorded by the most recent Update.
func (c *Controller) Recent() []models.ThresholdAdjustment {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.ThresholdAdjustment(nil), c.recent...)
}

// LastFactors returns the breakdown of the most recent effective update.
func (c *Controller) LastFactors() Factors {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// Valid reports whether the controller's config passed validation.
func (c *Controller) Valid() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.valid
}

// Reset restores the base thresholds and clears the adjustment history.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.cfg.Base
	c.last = Factors{}
	c.recent = nil
	c.history.Reset()
}

// ApplyConfig swaps the config in place. Current levels are pulled into the new
// envelope; history is kept.
func (c *Controller) ApplyConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cfg = cfg
	c.valid = true
	for _, fd := range fields {
		lo, hi := fd.envelope(*fd.ptr(&cfg.Base), cfg.MaxAdjustment)
		p := fd.ptr(&c.current)
		*p = features.Clamp(*p, lo, hi)
	}
	keepRSIOrder(&c.current.RSI)
	return nil
}
