package thresholds

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"FinFusion/internal/domain/models"
)

var validate = validator.New()

// Config drives the ThresholdController. Values are immutable once handed to a
// controller; derive variants with WithOverrides.
type Config struct {
	Base                models.AdaptiveThresholds     `yaml:"base"`
	VolatilityWindow    int                           `yaml:"volatility_window" validate:"gte=2"`
	AdaptationSpeed     float64                       `yaml:"adaptation_speed" validate:"gt=0,lte=1"`
	MaxAdjustment       float64                       `yaml:"max_adjustment" validate:"gt=0,lt=1"`
	MinDataPoints       int                           `yaml:"min_data_points" validate:"gte=2"`
	MaxStepRatio        float64                       `yaml:"max_step_ratio" validate:"gt=0,lte=1"`
	MaterialChange      float64                       `yaml:"material_change" validate:"gte=0"`
	MaterialChangeRatio float64                       `yaml:"material_change_ratio" validate:"gte=0"`
	HistorySize         int                           `yaml:"history_size" validate:"gte=1"`
	Timeframe           string                        `yaml:"timeframe"`
	SessionAdjustments  map[models.Session]float64    `yaml:"session_adjustments"`
	RegimeAdjustments   map[models.RegimeType]float64 `yaml:"regime_adjustments"`
}

// DefaultBase returns the stock interpretation levels.
func DefaultBase() models.AdaptiveThresholds {
	return models.AdaptiveThresholds{
		RSI:        models.RSIThresholds{Oversold: 30, Overbought: 70, Neutral: [2]float64{40, 60}},
		WaveTrend:  models.WaveTrendThresholds{BuyThreshold: -60, SellThreshold: 60, ExtremeLevel: 80},
		Volume:     models.VolumeThresholds{SpikeThreshold: 1.5, LowVolumeThreshold: 0.5},
		Volatility: models.VolatilityThresholds{Low: 0.15, High: 0.5},
		Confidence: models.ConfidenceThresholds{Min: 0.6, Strong: 0.8},
	}
}

// DefaultConfig returns the default controller configuration.
func DefaultConfig() Config {
	return Config{
		Base:                DefaultBase(),
		VolatilityWindow:    20,
		AdaptationSpeed:     0.3,
		MaxAdjustment:       0.3,
		MinDataPoints:       20,
		MaxStepRatio:        0.10,
		MaterialChange:      1.0,
		MaterialChangeRatio: 0.05,
		HistorySize:         100,
		Timeframe:           "1h",
		SessionAdjustments: map[models.Session]float64{
			models.SessionAsian:   0.8,
			models.SessionLondon:  1.2,
			models.SessionNewYork: 1.1,
			models.SessionOverlap: 1.3,
		},
		RegimeAdjustments: map[models.RegimeType]float64{
			models.RegimeTrending: 1.1,
			models.RegimeRanging:  0.9,
			models.RegimeBreakout: 1.4,
			models.RegimeReversal: 0.8,
		},
	}
}

// Validate checks ranges and the ordering of the base levels.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("thresholds config: %w", err)
	}
	b := c.Base
	if !(b.RSI.Oversold < b.RSI.Neutral[0] && b.RSI.Neutral[0] <= b.RSI.Neutral[1] && b.RSI.Neutral[1] < b.RSI.Overbought) {
		return fmt.Errorf("thresholds config: rsi levels out of order: %+v", b.RSI)
	}
	if b.WaveTrend.BuyThreshold >= b.WaveTrend.SellThreshold {
		return fmt.Errorf("thresholds config: wave trend buy %.2f >= sell %.2f", b.WaveTrend.BuyThreshold, b.WaveTrend.SellThreshold)
	}
	if b.Volatility.Low <= 0 || b.Volatility.Low >= b.Volatility.High {
		return fmt.Errorf("thresholds config: volatility band invalid: %+v", b.Volatility)
	}
	for k, v := range c.SessionAdjustments {
		if v <= 0 {
			return fmt.Errorf("thresholds config: session %s multiplier must be > 0", k)
		}
	}
	for k, v := range c.RegimeAdjustments {
		if v <= 0 {
			return fmt.Errorf("thresholds config: regime %s multiplier must be > 0", k)
		}
	}
	return nil
}

// Option mutates a config copy.
type Option func(*Config)

// WithOverrides returns a copy of c with opts applied. c itself is not modified.
func (c Config) WithOverrides(opts ...Option) Config {
	out := c
	out.SessionAdjustments = make(map[models.Session]float64, len(c.SessionAdjustments))
	for k, v := range c.SessionAdjustments {
		out.SessionAdjustments[k] = v
	}
	out.RegimeAdjustments = make(map[models.RegimeType]float64, len(c.RegimeAdjustments))
	for k, v := range c.RegimeAdjustments {
		out.RegimeAdjustments[k] = v
	}
	for _, opt := range opts {
		opt(&out)
	}
	return out
}

func WithBase(b models.AdaptiveThresholds) Option {
	return func(c *Config) { c.Base = b }
}

func WithAdaptationSpeed(v float64) Option {
	return func(c *Config) { c.AdaptationSpeed = v }
}

func WithMaxAdjustment(v float64) Option {
	return func(c *Config) { c.MaxAdjustment = v }
}

func WithVolatilityWindow(n int) Option {
	return func(c *Config) { c.VolatilityWindow = n }
}

func WithMinDataPoints(n int) Option {
	return func(c *Config) { c.MinDataPoints = n }
}

func WithTimeframe(tf string) Option {
	return func(c *Config) { c.Timeframe = tf }
}

func WithHistorySize(n int) Option {
	return func(c *Config) { c.HistorySize = n }
}

func WithSessionAdjustment(s models.Session, v float64) Option {
	return func(c *Config) { c.SessionAdjustments[s] = v }
}

func WithRegimeAdjustment(r models.RegimeType, v float64) Option {
	return func(c *Config) { c.RegimeAdjustments[r] = v }
}
