package fusion

import (
	"fmt"
	"math"

	"github.com/go-playground/validator/v10"

	"FinFusion/internal/domain/models"
)

var validate = validator.New()

// Config for ConfluenceFusion.
type Config struct {
	BaseWeights            models.ConfidenceWeights                 `yaml:"base_weights"`
	AdaptiveWeighting      bool                                     `yaml:"adaptive_weighting"`
	VolatilityAdjustment   bool                                     `yaml:"volatility_adjustment"`
	TimeDecay              bool                                     `yaml:"time_decay"`
	CorrelationBoost       bool                                     `yaml:"correlation_boost"`
	MinConfidenceThreshold float64                                  `yaml:"min_confidence_threshold" validate:"gte=0,lte=1"`
	MaxConfidenceThreshold float64                                  `yaml:"max_confidence_threshold" validate:"gte=0,lte=1"`
	DecayRate              float64                                  `yaml:"decay_rate" validate:"gte=0"` // per hour of staleness
	BoostThreshold         float64                                  `yaml:"boost_threshold" validate:"gte=0,lte=1"`
	BoostFactor            float64                                  `yaml:"boost_factor" validate:"gte=1"`
	OptimalVolatility      float64                                  `yaml:"optimal_volatility" validate:"gt=0"`
	PredictorBlend         float64                                  `yaml:"predictor_blend" validate:"gte=0,lte=1"`
	PatternBlend           float64                                  `yaml:"pattern_blend" validate:"gte=0,lte=1"`
	PerformanceWindow      int                                      `yaml:"performance_window" validate:"gte=1"`
	MinPerformanceSamples  int                                      `yaml:"min_performance_samples" validate:"gte=1"`
	RegimeMultipliers      map[models.RegimeType]map[string]float64 `yaml:"regime_multipliers"`
}

func DefaultConfig() Config {
	return Config{
		BaseWeights: models.ConfidenceWeights{
			Technical:    0.25,
			Pattern:      0.15,
			Volume:       0.12,
			Timeframe:    0.12,
			Correlation:  0.10,
			MarketRegime: 0.10,
			Volatility:   0.08,
			Liquidity:    0.08,
		},
		AdaptiveWeighting:      true,
		VolatilityAdjustment:   true,
		TimeDecay:              true,
		CorrelationBoost:       true,
		MinConfidenceThreshold: 0.1,
		MaxConfidenceThreshold: 0.95,
		DecayRate:              0.1,
		BoostThreshold:         0.7,
		BoostFactor:            1.1,
		OptimalVolatility:      0.3,
		PredictorBlend:         0.2,
		PatternBlend:           0.2,
		PerformanceWindow:      50,
		MinPerformanceSamples:  5,
		RegimeMultipliers: map[models.RegimeType]map[string]float64{
			models.RegimeTrending: {
				models.FactorTechnical:  1.2,
				models.FactorTimeframe:  1.3,
				models.FactorPattern:    0.9,
				models.FactorVolatility: 0.9,
			},
			models.RegimeRanging: {
				models.FactorPattern:     1.2,
				models.FactorCorrelation: 1.1,
				models.FactorTechnical:   0.9,
				models.FactorTimeframe:   0.8,
			},
			models.RegimeBreakout: {
				models.FactorVolume:     1.4,
				models.FactorVolatility: 1.2,
				models.FactorPattern:    1.1,
				models.FactorTimeframe:  0.9,
			},
			models.RegimeReversal: {
				models.FactorPattern:      1.3,
				models.FactorTechnical:    1.1,
				models.FactorMarketRegime: 1.2,
				models.FactorTimeframe:    0.8,
			},
		},
	}
}

// Validate rejects out-of-range values and multiplier tables naming unknown factors.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("fusion config: %w", err)
	}
	if c.MinConfidenceThreshold > c.MaxConfidenceThreshold {
		return fmt.Errorf("fusion config: min confidence %.2f above max %.2f", c.MinConfidenceThreshold, c.MaxConfidenceThreshold)
	}
	if s := c.BaseWeights.Sum(); s <= 0 || math.IsNaN(s) || math.IsInf(s, 0) {
		return fmt.Errorf("fusion config: base weights must have a positive sum, got %v", s)
	}
	for regime, table := range c.RegimeMultipliers {
		if _, err := models.NewConfidenceWeights(table); err != nil {
			return fmt.Errorf("fusion config: regime %s: %w", regime, err)
		}
		for name, m := range table {
			if m < 0 {
				return fmt.Errorf("fusion config: regime %s: negative multiplier for %s", regime, name)
			}
		}
	}
	return nil
}

type Option func(*Config)

// WithOverrides returns a modified copy of c; nested tables are copied.
func (c Config) WithOverrides(opts ...Option) Config {
	out := c
	out.RegimeMultipliers = make(map[models.RegimeType]map[string]float64, len(c.RegimeMultipliers))
	for r, table := range c.RegimeMultipliers {
		cp := make(map[string]float64, len(table))
		for k, v := range table {
			cp[k] = v
		}
		out.RegimeMultipliers[r] = cp
	}
	for _, opt := range opts {
		opt(&out)
	}
	return out
}

func WithBaseWeights(w models.ConfidenceWeights) Option {
	return func(c *Config) { c.BaseWeights = w }
}

func WithAdaptiveWeighting(v bool) Option {
	return func(c *Config) { c.AdaptiveWeighting = v }
}

func WithVolatilityAdjustment(v bool) Option {
	return func(c *Config) { c.VolatilityAdjustment = v }
}

func WithTimeDecay(v bool) Option {
	return func(c *Config) { c.TimeDecay = v }
}

func WithCorrelationBoost(v bool) Option {
	return func(c *Config) { c.CorrelationBoost = v }
}

func WithConfidenceBounds(lo, hi float64) Option {
	return func(c *Config) {
		c.MinConfidenceThreshold = lo
		c.MaxConfidenceThreshold = hi
	}
}

func WithDecayRate(v float64) Option {
	return func(c *Config) { c.DecayRate = v }
}

func WithRegimeMultiplier(r models.RegimeType, factor string, m float64) Option {
	return func(c *Config) {
		if c.RegimeMultipliers[r] == nil {
			c.RegimeMultipliers[r] = map[string]float64{}
		}
		c.RegimeMultipliers[r][factor] = m
	}
}
