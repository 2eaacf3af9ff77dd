package scoring

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"FinFusion/internal/domain/models"
)

var validate = validator.New()

// Config controls the ScoringMatrix.
type Config struct {
	Lookback            int                `yaml:"lookback" validate:"gte=5"`
	MinDataPoints       int                `yaml:"min_data_points" validate:"gte=2"`
	ShortWindow         int                `yaml:"short_window" validate:"gte=2"`
	ExtremaOrder        int                `yaml:"extrema_order" validate:"gte=1"`
	MinExtremaSpacing   int                `yaml:"min_extrema_spacing" validate:"gte=1"`
	StrongCorrelation   float64            `yaml:"strong_correlation" validate:"gt=0,lte=1"`
	ModerateCorrelation float64            `yaml:"moderate_correlation" validate:"gt=0,lte=1"`
	DominanceRatio      float64            `yaml:"dominance_ratio" validate:"gte=1"`
	Weights             map[string]float64 `yaml:"weights"`
	DivergenceBoost     map[string]float64 `yaml:"divergence_boost"`
	DefaultBoost        float64            `yaml:"default_boost" validate:"gte=1"`
}

// DefaultConfig returns the stock scoring configuration.
func DefaultConfig() Config {
	return Config{
		Lookback:            20,
		MinDataPoints:       10,
		ShortWindow:         10,
		ExtremaOrder:        2,
		MinExtremaSpacing:   3,
		StrongCorrelation:   0.7,
		ModerateCorrelation: 0.4,
		DominanceRatio:      1.2,
		Weights: map[string]float64{
			models.IndicatorRSI:       0.25,
			models.IndicatorWaveTrend: 0.25,
			models.IndicatorPVT:       0.15,
			models.IndicatorMomentum:  0.15,
			models.IndicatorTrend:     0.10,
			models.IndicatorVolume:    0.10,
		},
		DivergenceBoost: map[string]float64{
			models.IndicatorRSI: 1.3,
		},
		DefaultBoost: 1.2,
	}
}

func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("scoring config: %w", err)
	}
	if c.ModerateCorrelation >= c.StrongCorrelation {
		return fmt.Errorf("scoring config: moderate correlation %.2f must be below strong %.2f", c.ModerateCorrelation, c.StrongCorrelation)
	}
	for k, w := range c.Weights {
		if w < 0 {
			return fmt.Errorf("scoring config: negative weight for %s", k)
		}
	}
	return nil
}

// Option mutates a config copy.
type Option func(*Config)

// WithOverrides returns a modified copy of c.
func (c Config) WithOverrides(opts ...Option) Config {
	out := c
	out.Weights = copyMap(c.Weights)
	out.DivergenceBoost = copyMap(c.DivergenceBoost)
	for _, opt := range opts {
		opt(&out)
	}
	return out
}

func copyMap(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func WithLookback(n int) Option {
	return func(c *Config) { c.Lookback = n }
}

func WithMinDataPoints(n int) Option {
	return func(c *Config) { c.MinDataPoints = n }
}

func WithWeight(indicator string, w float64) Option {
	return func(c *Config) { c.Weights[indicator] = w }
}

func WithExtrema(order, spacing int) Option {
	return func(c *Config) {
		c.ExtremaOrder = order
		c.MinExtremaSpacing = spacing
	}
}

func (c Config) boost(indicator string) float64 {
	if b, ok := c.DivergenceBoost[indicator]; ok {
		return b
	}
	return c.DefaultBoost
}
