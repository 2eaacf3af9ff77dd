package nkn

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Config for the predictor. An invalid config disables the predictor instead of
// failing the caller.
type Config struct {
	Enabled             bool          `yaml:"enabled"`
	NetworkDepth        int           `yaml:"network_depth" validate:"gte=1,lte=8"`
	HiddenSize          int           `yaml:"hidden_size" validate:"gte=2,lte=256"`
	WindowSize          int           `yaml:"window_size" validate:"gte=15,lte=500"`
	TrainingPeriod      int           `yaml:"training_period" validate:"gte=20"`
	PredictionHorizon   int           `yaml:"prediction_horizon" validate:"gte=1,lte=100"`
	ConfidenceThreshold float64       `yaml:"confidence_threshold" validate:"gte=0,lte=1"`
	LearningRate        float64       `yaml:"learning_rate" validate:"gt=0,lte=1"`
	LearningRateDecay   float64       `yaml:"learning_rate_decay" validate:"gt=0,lte=1"`
	MinLearningRate     float64       `yaml:"min_learning_rate" validate:"gte=0"`
	MaxEpochs           int           `yaml:"max_epochs" validate:"gte=1"`
	BatchSize           int           `yaml:"batch_size" validate:"gte=1"`
	ValidationSplit     float64       `yaml:"validation_split" validate:"gt=0,lt=1"`
	DecayConstant       float64       `yaml:"decay_constant" validate:"gte=0"`
	MaxTrainingDuration time.Duration `yaml:"max_training_duration"`
	Seed                int64         `yaml:"seed"`
}

func DefaultConfig() Config {
	return Config{
		Enabled:             true,
		NetworkDepth:        2,
		HiddenSize:          16,
		WindowSize:          20,
		TrainingPeriod:      100,
		PredictionHorizon:   5,
		ConfidenceThreshold: 0.7,
		LearningRate:        0.05,
		LearningRateDecay:   0.99,
		MinLearningRate:     1e-5,
		MaxEpochs:           60,
		BatchSize:           16,
		ValidationSplit:     0.2,
		DecayConstant:       0.1,
		Seed:                42,
	}
}

func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("nkn config: %w", err)
	}
	// need at least a handful of (window, next return) samples on each side of the split
	if c.TrainingPeriod < c.WindowSize+10 {
		return fmt.Errorf("nkn config: training_period %d must exceed window_size %d by at least 10", c.TrainingPeriod, c.WindowSize)
	}
	return nil
}

// sameShape reports whether two configs produce interchangeable networks.
func (c Config) sameShape(o Config) bool {
	return c.NetworkDepth == o.NetworkDepth && c.HiddenSize == o.HiddenSize && c.WindowSize == o.WindowSize
}

type Option func(*Config)

// WithOverrides returns a modified copy of c.
func (c Config) WithOverrides(opts ...Option) Config {
	out := c
	for _, opt := range opts {
		opt(&out)
	}
	return out
}

func WithEnabled(v bool) Option {
	return func(c *Config) { c.Enabled = v }
}

func WithNetwork(depth, hidden int) Option {
	return func(c *Config) {
		c.NetworkDepth = depth
		c.HiddenSize = hidden
	}
}

func WithTrainingPeriod(n int) Option {
	return func(c *Config) { c.TrainingPeriod = n }
}

func WithEpochs(n int) Option {
	return func(c *Config) { c.MaxEpochs = n }
}

func WithLearningRate(lr float64) Option {
	return func(c *Config) { c.LearningRate = lr }
}

func WithConfidenceThreshold(v float64) Option {
	return func(c *Config) { c.ConfidenceThreshold = v }
}

func WithHorizon(h int) Option {
	return func(c *Config) { c.PredictionHorizon = h }
}

func WithMaxTrainingDuration(d time.Duration) Option {
	return func(c *Config) { c.MaxTrainingDuration = d }
}

func WithSeed(seed int64) Option {
	return func(c *Config) { c.Seed = seed }
}
