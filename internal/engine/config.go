package engine

import (
	"fmt"
	"time"

	"FinFusion/internal/engine/fusion"
	"FinFusion/internal/engine/nkn"
	"FinFusion/internal/engine/scoring"
	"FinFusion/internal/engine/thresholds"
)

// Config bundles the four component configs for one engine.
type Config struct {
	Thresholds      thresholds.Config `yaml:"thresholds"`
	Scoring         scoring.Config    `yaml:"scoring"`
	Predictor       nkn.Config        `yaml:"predictor"`
	Fusion          fusion.Config     `yaml:"fusion"`
	AutoTrain       bool              `yaml:"auto_train"`
	RetrainInterval time.Duration     `yaml:"retrain_interval"`
}

func DefaultConfig() Config {
	return Config{
		Thresholds:      thresholds.DefaultConfig(),
		Scoring:         scoring.DefaultConfig(),
		Predictor:       nkn.DefaultConfig(),
		Fusion:          fusion.DefaultConfig(),
		AutoTrain:       true,
		RetrainInterval: 6 * time.Hour,
	}
}

// Validate checks every component config. Engines still start with an invalid
// component; that component just stays inert.
func (c Config) Validate() error {
	if err := c.Thresholds.Validate(); err != nil {
		return err
	}
	if err := c.Scoring.Validate(); err != nil {
		return err
	}
	if err := c.Predictor.Validate(); err != nil {
		return err
	}
	if err := c.Fusion.Validate(); err != nil {
		return err
	}
	if c.RetrainInterval < 0 {
		return fmt.Errorf("engine config: negative retrain interval %s", c.RetrainInterval)
	}
	return nil
}

// forTimeframe pins the threshold controller to the engine's bar size.
func (c Config) forTimeframe(tf string) Config {
	out := c
	out.Thresholds = c.Thresholds.WithOverrides(thresholds.WithTimeframe(tf))
	return out
}
