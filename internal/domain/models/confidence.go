package models

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// ErrUnknownWeightKey is returned when a weight map names a factor that does not exist.
var ErrUnknownWeightKey = errors.New("unknown confidence weight key")

// Factor names, in their canonical order.
const (
	FactorTechnical    = "technical"
	FactorPattern      = "pattern"
	FactorVolume       = "volume"
	FactorTimeframe    = "timeframe"
	FactorCorrelation  = "correlation"
	FactorMarketRegime = "market_regime"
	FactorVolatility   = "volatility"
	FactorLiquidity    = "liquidity"
)

// FactorNames lists all eight factors in canonical order.
var FactorNames = [8]string{
	FactorTechnical,
	FactorPattern,
	FactorVolume,
	FactorTimeframe,
	FactorCorrelation,
	FactorMarketRegime,
	FactorVolatility,
	FactorLiquidity,
}

// ConfidenceFactors holds the eight per-cycle factor values, each in [0,1].
type ConfidenceFactors struct {
	Technical    float64 `json:"technical"`
	Pattern      float64 `json:"pattern"`
	Volume       float64 `json:"volume"`
	Timeframe    float64 `json:"timeframe"`
	Correlation  float64 `json:"correlation"`
	MarketRegime float64 `json:"market_regime"`
	Volatility   float64 `json:"volatility"`
	Liquidity    float64 `json:"liquidity"`
}

// Values returns the factors in canonical order.
func (f ConfidenceFactors) Values() [8]float64 {
	return [8]float64{f.Technical, f.Pattern, f.Volume, f.Timeframe, f.Correlation, f.MarketRegime, f.Volatility, f.Liquidity}
}

// Ptr returns a pointer to the named factor, or nil when the name is unknown.
func (f *ConfidenceFactors) Ptr(name string) *float64 {
	switch name {
	case FactorTechnical:
		return &f.Technical
	case FactorPattern:
		return &f.Pattern
	case FactorVolume:
		return &f.Volume
	case FactorTimeframe:
		return &f.Timeframe
	case FactorCorrelation:
		return &f.Correlation
	case FactorMarketRegime:
		return &f.MarketRegime
	case FactorVolatility:
		return &f.Volatility
	case FactorLiquidity:
		return &f.Liquidity
	}
	return nil
}

// ConfidenceWeights has the same fixed shape as ConfidenceFactors.
type ConfidenceWeights struct {
	Technical    float64 `json:"technical" yaml:"technical" validate:"gte=0"`
	Pattern      float64 `json:"pattern" yaml:"pattern" validate:"gte=0"`
	Volume       float64 `json:"volume" yaml:"volume" validate:"gte=0"`
	Timeframe    float64 `json:"timeframe" yaml:"timeframe" validate:"gte=0"`
	Correlation  float64 `json:"correlation" yaml:"correlation" validate:"gte=0"`
	MarketRegime float64 `json:"market_regime" yaml:"market_regime" validate:"gte=0"`
	Volatility   float64 `json:"volatility" yaml:"volatility" validate:"gte=0"`
	Liquidity    float64 `json:"liquidity" yaml:"liquidity" validate:"gte=0"`
}

// NewConfidenceWeights builds weights from a name->value map. Missing keys are zero,
// unknown keys are rejected.
func NewConfidenceWeights(m map[string]float64) (ConfidenceWeights, error) {
	var w ConfidenceWeights
	var unknown []string
	for k, v := range m {
		p := w.Ptr(k)
		if p == nil {
			unknown = append(unknown, k)
			continue
		}
		*p = v
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return ConfidenceWeights{}, fmt.Errorf("%w: %v", ErrUnknownWeightKey, unknown)
	}
	return w, nil
}

// Values returns the weights in canonical order.
func (w ConfidenceWeights) Values() [8]float64 {
	return [8]float64{w.Technical, w.Pattern, w.Volume, w.Timeframe, w.Correlation, w.MarketRegime, w.Volatility, w.Liquidity}
}

// Sum of all eight weights.
func (w ConfidenceWeights) Sum() float64 {
	s := 0.0
	for _, v := range w.Values() {
		s += v
	}
	return s
}

// Ptr returns a pointer to the named weight, or nil when the name is unknown.
func (w *ConfidenceWeights) Ptr(name string) *float64 {
	switch name {
	case FactorTechnical:
		return &w.Technical
	case FactorPattern:
		return &w.Pattern
	case FactorVolume:
		return &w.Volume
	case FactorTimeframe:
		return &w.Timeframe
	case FactorCorrelation:
		return &w.Correlation
	case FactorMarketRegime:
		return &w.MarketRegime
	case FactorVolatility:
		return &w.Volatility
	case FactorLiquidity:
		return &w.Liquidity
	}
	return nil
}

// Map renders the weights keyed by factor name.
func (w ConfidenceWeights) Map() map[string]float64 {
	vals := w.Values()
	out := make(map[string]float64, len(vals))
	for i, name := range FactorNames {
		out[name] = vals[i]
	}
	return out
}

// ConfidenceAdjustment is one entry of the fusion audit trail.
type ConfidenceAdjustment struct {
	Type   string  `json:"type"`
	Factor string  `json:"factor,omitempty"`
	Before float64 `json:"before"`
	After  float64 `json:"after"`
	Reason string  `json:"reason"`
}

// RiskLevel buckets the final decision.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// WeightedConfidence is the final decision of one fusion cycle.
type WeightedConfidence struct {
	ID                string                 `json:"id"`
	Symbol            string                 `json:"symbol"`
	Timeframe         string                 `json:"timeframe"`
	Timestamp         time.Time              `json:"timestamp"`
	OverallConfidence float64                `json:"overall_confidence"`
	Signal            Signal                 `json:"signal"`
	Factors           ConfidenceFactors      `json:"factors"`
	Weights           ConfidenceWeights      `json:"weights"`
	Adjustments       []ConfidenceAdjustment `json:"adjustments"`
	Reliability       float64                `json:"reliability"`
	RiskLevel         RiskLevel              `json:"risk_level"`
}
