package models

import "time"

// RSIThresholds are the oscillator interpretation levels.
type RSIThresholds struct {
	Oversold   float64    `json:"oversold" yaml:"oversold"`
	Overbought float64    `json:"overbought" yaml:"overbought"`
	Neutral    [2]float64 `json:"neutral" yaml:"neutral"`
}

type WaveTrendThresholds struct {
	BuyThreshold  float64 `json:"buy_threshold" yaml:"buy_threshold"`
	SellThreshold float64 `json:"sell_threshold" yaml:"sell_threshold"`
	ExtremeLevel  float64 `json:"extreme_level" yaml:"extreme_level"`
}

type VolumeThresholds struct {
	SpikeThreshold     float64 `json:"spike_threshold" yaml:"spike_threshold"`
	LowVolumeThreshold float64 `json:"low_volume_threshold" yaml:"low_volume_threshold"`
}

type VolatilityThresholds struct {
	Low  float64 `json:"low" yaml:"low"`
	High float64 `json:"high" yaml:"high"`
}

type ConfidenceThresholds struct {
	Min    float64 `json:"min" yaml:"min"`
	Strong float64 `json:"strong" yaml:"strong"`
}

// AdaptiveThresholds is the full set of levels the scorers interpret against.
type AdaptiveThresholds struct {
	RSI        RSIThresholds        `json:"rsi" yaml:"rsi"`
	WaveTrend  WaveTrendThresholds  `json:"wave_trend" yaml:"wave_trend"`
	Volume     VolumeThresholds     `json:"volume" yaml:"volume"`
	Volatility VolatilityThresholds `json:"volatility" yaml:"volatility"`
	Confidence ConfidenceThresholds `json:"confidence" yaml:"confidence"`
}

// ThresholdAdjustment records one material threshold move.
type ThresholdAdjustment struct {
	Indicator        string    `json:"indicator"`
	OriginalValue    float64   `json:"original_value"`
	AdjustedValue    float64   `json:"adjusted_value"`
	AdjustmentFactor float64   `json:"adjustment_factor"`
	Reason           string    `json:"reason"`
	Timestamp        time.Time `json:"timestamp"`
}
