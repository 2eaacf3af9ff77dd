package models

import "time"

// Signal is the direction an indicator (or the whole matrix) points to.
type Signal string

const (
	SignalBullish Signal = "bullish"
	SignalBearish Signal = "bearish"
	SignalNeutral Signal = "neutral"
)

// Strength grades how decisive a reading is.
type Strength string

const (
	StrengthWeak     Strength = "weak"
	StrengthModerate Strength = "moderate"
	StrengthStrong   Strength = "strong"
)

// Trend categories carried by an IndicatorSample.
const (
	TrendBullish  = "bullish"
	TrendBearish  = "bearish"
	TrendSideways = "sideways"
)

// Momentum categories carried by an IndicatorSample.
const (
	MomentumStrong  = "strong"
	MomentumWeak    = "weak"
	MomentumNeutral = "neutral"
)

// WaveTrend signal values.
const (
	WTBuy     = "buy"
	WTSell    = "sell"
	WTNeutral = "neutral"
)

// WaveTrend is the wt1/wt2 oscillator pair with its own signal and divergence flag.
type WaveTrend struct {
	WT1        float64 `json:"wt1"`
	WT2        float64 `json:"wt2"`
	Signal     string  `json:"signal"`
	Divergence string  `json:"divergence,omitempty"` // "bullish", "bearish" or empty
}

// IndicatorSample is one bar's worth of externally computed indicator values.
type IndicatorSample struct {
	Timestamp  time.Time `json:"timestamp"`
	RSI        float64   `json:"rsi"`
	WaveTrend  WaveTrend `json:"wave_trend"`
	PVT        float64   `json:"pvt"`
	Trend      string    `json:"trend"`
	Momentum   string    `json:"momentum"`
	Volatility float64   `json:"volatility"`
}

// Indicator names used across scores, correlations and divergences.
const (
	IndicatorRSI        = "rsi"
	IndicatorWaveTrend  = "wave_trend"
	IndicatorWT1        = "wt1"
	IndicatorWT2        = "wt2"
	IndicatorPVT        = "pvt"
	IndicatorMomentum   = "momentum"
	IndicatorTrend      = "trend"
	IndicatorVolume     = "volume"
	IndicatorVolatility = "volatility"
)
