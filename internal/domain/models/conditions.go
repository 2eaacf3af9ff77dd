package models

// RegimeType classifies the prevailing market behaviour.
type RegimeType string

const (
	RegimeTrending RegimeType = "trending"
	RegimeRanging  RegimeType = "ranging"
	RegimeBreakout RegimeType = "breakout"
	RegimeReversal RegimeType = "reversal"
)

// Session is the trading session a bar falls into.
type Session string

const (
	SessionAsian   Session = "asian"
	SessionLondon  Session = "london"
	SessionNewYork Session = "newyork"
	SessionOverlap Session = "overlap"
)

// VolumeProfile buckets.
const (
	VolumeLow    = "low"
	VolumeMedium = "medium"
	VolumeHigh   = "high"
)

// Market session activity.
const (
	MarketActive = "active"
	MarketQuiet  = "quiet"
)

type Regime struct {
	Type       RegimeType `json:"type"`
	Strength   float64    `json:"strength"`
	Duration   int        `json:"duration"`
	Confidence float64    `json:"confidence"`
}

// MarketConditions is supplied by the caller each cycle (or derived by the host).
type MarketConditions struct {
	Volatility    float64 `json:"volatility"`
	Regime        Regime  `json:"regime"`
	TrendStrength float64 `json:"trend_strength"`
	VolumeProfile string  `json:"volume_profile"`
	TimeOfDay     Session `json:"time_of_day"`
	MarketSession string  `json:"market_session"`
}

// ZoneType is the side of price a confluence zone sits on.
type ZoneType string

const (
	ZoneSupport    ZoneType = "support"
	ZoneResistance ZoneType = "resistance"
)

// ConfluenceZone is a price level produced by an external pattern detector.
type ConfluenceZone struct {
	PriceLevel  float64  `json:"price_level"`
	Strength    float64  `json:"strength"`
	Factors     []string `json:"factors"`
	Type        ZoneType `json:"type"`
	Reliability float64  `json:"reliability"`
}
