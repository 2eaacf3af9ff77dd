package models

import "time"

// Bar is one ingest message: a closed candle plus whatever the upstream
// indicator pipeline attached to it. Everything but the candle is optional.
type Bar struct {
	Symbol     string            `json:"symbol"`
	Timeframe  string            `json:"timeframe"`
	Candle     Candle            `json:"candle"`
	Sample     *IndicatorSample  `json:"sample,omitempty"`
	Conditions *MarketConditions `json:"conditions,omitempty"`
	Zones      []ConfluenceZone  `json:"zones,omitempty"`
}

// Time of the bar's open.
func (b Bar) Time() time.Time { return b.Candle.Bucket }
