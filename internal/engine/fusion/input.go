package fusion

import (
	"time"

	"FinFusion/internal/domain/models"
)

// Input is everything one fusion cycle consumes.
type Input struct {
	Symbol      string
	Timeframe   string
	Matrix      models.IndicatorMatrix
	Thresholds  models.AdaptiveThresholds
	Conditions  models.MarketConditions
	Zones       []models.ConfluenceZone
	Candles     []models.Candle // oldest first
	Predictions []models.NKNPrediction
	Patterns    []models.NKNPatternResult // sorted by probability, descending

	// DataTime is when the newest input was observed. Zero means the bucket of
	// the last candle.
	DataTime time.Time
	// Now overrides the fusion clock for this cycle.
	Now time.Time
}

func (in Input) dataTime() time.Time {
	if !in.DataTime.IsZero() {
		return in.DataTime
	}
	if n := len(in.Candles); n > 0 {
		return in.Candles[n-1].Bucket
	}
	return time.Time{}
}

func (in Input) lastClose() (float64, bool) {
	if n := len(in.Candles); n > 0 && in.Candles[n-1].Close > 0 {
		return in.Candles[n-1].Close, true
	}
	return 0, false
}

// volatilityBands returns the high/low volatility cutoffs from the working
// thresholds, falling back to fixed levels when they are unset.
func (in Input) volatilityBands() (low, high float64) {
	low, high = 0.15, 0.5
	if in.Thresholds.Volatility.Low > 0 {
		low = in.Thresholds.Volatility.Low
	}
	if in.Thresholds.Volatility.High > low {
		high = in.Thresholds.Volatility.High
	}
	return low, high
}
