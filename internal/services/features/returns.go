package features

import (
	"math"
	"time"

	"FinFusion/internal/domain/models"
)

// ComputeLogReturns returns ln(C_t / C_{t-1}) for consecutive candles. A
// non-positive close yields a zero return instead of NaN.
func ComputeLogReturns(candles []models.Candle) []float64 {
	if len(candles) < 2 {
		return nil
	}
	out := make([]float64, len(candles)-1)
	for i := 1; i < len(candles); i++ {
		if prev, cur := candles[i-1].Close, candles[i].Close; prev > 0 && cur > 0 {
			out[i-1] = math.Log(cur / prev)
		}
	}
	return out
}

var barWidths = map[string]time.Duration{
	"1s":  time.Second,
	"1m":  time.Minute,
	"5m":  5 * time.Minute,
	"15m": 15 * time.Minute,
	"1h":  time.Hour,
	"4h":  4 * time.Hour,
	"1d":  24 * time.Hour,
}

const year = 365 * 24 * time.Hour

// TimeframeDuration is the bar width of tf; unknown timeframes count as 1m.
func TimeframeDuration(tf string) time.Duration {
	if d, ok := barWidths[tf]; ok {
		return d
	}
	return time.Minute
}

// BarsPerYearForTF counts tf bars in a 365-day year; crypto trades around
// the clock.
func BarsPerYearForTF(tf string) float64 {
	return float64(year / TimeframeDuration(tf))
}

// RealizedVolatility annualizes the sample deviation of the last window
// returns. A window longer than the series uses the whole series.
func RealizedVolatility(logReturns []float64, window int, barsPerYear float64) float64 {
	if window < 2 {
		return 0
	}
	return StdDev(Tail(logReturns, window)) * math.Sqrt(barsPerYear)
}
