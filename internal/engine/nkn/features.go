package nkn

import (
	"math"

	talib "github.com/markcheno/go-talib"

	"FinFusion/internal/domain/models"
	"FinFusion/internal/services/features"
)

const featureCount = 16

// extractFeatures summarizes one candle window into the raw (unscaled) feature
// vector: price level and spread, RSI, EMA differential, band position, volume,
// trend, volatility, momentum and the last candle's shape.
func extractFeatures(window []models.Candle) []float64 {
	closes := models.Closes(window)
	vols := models.Volumes(window)
	last := window[len(window)-1]

	hi, lo := window[0].High, window[0].Low
	for _, c := range window {
		hi = math.Max(hi, c.High)
		lo = math.Min(lo, c.Low)
	}

	mean := features.Mean(closes)
	volMean := features.Mean(vols)

	f := make([]float64, 0, featureCount)
	f = append(f,
		last.Close,
		mean,
		features.StdDev(closes),
		hi,
		lo,
		rsi(closes),
		emaDiff(closes),
		bandPosition(closes),
		volMean,
		ratio(last.Volume, volMean, 1),
		ratio(features.LinearSlope(closes)*float64(len(closes)), mean, 0),
		features.StdDev(features.ComputeLogReturns(window)),
		ratio(last.Close-window[0].Close, window[0].Close, 0),
	)
	f = append(f, candleShape(last)...)

	for i := range f {
		f[i] = features.Sanitize(f[i], 0)
	}
	return f
}

func ratio(num, den, def float64) float64 {
	if den == 0 {
		return def
	}
	return num / den
}

func rsi(closes []float64) float64 {
	const period = 14
	if len(closes) <= period {
		return 50
	}
	out := talib.Rsi(closes, period)
	return out[len(out)-1]
}

// emaDiff is EMA(5) - EMA(12) relative to the last close.
func emaDiff(closes []float64) float64 {
	if len(closes) < 12 {
		return 0
	}
	fast := talib.Ema(closes, 5)
	slow := talib.Ema(closes, 12)
	return ratio(fast[len(fast)-1]-slow[len(slow)-1], closes[len(closes)-1], 0)
}

// bandPosition locates the last close inside 2-sigma Bollinger bands: 0 at the
// lower band, 1 at the upper band.
func bandPosition(closes []float64) float64 {
	period := 20
	if len(closes) < period {
		period = len(closes)
	}
	if period < 2 {
		return 0.5
	}
	upper, _, lower := talib.BBands(closes, period, 2.0, 2.0, talib.SMA)
	u, l := upper[len(upper)-1], lower[len(lower)-1]
	if u <= l {
		return 0.5
	}
	return (closes[len(closes)-1] - l) / (u - l)
}

// candleShape returns body, upper-wick and lower-wick shares of the bar range.
func candleShape(c models.Candle) []float64 {
	rng := c.Range()
	if rng <= 0 {
		return []float64{0, 0, 0}
	}
	top := math.Max(c.Open, c.Close)
	bottom := math.Min(c.Open, c.Close)
	return []float64{
		math.Abs(c.Close-c.Open) / rng,
		(c.High - top) / rng,
		(bottom - c.Low) / rng,
	}
}

// scaler z-scores features with statistics fixed at fit time.
type scaler struct {
	mean []float64
	std  []float64
}

func fitScaler(rows [][]float64) *scaler {
	s := &scaler{mean: make([]float64, featureCount), std: make([]float64, featureCount)}
	col := make([]float64, len(rows))
	for j := 0; j < featureCount; j++ {
		for i, r := range rows {
			col[i] = r[j]
		}
		s.mean[j] = features.Mean(col)
		s.std[j] = features.StdDev(col)
		if s.std[j] == 0 {
			s.std[j] = 1
		}
	}
	return s
}

// transform scales x and clamps each value to ±5 sigma.
func (s *scaler) transform(x []float64) []float64 {
	out := make([]float64, len(x))
	for j, v := range x {
		out[j] = features.Clamp(features.Sanitize((v-s.mean[j])/s.std[j], 0), -5, 5)
	}
	return out
}

// withTag appends the one-hot pattern tag; tag < 0 leaves every slot at zero.
func withTag(x []float64, tag int) []float64 {
	out := make([]float64, len(x)+len(models.PatternTypes))
	copy(out, x)
	if tag >= 0 {
		out[len(x)+tag] = 1
	}
	return out
}

func inputSize() int {
	return featureCount + len(models.PatternTypes)
}
