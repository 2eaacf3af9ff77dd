package conditions

import (
	"math"
	"time"

	"github.com/markcheno/go-talib"

	"FinFusion/internal/domain/models"
	domsvc "FinFusion/internal/domain/service"
	"FinFusion/internal/services/features"
)

// Config tunes the heuristics; zero fields take defaults.
type Config struct {
	VolatilityWindow int     // log returns used for realized volatility
	TrendPeriod      int     // ADX period
	ShortWindow      int     // bars for short-term slope
	LongWindow       int     // bars for the trend SMA and long slope
	HighVolumeRatio  float64 // last volume vs trailing mean
	LowVolumeRatio   float64
	BreakoutRange    float64 // last range vs trailing mean range
}

func DefaultConfig() Config {
	return Config{
		VolatilityWindow: 60,
		TrendPeriod:      14,
		ShortWindow:      5,
		LongWindow:       20,
		HighVolumeRatio:  1.5,
		LowVolumeRatio:   0.5,
		BreakoutRange:    2.0,
	}
}

// Deriver estimates MarketConditions from raw candles.
type Deriver struct {
	cfg Config
	now func() time.Time
}

func New(cfg Config) *Deriver {
	def := DefaultConfig()
	if cfg.VolatilityWindow <= 1 {
		cfg.VolatilityWindow = def.VolatilityWindow
	}
	if cfg.TrendPeriod <= 1 {
		cfg.TrendPeriod = def.TrendPeriod
	}
	if cfg.ShortWindow <= 1 {
		cfg.ShortWindow = def.ShortWindow
	}
	if cfg.LongWindow <= cfg.ShortWindow {
		cfg.LongWindow = max(def.LongWindow, cfg.ShortWindow+1)
	}
	if cfg.HighVolumeRatio <= 1 {
		cfg.HighVolumeRatio = def.HighVolumeRatio
	}
	if cfg.LowVolumeRatio <= 0 || cfg.LowVolumeRatio >= 1 {
		cfg.LowVolumeRatio = def.LowVolumeRatio
	}
	if cfg.BreakoutRange <= 1 {
		cfg.BreakoutRange = def.BreakoutRange
	}
	return &Deriver{cfg: cfg, now: time.Now}
}

// Derive never fails: short or empty series yield neutral conditions.
func (d *Deriver) Derive(timeframe string, candles []models.Candle) models.MarketConditions {
	at := d.now().UTC()
	if n := len(candles); n > 0 {
		at = candles[n-1].Bucket.UTC()
	}
	session := SessionAt(at)
	out := models.MarketConditions{
		Regime:        models.Regime{Type: models.RegimeRanging, Confidence: 0.5},
		VolumeProfile: models.VolumeMedium,
		TimeOfDay:     session,
		MarketSession: activity(session, at),
	}
	if len(candles) < 2 {
		return out
	}

	rets := features.ComputeLogReturns(candles)
	out.Volatility = features.Sanitize(
		features.RealizedVolatility(rets, d.cfg.VolatilityWindow, features.BarsPerYearForTF(timeframe)), 0)
	out.TrendStrength = d.trendStrength(candles)

	volRatio := trailingRatio(models.Volumes(candles), d.cfg.LongWindow)
	switch {
	case volRatio >= d.cfg.HighVolumeRatio:
		out.VolumeProfile = models.VolumeHigh
	case volRatio > 0 && volRatio <= d.cfg.LowVolumeRatio:
		out.VolumeProfile = models.VolumeLow
	}

	out.Regime = d.regime(candles, out.TrendStrength, volRatio)
	return out
}

// trendStrength is ADX/50 clamped to [0,1]; below ADX's warmup it falls
// back to the normalized long-window slope.
func (d *Deriver) trendStrength(candles []models.Candle) float64 {
	n := len(candles)
	p := d.cfg.TrendPeriod
	if n > 2*p {
		high := make([]float64, n)
		low := make([]float64, n)
		for i, c := range candles {
			high[i], low[i] = c.High, c.Low
		}
		adx := talib.Adx(high, low, models.Closes(candles), p)
		return features.Clamp01(features.Sanitize(adx[n-1]/50, 0))
	}
	closes := models.Closes(candles)
	mean := features.Mean(closes)
	if mean <= 0 {
		return 0
	}
	// a 0.5% per-bar drift counts as a full-strength trend
	return features.Clamp01(math.Abs(features.LinearSlope(closes)/mean) / 0.005)
}

func (d *Deriver) regime(candles []models.Candle, ts, volRatio float64) models.Regime {
	closes := models.Closes(candles)
	short := features.LinearSlope(features.Tail(closes, d.cfg.ShortWindow))
	long := features.LinearSlope(features.Tail(closes, d.cfg.LongWindow))
	rangeRatio := trailingRatio(ranges(candles), d.cfg.LongWindow)
	r := models.Regime{Strength: ts, Duration: d.sideDuration(closes)}

	switch {
	case rangeRatio >= d.cfg.BreakoutRange && volRatio >= d.cfg.HighVolumeRatio:
		r.Type = models.RegimeBreakout
		r.Confidence = features.Clamp(rangeRatio/(2*d.cfg.BreakoutRange), 0.5, 1)
	case ts >= 0.5:
		r.Type = models.RegimeTrending
		r.Confidence = ts
	case ts >= 0.25 && short*long < 0:
		r.Type = models.RegimeReversal
		r.Confidence = math.Min(0.9, 0.4+ts)
	default:
		r.Type = models.RegimeRanging
		r.Confidence = math.Max(0.3, 1-ts)
	}
	return r
}

// sideDuration counts trailing bars closing on the same side of the long SMA
// as the last bar.
func (d *Deriver) sideDuration(closes []float64) int {
	n := len(closes)
	if n < d.cfg.LongWindow {
		return 0
	}
	sma := talib.Sma(closes, d.cfg.LongWindow)
	above := closes[n-1] >= sma[n-1]
	count := 0
	for i := n - 1; i >= d.cfg.LongWindow-1; i-- {
		if (closes[i] >= sma[i]) != above {
			break
		}
		count++
	}
	return count
}

// trailingRatio compares the last value with the mean of up to w values before it.
func trailingRatio(xs []float64, w int) float64 {
	n := len(xs)
	if n < 2 {
		return 0
	}
	prev := xs[max(0, n-1-w) : n-1]
	m := features.Mean(prev)
	if m <= 0 {
		return 0
	}
	return features.Sanitize(xs[n-1]/m, 0)
}

func ranges(candles []models.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Range()
	}
	return out
}

// SessionAt buckets a UTC time into the FX-style trading sessions.
func SessionAt(t time.Time) models.Session {
	h := t.UTC().Hour()
	switch {
	case h >= 12 && h < 16:
		return models.SessionOverlap
	case h >= 7 && h < 12:
		return models.SessionLondon
	case h >= 16 && h < 21:
		return models.SessionNewYork
	default:
		return models.SessionAsian
	}
}

func activity(s models.Session, t time.Time) string {
	if wd := t.UTC().Weekday(); wd == time.Saturday || wd == time.Sunday {
		return models.MarketQuiet
	}
	if s == models.SessionAsian {
		return models.MarketQuiet
	}
	return models.MarketActive
}

var _ domsvc.ConditionsDeriver = (*Deriver)(nil)
