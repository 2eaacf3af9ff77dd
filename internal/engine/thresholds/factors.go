package thresholds

import (
	"math"

	"FinFusion/internal/domain/models"
	"FinFusion/internal/services/features"
)

// Factors is the breakdown of one cycle's adjustment multiplier.
type Factors struct {
	Volatility       float64           `json:"volatility"`
	VolatilitySource string            `json:"volatility_source"` // "conditions" or "realized"
	VolatilityFactor float64           `json:"volatility_factor"`
	Regime           models.RegimeType `json:"regime"`
	RegimeFactor     float64           `json:"regime_factor"`
	Session          models.Session    `json:"session"`
	SessionFactor    float64           `json:"session_factor"`
	Combined         float64           `json:"combined"`
}

// computeFactors derives the combined multiplier, clamped to [1-max, 1+max].
func computeFactors(cfg Config, candles []models.Candle, cond models.MarketConditions) Factors {
	f := Factors{
		Regime:        cond.Regime.Type,
		RegimeFactor:  1,
		Session:       cond.TimeOfDay,
		SessionFactor: 1,
	}

	if features.Finite(cond.Volatility) && cond.Volatility > 0 {
		f.Volatility = cond.Volatility
		f.VolatilitySource = "conditions"
	} else {
		rets := features.ComputeLogReturns(candles)
		f.Volatility = features.RealizedVolatility(rets, cfg.VolatilityWindow, features.BarsPerYearForTF(cfg.Timeframe))
		f.VolatilitySource = "realized"
	}

	mid := (cfg.Base.Volatility.Low + cfg.Base.Volatility.High) / 2
	if mid <= 0 {
		mid = 0.3
	}
	f.VolatilityFactor = features.Sanitize(1+0.5*(f.Volatility-mid)/mid, 1)

	if v, ok := cfg.RegimeAdjustments[cond.Regime.Type]; ok {
		f.RegimeFactor = v
	}
	if v, ok := cfg.SessionAdjustments[cond.TimeOfDay]; ok {
		f.SessionFactor = v
	}

	combined := features.Sanitize(f.VolatilityFactor*f.RegimeFactor*f.SessionFactor, 1)
	f.Combined = features.Clamp(combined, 1-cfg.MaxAdjustment, 1+cfg.MaxAdjustment)
	return f
}

type scaling int

const (
	scaleDirect   scaling = iota // high-side levels move away from the centre as stress grows
	scaleInverse                 // low-side levels move down as stress grows
	scaleAround50                // RSI levels keep their side of the midpoint; distance to 50 scales
)

// rsiGap is the minimum spacing kept between adjacent RSI levels.
const rsiGap = 1.0

// field describes one adaptive level: how it scales and its hard domain bounds.
type field struct {
	name  string
	ptr   func(*models.AdaptiveThresholds) *float64
	scale scaling
	lo    float64
	hi    float64
}

var fields = []field{
	{"rsi.oversold", func(t *models.AdaptiveThresholds) *float64 { return &t.RSI.Oversold }, scaleAround50, 15, 85},
	{"rsi.overbought", func(t *models.AdaptiveThresholds) *float64 { return &t.RSI.Overbought }, scaleAround50, 15, 85},
	{"rsi.neutral_low", func(t *models.AdaptiveThresholds) *float64 { return &t.RSI.Neutral[0] }, scaleAround50, 15, 85},
	{"rsi.neutral_high", func(t *models.AdaptiveThresholds) *float64 { return &t.RSI.Neutral[1] }, scaleAround50, 15, 85},
	{"wave_trend.buy", func(t *models.AdaptiveThresholds) *float64 { return &t.WaveTrend.BuyThreshold }, scaleDirect, -100, 100},
	{"wave_trend.sell", func(t *models.AdaptiveThresholds) *float64 { return &t.WaveTrend.SellThreshold }, scaleDirect, -100, 100},
	{"wave_trend.extreme", func(t *models.AdaptiveThresholds) *float64 { return &t.WaveTrend.ExtremeLevel }, scaleDirect, 0, 100},
	{"volume.spike", func(t *models.AdaptiveThresholds) *float64 { return &t.Volume.SpikeThreshold }, scaleDirect, 1.05, 5},
	{"volume.low", func(t *models.AdaptiveThresholds) *float64 { return &t.Volume.LowVolumeThreshold }, scaleInverse, 0.05, 0.95},
	{"volatility.low", func(t *models.AdaptiveThresholds) *float64 { return &t.Volatility.Low }, scaleDirect, 0.01, 3},
	{"volatility.high", func(t *models.AdaptiveThresholds) *float64 { return &t.Volatility.High }, scaleDirect, 0.01, 3},
	{"confidence.min", func(t *models.AdaptiveThresholds) *float64 { return &t.Confidence.Min }, scaleDirect, 0.3, 0.95},
	{"confidence.strong", func(t *models.AdaptiveThresholds) *float64 { return &t.Confidence.Strong }, scaleDirect, 0.3, 0.95},
}

func (f field) target(base, factor float64) float64 {
	switch f.scale {
	case scaleInverse:
		return base / factor
	case scaleAround50:
		return 50 + (base-50)*factor
	default:
		return base * factor
	}
}

// envelope is base·(1±max) intersected with the hard domain bounds.
func (f field) envelope(base, maxAdj float64) (float64, float64) {
	a, b := base*(1-maxAdj), base*(1+maxAdj)
	lo, hi := math.Min(a, b), math.Max(a, b)
	lo, hi = math.Max(lo, f.lo), math.Min(hi, f.hi)
	if lo > hi {
		return f.lo, f.hi
	}
	return lo, hi
}

// keepRSIOrder restores oversold < neutral low <= neutral high < overbought.
// Per-field step caps can let adjacent levels cross while they converge; the
// outer levels give way.
func keepRSIOrder(r *models.RSIThresholds) {
	if r.Neutral[0] > r.Neutral[1] {
		mid := (r.Neutral[0] + r.Neutral[1]) / 2
		r.Neutral = [2]float64{mid, mid}
	}
	if r.Oversold > r.Neutral[0]-rsiGap {
		r.Oversold = r.Neutral[0] - rsiGap
	}
	if r.Overbought < r.Neutral[1]+rsiGap {
		r.Overbought = r.Neutral[1] + rsiGap
	}
}
