package fusion

import (
	"fmt"
	"math"

	"FinFusion/internal/domain/models"
	"FinFusion/internal/services/features"
)

// Factor defaults used when a contributor has no input or fails.
const (
	defaultTechnical   = 0.3
	defaultPattern     = 0.4
	defaultCorrelation = 0.5
	defaultNeutral     = 0.5
)

var strengthMultiplier = map[models.Strength]float64{
	models.StrengthWeak:     0.8,
	models.StrengthModerate: 1.0,
	models.StrengthStrong:   1.2,
}

var regimeMultiplier = map[models.RegimeType]float64{
	models.RegimeTrending: 1.0,
	models.RegimeRanging:  0.8,
	models.RegimeBreakout: 0.9,
	models.RegimeReversal: 0.7,
}

var profileLiquidity = map[string]float64{
	models.VolumeLow:    0.3,
	models.VolumeMedium: 0.6,
	models.VolumeHigh:   0.9,
}

type factorFunc func(in Input, cfg Config) float64

var factorTable = []struct {
	name string
	fn   factorFunc
	def  float64
}{
	{models.FactorTechnical, technicalFactor, defaultTechnical},
	{models.FactorPattern, patternFactor, defaultPattern},
	{models.FactorVolume, volumeFactor, defaultNeutral},
	{models.FactorTimeframe, timeframeFactor, defaultNeutral},
	{models.FactorCorrelation, correlationFactor, defaultCorrelation},
	{models.FactorMarketRegime, regimeFactor, defaultNeutral},
	{models.FactorVolatility, volatilityFactor, defaultNeutral},
	{models.FactorLiquidity, liquidityFactor, defaultNeutral},
}

// computeFactors evaluates every factor in isolation. A panic or a non-finite
// value falls back to that factor's default and is recorded on the trail.
func computeFactors(in Input, cfg Config, t *trail) models.ConfidenceFactors {
	var f models.ConfidenceFactors
	for _, ft := range factorTable {
		v, err := safeFactor(ft.fn, in, cfg)
		if err != nil {
			t.force(AdjFactorFailure, ft.name, v, ft.def, err.Error())
			v = ft.def
		}
		*f.Ptr(ft.name) = v
	}
	return f
}

func safeFactor(fn factorFunc, in Input, cfg Config) (v float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			v, err = math.NaN(), fmt.Errorf("factor panicked: %v", r)
		}
	}()
	v = fn(in, cfg)
	if !features.Finite(v) {
		return v, fmt.Errorf("non-finite factor value %v", v)
	}
	return features.Clamp01(v), nil
}

func technicalFactor(in Input, _ Config) float64 {
	scores := in.Matrix.Scores
	if len(scores) == 0 {
		return defaultTechnical
	}
	sum, wsum := 0.0, 0.0
	for _, s := range scores {
		m, ok := strengthMultiplier[s.Strength]
		if !ok {
			m = 1
		}
		w := 0.1 + 0.9*features.Clamp01(s.Confidence)
		sum += w * features.Clamp01(s.Score*m)
		wsum += w
	}
	v := sum / wsum
	if in.Matrix.DominantSignal == models.SignalBullish || in.Matrix.DominantSignal == models.SignalBearish {
		v += 0.05
	}
	return v
}

func patternFactor(in Input, _ Config) float64 {
	zones := in.Zones
	if len(zones) == 0 {
		return defaultPattern
	}
	sum := 0.0
	for _, z := range zones {
		sum += features.Clamp01(z.Strength) * features.Clamp01(z.Reliability)
	}
	v := sum / float64(len(zones))
	v += math.Min(0.15, 0.05*float64(len(zones)-1))

	if price, ok := in.lastClose(); ok {
		for _, z := range zones {
			if z.PriceLevel > 0 && math.Abs(price-z.PriceLevel)/price <= 0.01 {
				v += 0.05
				break
			}
		}
	}
	return v
}

func volumeFactor(in Input, _ Config) float64 {
	cs := in.Candles
	if len(cs) < 2 {
		return defaultNeutral
	}
	window := cs[:len(cs)-1]
	if len(window) > 20 {
		window = window[len(window)-20:]
	}
	avg := features.Mean(models.Volumes(window))
	if avg <= 0 {
		return defaultNeutral
	}
	ratio := cs[len(cs)-1].Volume / avg

	spike := in.Thresholds.Volume.SpikeThreshold
	if spike <= 1 {
		spike = 1.5
	}
	low := in.Thresholds.Volume.LowVolumeThreshold
	if low <= 0 || low >= spike {
		low = 0.5
	}

	var v float64
	switch {
	case ratio >= spike:
		v = 0.7 + 0.3*math.Min(1, (ratio-spike)/spike)
	case ratio <= low:
		v = 0.25
	default:
		v = 0.4 + 0.3*(ratio-low)/(spike-low)
	}

	switch in.Conditions.VolumeProfile {
	case models.VolumeHigh:
		v += 0.1
	case models.VolumeLow:
		v -= 0.1
	}
	return v
}

func timeframeFactor(in Input, _ Config) float64 {
	v := defaultNeutral
	trend, okT := in.Matrix.Score(models.IndicatorTrend)
	mom, okM := in.Matrix.Score(models.IndicatorMomentum)
	if okT && okM && trend.Signal != models.SignalNeutral {
		switch mom.Signal {
		case trend.Signal:
			v = 0.75
			if trend.Strength == models.StrengthStrong && mom.Strength == models.StrengthStrong {
				v += 0.15
			}
		case models.SignalNeutral:
			v = 0.55
		default:
			v = 0.3
		}
	}

	closes := models.Closes(in.Candles)
	if len(closes) >= 20 {
		short := features.LinearSlope(features.Tail(closes, 5))
		long := features.LinearSlope(features.Tail(closes, 20))
		if short != 0 && long != 0 {
			if (short > 0) == (long > 0) {
				v += 0.2
			} else {
				v -= 0.1
			}
		}
	}

	if ts := in.Conditions.TrendStrength; ts > 0 {
		v += 0.1 * (features.Clamp01(ts) - 0.5)
	}
	return v
}

func correlationFactor(in Input, _ Config) float64 {
	m := in.Matrix.Correlation
	if m.Empty() {
		return defaultCorrelation
	}
	agree := 0
	for _, p := range m.Pairs {
		if p.Agreement {
			agree++
		}
	}
	ratio := float64(agree) / float64(len(m.Pairs))
	return 0.5*features.Clamp01(m.AverageCorrelation) + 0.5*ratio
}

func regimeFactor(in Input, _ Config) float64 {
	r := in.Conditions.Regime
	if r.Type == "" {
		return defaultNeutral
	}
	m, ok := regimeMultiplier[r.Type]
	if !ok {
		m = 0.6
	}
	return features.Clamp01(r.Confidence) * m
}

func volatilityFactor(in Input, cfg Config) float64 {
	v := in.Conditions.Volatility
	if v <= 0 {
		return defaultNeutral
	}
	opt := cfg.OptimalVolatility
	d := (v - opt) / opt
	return math.Max(0.1, math.Exp(-d*d))
}

func liquidityFactor(in Input, _ Config) float64 {
	v, ok := profileLiquidity[in.Conditions.VolumeProfile]
	if !ok {
		v = defaultNeutral
	}
	switch in.Conditions.MarketSession {
	case models.MarketActive:
		v += 0.1
	case models.MarketQuiet:
		v -= 0.1
	}
	if n := len(in.Candles); n > 0 {
		c := in.Candles[n-1]
		if c.Close > 0 {
			switch r := c.Range() / c.Close; {
			case r > 0.05:
				v -= 0.15
			case r < 0.002:
				v -= 0.05
			default:
				v += 0.05
			}
		}
	}
	return v
}
