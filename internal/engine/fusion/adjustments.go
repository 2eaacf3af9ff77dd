package fusion

import (
	"fmt"
	"math"
	"time"

	"FinFusion/internal/domain/models"
	"FinFusion/internal/services/features"
)

// Adjustment types recorded on the trail.
const (
	AdjFactorFailure    = "factor_failure"
	AdjPredictorBlend   = "predictor_blend"
	AdjPatternBlend     = "pattern_blend"
	AdjTimeDecay        = "time_decay"
	AdjVolatility       = "volatility"
	AdjPerformance      = "historical_performance"
	AdjCorrelationBoost = "correlation_boost"
	AdjConfidenceClamp  = "confidence_clamp"
	AdjInvalidConfig    = "invalid_config"
	AdjWeightFallback   = "weight_fallback"
)

// adjustmentEpsilon is the smallest change worth recording.
const adjustmentEpsilon = 1e-6

// Factors dampened by volatility; the context factors are left alone.
var signalFactors = []string{models.FactorTechnical, models.FactorPattern, models.FactorTimeframe}

type trail struct {
	items []models.ConfidenceAdjustment
}

func (t *trail) record(typ, factor string, before, after float64, reason string) {
	if math.Abs(after-before) <= adjustmentEpsilon {
		return
	}
	t.force(typ, factor, before, after, reason)
}

// force appends unconditionally. Non-finite values are stored as zero so the
// trail always encodes.
func (t *trail) force(typ, factor string, before, after float64, reason string) {
	t.items = append(t.items, models.ConfidenceAdjustment{
		Type:   typ,
		Factor: factor,
		Before: features.Sanitize(before, 0),
		After:  features.Sanitize(after, 0),
		Reason: reason,
	})
}

func scaleFactor(f *models.ConfidenceFactors, name string, m float64, t *trail, typ, reason string) {
	p := f.Ptr(name)
	before := *p
	*p = features.Clamp01(before * m)
	t.record(typ, name, before, *p, reason)
}

// blendPredictor mixes the predictor's view into the technical and pattern
// factors.
func blendPredictor(f *models.ConfidenceFactors, in Input, cfg Config, t *trail) {
	if b := cfg.PredictorBlend; b > 0 {
		if target, ok := predictorTarget(in); ok {
			before := f.Technical
			f.Technical = features.Clamp01((1-b)*before + b*target)
			t.record(AdjPredictorBlend, models.FactorTechnical, before, f.Technical,
				fmt.Sprintf("blended %.0f%% predictor confidence %.3f", b*100, target))
		}
	}

	if b := cfg.PatternBlend; b > 0 && len(in.Patterns) > 0 {
		top := in.Patterns[0]
		for _, p := range in.Patterns[1:] {
			if p.Probability > top.Probability {
				top = p
			}
		}
		target := features.Clamp01(top.Probability)
		before := f.Pattern
		f.Pattern = features.Clamp01((1-b)*before + b*target)
		t.record(AdjPatternBlend, models.FactorPattern, before, f.Pattern,
			fmt.Sprintf("blended %.0f%% %s probability %.3f", b*100, top.Pattern, target))
	}
}

// predictorTarget is the first-horizon confidence, inverted when the forecast
// direction opposes the matrix's dominant signal. Untrained output has zero
// confidence and is ignored.
func predictorTarget(in Input) (float64, bool) {
	if len(in.Predictions) == 0 {
		return 0, false
	}
	p := in.Predictions[0]
	for _, q := range in.Predictions[1:] {
		if q.Horizon < p.Horizon {
			p = q
		}
	}
	conf := features.Clamp01(p.Confidence)
	if conf == 0 {
		return 0, false
	}
	switch {
	case p.Direction == models.DirectionUp && in.Matrix.DominantSignal == models.SignalBearish,
		p.Direction == models.DirectionDown && in.Matrix.DominantSignal == models.SignalBullish:
		return 1 - conf, true
	}
	return conf, true
}

func applyTimeDecay(f *models.ConfidenceFactors, in Input, cfg Config, now time.Time, t *trail) {
	if !cfg.TimeDecay {
		return
	}
	dt := in.dataTime()
	if dt.IsZero() {
		return
	}
	// A bar is current until its period closes.
	stale := now.Sub(dt) - features.TimeframeDuration(in.Timeframe)
	if stale <= 0 {
		return
	}
	hours := stale.Hours()
	d := math.Max(0.5, math.Exp(-cfg.DecayRate*hours))
	reason := fmt.Sprintf("data %.2fh stale, decay %.3f", hours, d)
	for _, name := range models.FactorNames {
		scaleFactor(f, name, d, t, AdjTimeDecay, reason)
	}
}

func applyVolatility(f *models.ConfidenceFactors, in Input, cfg Config, t *trail) {
	v := in.Conditions.Volatility
	if !cfg.VolatilityAdjustment || !features.Finite(v) || v <= 0 {
		return
	}
	opt := cfg.OptimalVolatility
	m := math.Max(0.7, 1-0.5*math.Abs(v-opt)/opt)
	reason := fmt.Sprintf("volatility %.3f vs optimal %.3f", v, opt)
	for _, name := range signalFactors {
		scaleFactor(f, name, m, t, AdjVolatility, reason)
	}
}

func applyPerformance(f *models.ConfidenceFactors, avg float64, n int, cfg Config, t *trail) {
	if n < cfg.MinPerformanceSamples {
		return
	}
	m := features.Clamp(1+0.2*(avg-0.5), 0.9, 1.1)
	reason := fmt.Sprintf("rolling performance %.3f over %d outcomes", avg, n)
	for _, name := range models.FactorNames {
		scaleFactor(f, name, m, t, AdjPerformance, reason)
	}
}

func applyCorrelationBoost(f *models.ConfidenceFactors, cfg Config, t *trail) {
	if !cfg.CorrelationBoost || f.Correlation < cfg.BoostThreshold {
		return
	}
	reason := fmt.Sprintf("correlation %.3f >= %.2f", f.Correlation, cfg.BoostThreshold)
	scaleFactor(f, models.FactorTechnical, cfg.BoostFactor, t, AdjCorrelationBoost, reason)
	scaleFactor(f, models.FactorPattern, cfg.BoostFactor, t, AdjCorrelationBoost, reason)
}
