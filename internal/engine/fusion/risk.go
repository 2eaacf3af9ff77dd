package fusion

import (
	"FinFusion/internal/domain/models"
	"FinFusion/internal/services/features"
)

// reliability blends how consistent the factors are with how strongly the
// indicators correlate.
func reliability(f models.ConfidenceFactors, corr models.CorrelationMatrix) float64 {
	vals := f.Values()
	sd := features.StdDev(vals[:])
	consistency := 1 - min(1, 4*sd*sd)
	avgCorr := defaultCorrelation
	if !corr.Empty() {
		avgCorr = features.Clamp01(corr.AverageCorrelation)
	}
	return features.Clamp01(0.6*consistency + 0.4*avgCorr)
}

func factorSpread(f models.ConfidenceFactors) float64 {
	vals := f.Values()
	lo, hi := vals[0], vals[0]
	for _, v := range vals[1:] {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	return hi - lo
}

// riskLevel buckets a point score: low confidence, high volatility, unstable
// regimes and disagreeing factors each add points.
func riskLevel(confidence float64, f models.ConfidenceFactors, in Input) models.RiskLevel {
	score := 0
	switch {
	case confidence < 0.4:
		score += 2
	case confidence < 0.6:
		score++
	}

	_, high := in.volatilityBands()
	switch v := in.Conditions.Volatility; {
	case v > high:
		score += 2
	case v > 0.3:
		score++
	}

	switch in.Conditions.Regime.Type {
	case models.RegimeBreakout, models.RegimeReversal:
		score++
	}

	if factorSpread(f) > 0.5 {
		score++
	}

	switch {
	case score >= 4:
		return models.RiskHigh
	case score >= 2:
		return models.RiskMedium
	default:
		return models.RiskLow
	}
}
