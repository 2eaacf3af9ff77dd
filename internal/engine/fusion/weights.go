package fusion

import (
	"math"

	"FinFusion/internal/domain/models"
)

// adaptWeights scales the base weights to the current regime, correlation
// and volatility context and renormalizes them to sum to one.
func adaptWeights(in Input, cfg Config, t *trail) models.ConfidenceWeights {
	w := cfg.BaseWeights
	if cfg.AdaptiveWeighting {
		for name, m := range cfg.RegimeMultipliers[in.Conditions.Regime.Type] {
			if p := w.Ptr(name); p != nil {
				*p *= m
			}
		}

		if corr := in.Matrix.Correlation; !corr.Empty() {
			switch avg := corr.AverageCorrelation; {
			case avg > 0.7:
				w.Correlation *= 1.2
			case avg < 0.3:
				w.Correlation *= 0.8
			}
		}

		low, high := in.volatilityBands()
		switch v := in.Conditions.Volatility; {
		case v > high:
			w.Volatility *= 1.3
			w.Liquidity *= 1.2
		case v > 0 && v < low:
			w.Volatility *= 0.8
		}
	}

	n, ok := normalize(w)
	if !ok {
		t.force(AdjWeightFallback, "", w.Sum(), 1, "adapted weights degenerate, using base distribution")
		n, _ = normalize(cfg.BaseWeights)
	}
	return n
}

// normalize divides by the sum and puts the rounding residual on the largest
// weight so the result sums to exactly one.
func normalize(w models.ConfidenceWeights) (models.ConfidenceWeights, bool) {
	sum := w.Sum()
	if sum <= 0 || math.IsNaN(sum) || math.IsInf(sum, 0) {
		return w, false
	}
	var out models.ConfidenceWeights
	total := 0.0
	largest, maxW := "", -1.0
	vals := w.Values()
	for i, name := range models.FactorNames {
		v := vals[i] / sum
		*out.Ptr(name) = v
		total += v
		if v > maxW {
			largest, maxW = name, v
		}
	}
	*out.Ptr(largest) += 1 - total
	return out, true
}

