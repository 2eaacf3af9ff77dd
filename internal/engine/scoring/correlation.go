package scoring

import (
	"math"

	"FinFusion/internal/domain/models"
	"FinFusion/internal/services/features"
)

var correlated = []struct {
	name string
	get  func(models.IndicatorSample) float64
}{
	{models.IndicatorRSI, func(s models.IndicatorSample) float64 { return s.RSI }},
	{models.IndicatorWT1, func(s models.IndicatorSample) float64 { return s.WaveTrend.WT1 }},
	{models.IndicatorWT2, func(s models.IndicatorSample) float64 { return s.WaveTrend.WT2 }},
	{models.IndicatorPVT, func(s models.IndicatorSample) float64 { return s.PVT }},
	{models.IndicatorVolatility, func(s models.IndicatorSample) float64 { return s.Volatility }},
}

// correlationMatrix recomputes all unordered pairs from the lookback window.
// Nothing carries over between cycles.
func correlationMatrix(in input) models.CorrelationMatrix {
	series := make([][]float64, len(correlated))
	for i, c := range correlated {
		series[i] = in.series(c.get)
	}

	var m models.CorrelationMatrix
	sum := 0.0
	for i := 0; i < len(correlated); i++ {
		for j := i + 1; j < len(correlated); j++ {
			r := features.Pearson(series[i], series[j])
			p := models.CorrelationPair{
				A:           correlated[i].name,
				B:           correlated[j].name,
				Correlation: r,
				Strength:    classify(r, in.cfg),
				Agreement:   r > 0,
			}
			m.Pairs = append(m.Pairs, p)
			sum += math.Abs(r)
			switch p.Strength {
			case models.StrengthStrong:
				m.StrongPairs = append(m.StrongPairs, p)
			case models.StrengthWeak:
				m.WeakPairs = append(m.WeakPairs, p)
			}
		}
	}
	if len(m.Pairs) > 0 {
		m.AverageCorrelation = sum / float64(len(m.Pairs))
	}
	return m
}

func classify(r float64, cfg Config) models.Strength {
	a := math.Abs(r)
	switch {
	case a > cfg.StrongCorrelation:
		return models.StrengthStrong
	case a > cfg.ModerateCorrelation:
		return models.StrengthModerate
	}
	return models.StrengthWeak
}

// strongAgreement is the share of pairs that are both strong and co-moving.
func strongAgreement(m models.CorrelationMatrix) float64 {
	if len(m.Pairs) == 0 {
		return 0
	}
	n := 0
	for _, p := range m.StrongPairs {
		if p.Agreement {
			n++
		}
	}
	return float64(n) / float64(len(m.Pairs))
}
