// Package scoring turns raw indicator samples into normalized scores, a
// correlation matrix and price/indicator divergences.
package scoring

import (
	"fmt"

	"FinFusion/internal/domain/models"
	"FinFusion/internal/services/features"
)

// Matrix evaluates indicator samples. It holds no per-cycle state, so one
// instance can serve any number of symbols.
type Matrix struct {
	cfg   Config
	valid bool
}

func NewMatrix(cfg Config) *Matrix {
	return &Matrix{cfg: cfg, valid: cfg.Validate() == nil}
}

// Config returns the matrix configuration.
func (m *Matrix) Config() Config { return m.cfg }

var scorers = []struct {
	name string
	fn   scorer
}{
	{models.IndicatorRSI, scoreRSI},
	{models.IndicatorWaveTrend, scoreWaveTrend},
	{models.IndicatorPVT, scorePVT},
	{models.IndicatorMomentum, scoreMomentum},
	{models.IndicatorTrend, scoreTrend},
	{models.IndicatorVolume, scoreVolume},
}

// Evaluate scores the last sample of samples (oldest first) against th.
// Below MinDataPoints samples every score is the neutral default.
func (m *Matrix) Evaluate(samples []models.IndicatorSample, candles []models.Candle, th models.AdaptiveThresholds) models.IndicatorMatrix {
	if !m.valid {
		return m.neutralMatrix("invalid scoring configuration")
	}
	if len(samples) < m.cfg.MinDataPoints {
		return m.neutralMatrix(fmt.Sprintf("insufficient history: %d < %d samples", len(samples), m.cfg.MinDataPoints))
	}

	in := input{samples: samples, candles: candles, th: th, cfg: m.cfg}

	scores := make([]models.IndicatorScore, 0, len(scorers))
	for _, s := range scorers {
		scores = append(scores, safeScore(s.name, s.fn, in))
	}

	divs := safeDivergences(in)
	applyDivergenceBoost(scores, divs, m.cfg)
	corr := safeCorrelation(in)

	out := models.IndicatorMatrix{
		Scores:      scores,
		Correlation: corr,
		Divergences: divs,
	}
	out.OverallScore = m.overall(scores)
	out.DominantSignal = m.dominant(scores)
	out.Confidence = features.Clamp01(meanConfidence(scores) * (0.5 + 0.5*strongAgreement(corr)))
	return out
}

func (m *Matrix) neutralMatrix(reason string) models.IndicatorMatrix {
	scores := make([]models.IndicatorScore, 0, len(scorers))
	for _, s := range scorers {
		scores = append(scores, neutral(s.name, reason))
	}
	return models.IndicatorMatrix{
		Scores:         scores,
		OverallScore:   neutralScore,
		DominantSignal: models.SignalNeutral,
		Confidence:     0,
	}
}

func (m *Matrix) weight(indicator string) float64 {
	if w, ok := m.cfg.Weights[indicator]; ok {
		return w
	}
	return 0
}

func (m *Matrix) overall(scores []models.IndicatorScore) float64 {
	var sum, wsum float64
	for _, s := range scores {
		w := m.weight(s.Indicator)
		sum += w * s.Score
		wsum += w
	}
	if wsum == 0 {
		return neutralScore
	}
	return features.Clamp01(sum / wsum)
}

// dominant requires the leading side to beat the other by DominanceRatio.
func (m *Matrix) dominant(scores []models.IndicatorScore) models.Signal {
	var bull, bear float64
	for _, s := range scores {
		w := m.weight(s.Indicator)
		switch s.Signal {
		case models.SignalBullish:
			bull += w * s.Score
		case models.SignalBearish:
			bear += w * s.Score
		}
	}
	switch {
	case bull > 0 && bull >= bear*m.cfg.DominanceRatio:
		return models.SignalBullish
	case bear > 0 && bear >= bull*m.cfg.DominanceRatio:
		return models.SignalBearish
	}
	return models.SignalNeutral
}

func meanConfidence(scores []models.IndicatorScore) float64 {
	if len(scores) == 0 {
		return 0
	}
	sum := 0.0
	for _, s := range scores {
		sum += s.Confidence
	}
	return sum / float64(len(scores))
}

func safeDivergences(in input) (out []models.Divergence) {
	defer func() {
		if recover() != nil {
			out = nil
		}
	}()
	return findDivergences(in)
}

func safeCorrelation(in input) (out models.CorrelationMatrix) {
	defer func() {
		if recover() != nil {
			out = models.CorrelationMatrix{}
		}
	}()
	return correlationMatrix(in)
}
