package scoring

import (
	"fmt"

	"FinFusion/internal/domain/models"
	"FinFusion/internal/services/features"
)

// neutralScore is the default reading when a scorer has nothing to say.
// Directional readings score at or above it.
const neutralScore = 0.5

type input struct {
	samples []models.IndicatorSample // oldest first, last is the current sample
	candles []models.Candle
	th      models.AdaptiveThresholds
	cfg     Config
}

func (in input) current() models.IndicatorSample {
	return in.samples[len(in.samples)-1]
}

func (in input) previous() (models.IndicatorSample, bool) {
	if len(in.samples) < 2 {
		return models.IndicatorSample{}, false
	}
	return in.samples[len(in.samples)-2], true
}

// series extracts one value per sample over the lookback window.
func (in input) series(get func(models.IndicatorSample) float64) []float64 {
	ss := in.samples
	if len(ss) > in.cfg.Lookback {
		ss = ss[len(ss)-in.cfg.Lookback:]
	}
	out := make([]float64, len(ss))
	for i, s := range ss {
		out[i] = get(s)
	}
	return out
}

// persistence is the share of the last n samples for which match holds.
func (in input) persistence(n int, match func(models.IndicatorSample) bool) float64 {
	ss := in.samples
	if len(ss) > n {
		ss = ss[len(ss)-n:]
	}
	if len(ss) == 0 {
		return 0
	}
	hits := 0
	for _, s := range ss {
		if match(s) {
			hits++
		}
	}
	return float64(hits) / float64(len(ss))
}

type scorer func(in input) models.IndicatorScore

func neutral(indicator string, reason string) models.IndicatorScore {
	return models.IndicatorScore{
		Indicator:  indicator,
		Score:      neutralScore,
		Signal:     models.SignalNeutral,
		Strength:   models.StrengthWeak,
		Confidence: 0,
		Reasoning:  []string{reason},
	}
}

// safeScore runs fn in isolation: a panic or a non-finite result yields the
// neutral default with the cause in its reasoning.
func safeScore(indicator string, fn scorer, in input) (s models.IndicatorScore) {
	defer func() {
		if r := recover(); r != nil {
			s = neutral(indicator, fmt.Sprintf("scorer failed: %v", r))
		}
	}()

	s = fn(in)
	if !features.Finite(s.Score) || !features.Finite(s.Confidence) {
		return neutral(indicator, "non-finite score discarded")
	}
	s.Indicator = indicator
	s.Score = features.Clamp01(s.Score)
	s.Confidence = features.Clamp01(s.Confidence)
	return s
}

func directional(v float64) models.Signal {
	switch {
	case v > 0:
		return models.SignalBullish
	case v < 0:
		return models.SignalBearish
	}
	return models.SignalNeutral
}
