package scoring

import (
	"fmt"

	"FinFusion/internal/domain/models"
)

func trendSignal(trend string) models.Signal {
	switch trend {
	case models.TrendBullish:
		return models.SignalBullish
	case models.TrendBearish:
		return models.SignalBearish
	}
	return models.SignalNeutral
}

// scoreMomentum combines the momentum category with the trend direction;
// persistence of the category over the short window adds to score and confidence.
func scoreMomentum(in input) models.IndicatorScore {
	cur := in.current()
	persist := in.persistence(in.cfg.ShortWindow, func(s models.IndicatorSample) bool { return s.Momentum == cur.Momentum })
	dir := trendSignal(cur.Trend)

	s := models.IndicatorScore{Signal: models.SignalNeutral, Strength: models.StrengthWeak, Score: neutralScore}
	switch cur.Momentum {
	case models.MomentumStrong:
		if dir == models.SignalNeutral {
			s.Strength = models.StrengthModerate
			s.Reasoning = []string{"strong momentum without trend direction"}
			break
		}
		s.Signal = dir
		s.Score = 0.75 + 0.15*persist
		s.Strength = models.StrengthModerate
		if persist > 0.6 {
			s.Strength = models.StrengthStrong
		}
		s.Reasoning = []string{fmt.Sprintf("strong %s momentum (persistence %.2f)", dir, persist)}
	case models.MomentumWeak:
		s.Signal = dir
		s.Score = neutralScore + 0.1*persist
		s.Reasoning = []string{fmt.Sprintf("weak momentum, trend %s", cur.Trend)}
	default:
		s.Reasoning = []string{"no momentum"}
	}
	s.Confidence = 0.4 + 0.6*persist
	return s
}

func scoreTrend(in input) models.IndicatorScore {
	cur := in.current()
	dir := trendSignal(cur.Trend)
	if dir == models.SignalNeutral {
		s := neutral(models.IndicatorTrend, "trend sideways")
		s.Confidence = 0.5
		return s
	}

	persist := in.persistence(in.cfg.ShortWindow, func(s models.IndicatorSample) bool { return s.Trend == cur.Trend })
	s := models.IndicatorScore{
		Signal:     dir,
		Score:      neutralScore + 0.4*persist,
		Strength:   models.StrengthWeak,
		Confidence: 0.3 + 0.7*persist,
		Reasoning:  []string{fmt.Sprintf("%s trend persisted %.0f%% of window", cur.Trend, persist*100)},
	}
	switch {
	case persist > 0.8:
		s.Strength = models.StrengthStrong
	case persist > 0.5:
		s.Strength = models.StrengthModerate
	}
	return s
}
