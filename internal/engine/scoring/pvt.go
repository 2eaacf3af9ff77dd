package scoring

import (
	"fmt"
	"math"

	"FinFusion/internal/domain/models"
	"FinFusion/internal/services/features"
)

// scorePVT reads the price-volume trend through its regression slope over the
// lookback, normalized by the series dispersion, and its latest z-score.
func scorePVT(in input) models.IndicatorScore {
	series := in.series(func(s models.IndicatorSample) float64 { return s.PVT })
	sd := features.StdDev(series)
	if sd == 0 {
		return neutral(models.IndicatorPVT, "pvt flat over lookback")
	}

	slope := features.LinearSlope(series) * float64(len(series)) / sd
	z := features.ZScore(series)

	s := models.IndicatorScore{Signal: models.SignalNeutral, Strength: models.StrengthWeak, Score: neutralScore}
	if math.Abs(slope) < 0.5 {
		s.Reasoning = []string{fmt.Sprintf("pvt slope %.2f too shallow", slope)}
		s.Confidence = 0.3
		return s
	}

	s.Signal = directional(slope)
	s.Score = neutralScore + 0.25*math.Min(1, math.Abs(slope)/3)
	if z*slope > 0 {
		s.Score += 0.2 * math.Min(1, math.Abs(z)/2)
	}
	switch {
	case math.Abs(slope) > 2:
		s.Strength = models.StrengthStrong
	case math.Abs(slope) > 1:
		s.Strength = models.StrengthModerate
	}
	s.Reasoning = []string{fmt.Sprintf("pvt slope %.2f z %.2f", slope, z)}
	s.Confidence = 0.4 + 0.6*math.Min(1, math.Abs(slope)/3)
	return s
}
