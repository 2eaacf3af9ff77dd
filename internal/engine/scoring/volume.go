package scoring

import (
	"fmt"
	"math"

	"FinFusion/internal/domain/models"
	"FinFusion/internal/services/features"
)

// scoreVolume compares the last candle's volume with the trailing average and
// takes its direction from the candle body.
func scoreVolume(in input) models.IndicatorScore {
	cs := in.candles
	if len(cs) > in.cfg.Lookback+1 {
		cs = cs[len(cs)-in.cfg.Lookback-1:]
	}
	if len(cs) < 2 {
		return neutral(models.IndicatorVolume, "no candle data")
	}

	vols := models.Volumes(cs)
	last := cs[len(cs)-1]
	avg := features.Mean(vols[:len(vols)-1])
	if avg <= 0 {
		return neutral(models.IndicatorVolume, "no trailing volume")
	}
	ratio := last.Volume / avg

	dir := models.SignalNeutral
	switch {
	case last.Close > last.Open:
		dir = models.SignalBullish
	case last.Close < last.Open:
		dir = models.SignalBearish
	}

	spike, low := in.th.Volume.SpikeThreshold, in.th.Volume.LowVolumeThreshold
	s := models.IndicatorScore{Signal: dir, Strength: models.StrengthWeak}
	switch {
	case ratio >= spike:
		s.Score = 0.6 + 0.4*math.Min(1, (ratio-spike)/spike)
		s.Strength = models.StrengthModerate
		if ratio >= 2*spike {
			s.Strength = models.StrengthStrong
		}
		s.Reasoning = []string{fmt.Sprintf("volume spike x%.2f (threshold %.2f)", ratio, spike)}
	case ratio <= low:
		s.Signal = models.SignalNeutral
		s.Score = neutralScore
		s.Reasoning = []string{fmt.Sprintf("volume dry-up x%.2f", ratio)}
	default:
		s.Score = neutralScore
		if spike > low {
			s.Score += 0.1 * (ratio - low) / (spike - low)
		}
		s.Reasoning = []string{fmt.Sprintf("volume x%.2f of average", ratio)}
	}

	coverage := math.Min(1, float64(len(cs)-1)/float64(in.cfg.Lookback))
	s.Confidence = coverage * (0.5 + 0.5*math.Min(1, math.Abs(ratio-1)))
	return s
}
