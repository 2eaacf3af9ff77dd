package scoring

import (
	"fmt"
	"math"

	"FinFusion/internal/domain/models"
	"FinFusion/internal/services/features"
)

// scoreRSI interprets RSI against the adaptive levels. The oversold/overbought
// levels widen with the short-window dispersion of RSI itself.
func scoreRSI(in input) models.IndicatorScore {
	cur := in.current().RSI
	series := in.series(func(s models.IndicatorSample) float64 { return s.RSI })
	sd := features.Sanitize(features.StdDev(features.Tail(series, in.cfg.ShortWindow)), 0)
	widen := features.Clamp(sd*0.5, 0, 10)

	oversold := features.Clamp(in.th.RSI.Oversold-widen, 5, 95)
	overbought := features.Clamp(in.th.RSI.Overbought+widen, 5, 95)
	lo, hi := in.th.RSI.Neutral[0], in.th.RSI.Neutral[1]

	s := models.IndicatorScore{Signal: models.SignalNeutral, Strength: models.StrengthWeak, Score: neutralScore}
	var distance float64

	switch {
	case cur <= oversold:
		distance = (oversold - cur) / math.Max(oversold, 1)
		s.Signal = models.SignalBullish
		s.Score = 0.6 + 0.4*math.Min(1, distance*3)
		s.Strength = models.StrengthModerate
		if cur < oversold-10 || distance > 0.15 {
			s.Strength = models.StrengthStrong
		}
		s.Reasoning = append(s.Reasoning, fmt.Sprintf("rsi %.1f at/below oversold %.1f", cur, oversold))
	case cur >= overbought:
		distance = (cur - overbought) / math.Max(100-overbought, 1)
		s.Signal = models.SignalBearish
		s.Score = 0.6 + 0.4*math.Min(1, distance*3)
		s.Strength = models.StrengthModerate
		if cur > overbought+10 || distance > 0.15 {
			s.Strength = models.StrengthStrong
		}
		s.Reasoning = append(s.Reasoning, fmt.Sprintf("rsi %.1f at/above overbought %.1f", cur, overbought))
	case cur < lo:
		distance = (lo - cur) / math.Max(lo-oversold, 1)
		s.Signal = models.SignalBullish
		s.Score = neutralScore + 0.1*math.Min(1, distance)
		s.Reasoning = append(s.Reasoning, fmt.Sprintf("rsi %.1f leaning oversold", cur))
	case cur > hi:
		distance = (cur - hi) / math.Max(overbought-hi, 1)
		s.Signal = models.SignalBearish
		s.Score = neutralScore + 0.1*math.Min(1, distance)
		s.Reasoning = append(s.Reasoning, fmt.Sprintf("rsi %.1f leaning overbought", cur))
	default:
		// inside the neutral band only momentum can give a lean
		if prev, ok := in.previous(); ok {
			delta := cur - prev.RSI
			if math.Abs(delta) >= 2 {
				s.Signal = directional(delta)
				s.Score = neutralScore + math.Min(0.08, math.Abs(delta)/50)
				s.Reasoning = append(s.Reasoning, fmt.Sprintf("rsi momentum %+.1f inside neutral band", delta))
			}
		}
		if s.Signal == models.SignalNeutral {
			s.Reasoning = append(s.Reasoning, fmt.Sprintf("rsi %.1f neutral", cur))
		}
	}
	if widen > 0 {
		s.Reasoning = append(s.Reasoning, fmt.Sprintf("levels widened by %.1f for rsi dispersion", widen))
	}

	s.Confidence = 0.5 + 0.3*math.Min(1, distance) + 0.2*(1-math.Min(1, sd/15))
	return s
}
