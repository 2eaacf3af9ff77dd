package scoring

import (
	"fmt"
	"math"

	"FinFusion/internal/domain/models"
	"FinFusion/internal/services/features"
)

// scoreWaveTrend reads wt1/wt2 crosses against the adaptive buy/sell/extreme
// levels. Like RSI, the levels widen with the short-window dispersion of wt1
// and the flat band leans only on wt1 momentum.
func scoreWaveTrend(in input) models.IndicatorScore {
	wt := in.current().WaveTrend
	diff := wt.WT1 - wt.WT2

	var crossUp, crossDown bool
	prev, hasPrev := in.previous()
	if hasPrev {
		prevDiff := prev.WaveTrend.WT1 - prev.WaveTrend.WT2
		crossUp = prevDiff <= 0 && diff > 0
		crossDown = prevDiff >= 0 && diff < 0
	}

	series := in.series(func(s models.IndicatorSample) float64 { return s.WaveTrend.WT1 })
	sd := features.Sanitize(features.StdDev(features.Tail(series, in.cfg.ShortWindow)), 0)
	widen := features.Clamp(sd*0.5, 0, 20)

	buy := in.th.WaveTrend.BuyThreshold - widen
	sell := in.th.WaveTrend.SellThreshold + widen
	ext := in.th.WaveTrend.ExtremeLevel + widen
	s := models.IndicatorScore{Signal: models.SignalNeutral, Strength: models.StrengthWeak, Score: neutralScore}

	switch {
	case wt.Signal == models.WTBuy || (crossUp && wt.WT1 < 0):
		s.Signal = models.SignalBullish
		s.Score = 0.5 + 0.3*zoneDepth(wt.WT1, buy)
		s.Strength = models.StrengthModerate
		if wt.WT1 <= buy {
			s.Strength = models.StrengthStrong
		}
		if wt.WT1 <= -ext {
			s.Score += 0.15
			s.Reasoning = append(s.Reasoning, fmt.Sprintf("wt1 %.1f beyond extreme -%.1f", wt.WT1, ext))
		}
		if crossUp {
			s.Score += 0.05
			s.Reasoning = append(s.Reasoning, "wt1 crossed above wt2")
		}
		s.Reasoning = append(s.Reasoning, fmt.Sprintf("wave trend buy (wt1 %.1f, buy level %.1f)", wt.WT1, buy))
	case wt.Signal == models.WTSell || (crossDown && wt.WT1 > 0):
		s.Signal = models.SignalBearish
		s.Score = 0.5 + 0.3*zoneDepth(wt.WT1, sell)
		s.Strength = models.StrengthModerate
		if wt.WT1 >= sell {
			s.Strength = models.StrengthStrong
		}
		if wt.WT1 >= ext {
			s.Score += 0.15
			s.Reasoning = append(s.Reasoning, fmt.Sprintf("wt1 %.1f beyond extreme %.1f", wt.WT1, ext))
		}
		if crossDown {
			s.Score += 0.05
			s.Reasoning = append(s.Reasoning, "wt1 crossed below wt2")
		}
		s.Reasoning = append(s.Reasoning, fmt.Sprintf("wave trend sell (wt1 %.1f, sell level %.1f)", wt.WT1, sell))
	case wt.WT1 <= buy:
		s.Signal = models.SignalBullish
		s.Strength = models.StrengthModerate
		s.Score = 0.55
		s.Reasoning = append(s.Reasoning, "wave trend oversold without cross")
	case wt.WT1 >= sell:
		s.Signal = models.SignalBearish
		s.Strength = models.StrengthModerate
		s.Score = 0.55
		s.Reasoning = append(s.Reasoning, "wave trend overbought without cross")
	case math.Abs(diff) > 5:
		s.Signal = directional(diff)
		s.Score = neutralScore + 0.05
		s.Reasoning = append(s.Reasoning, fmt.Sprintf("wt1-wt2 spread %+.1f", diff))
	default:
		if hasPrev {
			delta := wt.WT1 - prev.WaveTrend.WT1
			if math.Abs(delta) >= 3 {
				s.Signal = directional(delta)
				s.Score = neutralScore + math.Min(0.08, math.Abs(delta)/100)
				s.Reasoning = append(s.Reasoning, fmt.Sprintf("wt1 momentum %+.1f inside neutral band", delta))
			}
		}
		if s.Signal == models.SignalNeutral {
			s.Reasoning = append(s.Reasoning, "wave trend flat")
		}
	}
	if widen > 0 {
		s.Reasoning = append(s.Reasoning, fmt.Sprintf("levels widened by %.1f for wt1 dispersion", widen))
	}

	reach := 0.0
	if ext > 0 {
		reach = math.Min(1, math.Abs(wt.WT1)/ext)
	}
	s.Confidence = 0.5 + 0.3*reach + 0.2*(1-math.Min(1, sd/30))
	return s
}

// zoneDepth is how far v has travelled toward level, in [0,1].
func zoneDepth(v, level float64) float64 {
	if level == 0 {
		return 0
	}
	r := v / level
	if r < 0 {
		return 0
	}
	return math.Min(1, r)
}
