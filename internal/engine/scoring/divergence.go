package scoring

import (
	"fmt"
	"math"

	"FinFusion/internal/domain/models"
	"FinFusion/internal/services/features"
)

// pivots returns indices of local extrema. A point is a low (high) when it is the
// minimum (maximum) of the order points on each side. Pivots closer than spacing
// to the previously kept one replace it only if more extreme.
func pivots(xs []float64, order, spacing int, lows bool) []int {
	better := func(a, b float64) bool {
		if lows {
			return a < b
		}
		return a > b
	}

	var out []int
	for i := order; i < len(xs)-order; i++ {
		ok := true
		for j := i - order; j <= i+order && ok; j++ {
			if j != i && better(xs[j], xs[i]) {
				ok = false
			}
		}
		if !ok {
			continue
		}
		if n := len(out); n > 0 && i-out[n-1] < spacing {
			if better(xs[i], xs[out[n-1]]) {
				out[n-1] = i
			}
			continue
		}
		out = append(out, i)
	}
	return out
}

// detectDivergence compares the two most recent price pivots with the indicator
// at the same bars. price and ind must be aligned and of equal length.
func detectDivergence(indicator string, price, ind []float64, order, spacing int) []models.Divergence {
	if len(price) != len(ind) || len(price) < 2*order+spacing+1 {
		return nil
	}

	var out []models.Divergence
	if lows := pivots(price, order, spacing, true); len(lows) >= 2 {
		p1, p2 := lows[len(lows)-2], lows[len(lows)-1]
		if price[p2] < price[p1] && ind[p2] > ind[p1] {
			out = append(out, models.Divergence{
				Indicator:       indicator,
				Type:            models.SignalBullish,
				Strength:        divergenceStrength(price, ind, p1, p2),
				PriceAction:     fmt.Sprintf("lower low %.4f -> %.4f", price[p1], price[p2]),
				IndicatorAction: fmt.Sprintf("higher low %.2f -> %.2f", ind[p1], ind[p2]),
			})
		}
	}
	if highs := pivots(price, order, spacing, false); len(highs) >= 2 {
		p1, p2 := highs[len(highs)-2], highs[len(highs)-1]
		if price[p2] > price[p1] && ind[p2] < ind[p1] {
			out = append(out, models.Divergence{
				Indicator:       indicator,
				Type:            models.SignalBearish,
				Strength:        divergenceStrength(price, ind, p1, p2),
				PriceAction:     fmt.Sprintf("higher high %.4f -> %.4f", price[p1], price[p2]),
				IndicatorAction: fmt.Sprintf("lower high %.2f -> %.2f", ind[p1], ind[p2]),
			})
		}
	}
	return out
}

// divergenceStrength blends the relative price move with the indicator move
// scaled by the indicator's range over the window.
func divergenceStrength(price, ind []float64, p1, p2 int) float64 {
	pm := 0.0
	if price[p1] != 0 {
		pm = math.Min(1, math.Abs(price[p2]-price[p1])/math.Abs(price[p1])*20)
	}
	lo, hi := ind[0], ind[0]
	for _, v := range ind {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	im := 0.0
	if hi > lo {
		im = math.Min(1, 2*math.Abs(ind[p2]-ind[p1])/(hi-lo))
	}
	return features.Clamp01(0.5*pm + 0.5*im)
}

// findDivergences aligns the trailing candles with the trailing samples and checks
// RSI, wave trend and PVT. A divergence flag carried on the current sample counts
// for wave trend when none was detected.
func findDivergences(in input) []models.Divergence {
	n := in.cfg.Lookback
	if len(in.candles) < n {
		n = len(in.candles)
	}
	if len(in.samples) < n {
		n = len(in.samples)
	}

	var out []models.Divergence
	if n > 0 {
		price := models.Closes(in.candles[len(in.candles)-n:])
		ss := in.samples[len(in.samples)-n:]
		get := func(f func(models.IndicatorSample) float64) []float64 {
			xs := make([]float64, len(ss))
			for i, s := range ss {
				xs[i] = f(s)
			}
			return xs
		}
		order, spacing := in.cfg.ExtremaOrder, in.cfg.MinExtremaSpacing
		out = append(out, detectDivergence(models.IndicatorRSI, price, get(func(s models.IndicatorSample) float64 { return s.RSI }), order, spacing)...)
		out = append(out, detectDivergence(models.IndicatorWaveTrend, price, get(func(s models.IndicatorSample) float64 { return s.WaveTrend.WT1 }), order, spacing)...)
		out = append(out, detectDivergence(models.IndicatorPVT, price, get(func(s models.IndicatorSample) float64 { return s.PVT }), order, spacing)...)
	}

	flag := models.Signal(in.current().WaveTrend.Divergence)
	if flag == models.SignalBullish || flag == models.SignalBearish {
		found := false
		for _, d := range out {
			if d.Indicator == models.IndicatorWaveTrend && d.Type == flag {
				found = true
			}
		}
		if !found {
			out = append(out, models.Divergence{
				Indicator:       models.IndicatorWaveTrend,
				Type:            flag,
				Strength:        0.6,
				PriceAction:     "reported by indicator source",
				IndicatorAction: "reported by indicator source",
			})
		}
	}
	return out
}

// applyDivergenceBoost multiplies a score by its indicator's boost when a
// divergence points the same way, capped at 1.
func applyDivergenceBoost(scores []models.IndicatorScore, divs []models.Divergence, cfg Config) {
	for i := range scores {
		s := &scores[i]
		if s.Signal == models.SignalNeutral {
			continue
		}
		for _, d := range divs {
			if d.Indicator != s.Indicator || d.Type != s.Signal {
				continue
			}
			b := cfg.boost(s.Indicator)
			s.Score = math.Min(1, s.Score*b)
			s.Reasoning = append(s.Reasoning, fmt.Sprintf("%s divergence boost x%.2f", d.Type, b))
			break
		}
	}
}
