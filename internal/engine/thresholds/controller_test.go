package thresholds

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinFusion/internal/domain/models"
)

func makeCandles(n int) []models.Candle {
	out := make([]models.Candle, n)
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	price := 100.0
	for i := range out {
		next := price * (1 + 0.01*math.Sin(float64(i)/3))
		out[i] = models.Candle{
			Bucket: t0.Add(time.Duration(i) * time.Hour),
			Symbol: "BTCUSDT",
			Open:   price,
			High:   math.Max(price, next) * 1.002,
			Low:    math.Min(price, next) * 0.998,
			Close:  next,
			Volume: 1000 + 50*float64(i%5),
		}
		price = next
	}
	return out
}

var (
	stressed = models.MarketConditions{
		Volatility: 0.6,
		Regime:     models.Regime{Type: models.RegimeBreakout, Confidence: 0.8},
		TimeOfDay:  models.SessionOverlap,
	}
	calm = models.MarketConditions{
		Volatility: 0.05,
		Regime:     models.Regime{Type: models.RegimeRanging, Confidence: 0.8},
		TimeOfDay:  models.SessionAsian,
	}
)

func TestStressWidensRSIBand(t *testing.T) {
	candles := makeCandles(40)
	hot := NewController(DefaultConfig())
	cold := NewController(DefaultConfig())

	var h, c models.AdaptiveThresholds
	for i := 0; i < 30; i++ {
		h = hot.Update(candles, stressed)
		c = cold.Update(candles, calm)
	}

	assert.Less(t, h.RSI.Oversold, c.RSI.Oversold)
	assert.Greater(t, h.RSI.Overbought, c.RSI.Overbought)
	assert.Less(t, h.RSI.Oversold, 30.0)
	assert.Greater(t, h.RSI.Overbought, 70.0)
}

func TestThresholdsStayInsideEnvelope(t *testing.T) {
	cfg := DefaultConfig()
	ctl := NewController(cfg)
	candles := makeCandles(40)
	conds := []models.MarketConditions{stressed, calm, {Volatility: 3}, {Volatility: 0.0001}, {}}

	for i := 0; i < 200; i++ {
		th := ctl.Update(candles, conds[i%len(conds)])
		for _, fd := range fields {
			base := *fd.ptr(&cfg.Base)
			lo, hi := fd.envelope(base, cfg.MaxAdjustment)
			v := *fd.ptr(&th)
			require.GreaterOrEqual(t, v, lo-1e-9, fd.name)
			require.LessOrEqual(t, v, hi+1e-9, fd.name)
		}
		require.GreaterOrEqual(t, th.RSI.Oversold, 15.0)
		require.LessOrEqual(t, th.RSI.Overbought, 85.0)
	}
}

func TestStepCappedAtTenPercent(t *testing.T) {
	ctl := NewController(DefaultConfig().WithOverrides(WithAdaptationSpeed(1)))
	candles := makeCandles(40)
	prev := ctl.Current()
	for i := 0; i < 10; i++ {
		next := ctl.Update(candles, stressed)
		for _, fd := range fields {
			before, after := *fd.ptr(&prev), *fd.ptr(&next)
			require.LessOrEqual(t, math.Abs(after-before), 0.1*math.Abs(before)+1e-9, fd.name)
		}
		prev = next
	}
}

func TestConvergenceDeltasShrink(t *testing.T) {
	ctl := NewController(DefaultConfig())
	candles := makeCandles(40)

	var deltas []float64
	prev := ctl.Current().RSI.Oversold
	for i := 0; i < 60; i++ {
		cur := ctl.Update(candles, stressed).RSI.Oversold
		deltas = append(deltas, math.Abs(cur-prev))
		prev = cur
	}
	require.Greater(t, deltas[0], 0.0)
	assert.Less(t, deltas[len(deltas)-1], deltas[0])
	assert.Less(t, deltas[len(deltas)-1], 1e-3)
	for i := 1; i < len(deltas); i++ {
		assert.LessOrEqual(t, deltas[i], deltas[i-1]+1e-9)
	}
}

func TestBelowMinDataPointsIsNoop(t *testing.T) {
	ctl := NewController(DefaultConfig())
	before := ctl.Current()
	after := ctl.Update(makeCandles(5), stressed)
	if before != after {
		t.Fatalf("thresholds moved with too little data: %+v -> %+v", before, after)
	}
	if len(ctl.History()) != 0 {
		t.Fatalf("history should be empty")
	}
}

func TestResetRestoresBase(t *testing.T) {
	ctl := NewController(DefaultConfig())
	candles := makeCandles(40)
	for i := 0; i < 5; i++ {
		ctl.Update(candles, stressed)
	}
	require.NotEqual(t, ctl.Base(), ctl.Current())
	require.NotEmpty(t, ctl.History())

	ctl.Reset()
	assert.Equal(t, ctl.Base(), ctl.Current())
	assert.Empty(t, ctl.History())
}

func TestHistoryBoundedFIFO(t *testing.T) {
	ctl := NewController(DefaultConfig())
	candles := makeCandles(40)
	for i := 0; i < 300; i++ {
		if i%2 == 0 {
			ctl.Update(candles, stressed)
		} else {
			ctl.Update(candles, calm)
		}
	}
	hist := ctl.History()
	require.Len(t, hist, 100)
	for i := 1; i < len(hist); i++ {
		assert.False(t, hist[i].Timestamp.Before(hist[i-1].Timestamp))
	}
	for _, a := range hist {
		assert.NotEmpty(t, a.Reason)
	}
}

func TestRealizedVolatilityFallback(t *testing.T) {
	ctl := NewController(DefaultConfig())
	ctl.Update(makeCandles(40), models.MarketConditions{})
	f := ctl.LastFactors()
	assert.Equal(t, "realized", f.VolatilitySource)
	assert.Greater(t, f.Volatility, 0.0)
	assert.InDelta(t, 1.0, f.RegimeFactor, 1e-12)
}

func TestInvalidConfigIsNoop(t *testing.T) {
	cfg := DefaultConfig().WithOverrides(WithAdaptationSpeed(0))
	ctl := NewController(cfg)
	require.False(t, ctl.Valid())
	before := ctl.Current()
	after := ctl.Update(makeCandles(40), stressed)
	assert.Equal(t, before, after)
}

func TestWithOverridesDoesNotMutateOriginal(t *testing.T) {
	base := DefaultConfig()
	derived := base.WithOverrides(WithRegimeAdjustment(models.RegimeBreakout, 2), WithMaxAdjustment(0.2))
	assert.InDelta(t, 1.4, base.RegimeAdjustments[models.RegimeBreakout], 1e-12)
	assert.InDelta(t, 0.3, base.MaxAdjustment, 1e-12)
	assert.InDelta(t, 2.0, derived.RegimeAdjustments[models.RegimeBreakout], 1e-12)
}

func TestApplyConfigClampsCurrent(t *testing.T) {
	ctl := NewController(DefaultConfig())
	candles := makeCandles(40)
	for i := 0; i < 40; i++ {
		ctl.Update(candles, stressed)
	}
	require.NoError(t, ctl.ApplyConfig(DefaultConfig().WithOverrides(WithMaxAdjustment(0.05))))
	cur := ctl.Current()
	assert.GreaterOrEqual(t, cur.RSI.Oversold, 30*0.95-1e-9)
	assert.Error(t, ctl.ApplyConfig(DefaultConfig().WithOverrides(WithMaxAdjustment(-1))))
}

func TestCalmKeepsRSIOrdering(t *testing.T) {
	ctl := NewController(DefaultConfig())
	candles := makeCandles(40)
	for i := 0; i < 60; i++ {
		r := ctl.Update(candles, calm).RSI
		require.Less(t, r.Oversold, r.Neutral[0], "cycle %d: %+v", i, r)
		require.LessOrEqual(t, r.Neutral[0], r.Neutral[1], "cycle %d: %+v", i, r)
		require.Less(t, r.Neutral[1], r.Overbought, "cycle %d: %+v", i, r)
	}
	r := ctl.Current().RSI
	assert.Greater(t, r.Overbought, 50.0)
	assert.Less(t, r.Oversold, 50.0)
	// calm narrows the band toward the midpoint
	assert.Greater(t, r.Oversold, 30.0)
	assert.Less(t, r.Overbought, 70.0)
}

func TestKeepRSIOrder(t *testing.T) {
	r := models.RSIThresholds{Oversold: 45, Overbought: 49, Neutral: [2]float64{58, 43}}
	keepRSIOrder(&r)
	assert.Equal(t, [2]float64{50.5, 50.5}, r.Neutral)
	assert.InDelta(t, 49.5, r.Oversold, 1e-12)
	assert.InDelta(t, 51.5, r.Overbought, 1e-12)

	ok := models.RSIThresholds{Oversold: 30, Overbought: 70, Neutral: [2]float64{40, 60}}
	keepRSIOrder(&ok)
	assert.Equal(t, models.RSIThresholds{Oversold: 30, Overbought: 70, Neutral: [2]float64{40, 60}}, ok)
}
