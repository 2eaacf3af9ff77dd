package fusion

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinFusion/internal/domain/models"
)

var t0 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func makeCandles(n int) []models.Candle {
	out := make([]models.Candle, n)
	price := 100.0
	for i := range out {
		next := price * (1 + 0.004*math.Sin(float64(i)/4) + 0.001)
		out[i] = models.Candle{
			Bucket:    t0.Add(time.Duration(i) * time.Hour),
			Symbol:    "ETHUSDT",
			Timeframe: "1h",
			Open:      price,
			High:      math.Max(price, next) * 1.003,
			Low:       math.Min(price, next) * 0.997,
			Close:     next,
			Volume:    500 + 20*float64(i%7),
		}
		price = next
	}
	return out
}

// freshInput has candles whose last bar is still open at Now.
func freshInput() Input {
	cs := makeCandles(30)
	return Input{
		Symbol:    "ETHUSDT",
		Timeframe: "1h",
		Candles:   cs,
		Now:       cs[len(cs)-1].Bucket.Add(30 * time.Minute),
	}
}

func agreeingMatrix(avg float64) models.IndicatorMatrix {
	pairs := make([]models.CorrelationPair, 10)
	for i := range pairs {
		pairs[i] = models.CorrelationPair{A: "a", B: "b", Correlation: avg, Agreement: true}
	}
	return models.IndicatorMatrix{
		Correlation:    models.CorrelationMatrix{Pairs: pairs, AverageCorrelation: avg},
		DominantSignal: models.SignalNeutral,
	}
}

func hasAdjustment(adjs []models.ConfidenceAdjustment, typ, factor string) bool {
	for _, a := range adjs {
		if a.Type == typ && a.Factor == factor {
			return true
		}
	}
	return false
}

func TestWeightsSumToOne(t *testing.T) {
	f := NewFusion(DefaultConfig())
	regimes := []models.RegimeType{"", models.RegimeTrending, models.RegimeRanging, models.RegimeBreakout, models.RegimeReversal}
	vols := []float64{0, 0.05, 0.3, 0.9}
	corrs := []float64{0.1, 0.5, 0.9}

	for _, r := range regimes {
		for _, v := range vols {
			for _, c := range corrs {
				in := freshInput()
				in.Matrix = agreeingMatrix(c)
				in.Conditions = models.MarketConditions{Volatility: v, Regime: models.Regime{Type: r, Confidence: 0.7}}
				out := f.Calculate(in)
				require.InDelta(t, 1.0, out.Weights.Sum(), 1e-6, "regime=%s vol=%v corr=%v", r, v, c)
			}
		}
	}
}

func TestTrendingRegimeShiftsWeights(t *testing.T) {
	f := NewFusion(DefaultConfig())
	in := freshInput()
	in.Conditions.Regime = models.Regime{Type: models.RegimeTrending, Confidence: 0.8}
	trending := f.Calculate(in).Weights

	in.Conditions.Regime = models.Regime{Type: models.RegimeRanging, Confidence: 0.8}
	ranging := f.Calculate(in).Weights

	assert.Greater(t, trending.Timeframe, ranging.Timeframe)
	assert.Greater(t, ranging.Pattern, trending.Pattern)
}

func TestConfidenceBoundedForDegenerateInputs(t *testing.T) {
	cfg := DefaultConfig()
	f := NewFusion(cfg)

	cases := map[string]Input{
		"empty":          {},
		"nan volatility": {Conditions: models.MarketConditions{Volatility: math.NaN()}},
		"huge volatility": {
			Candles:    makeCandles(30),
			Conditions: models.MarketConditions{Volatility: 50, Regime: models.Regime{Type: models.RegimeBreakout, Confidence: 1}},
		},
		"zero volume": {Candles: func() []models.Candle {
			cs := makeCandles(25)
			for i := range cs {
				cs[i].Volume = 0
			}
			return cs
		}()},
		"saturated": func() Input {
			in := freshInput()
			in.Matrix = agreeingMatrix(1)
			in.Matrix.Scores = []models.IndicatorScore{{Indicator: "rsi", Score: 1, Strength: models.StrengthStrong, Confidence: 1}}
			in.Zones = []models.ConfluenceZone{{Strength: 1, Reliability: 1}, {Strength: 1, Reliability: 1}, {Strength: 1, Reliability: 1}}
			return in
		}(),
	}

	for name, in := range cases {
		out := f.Calculate(in)
		assert.GreaterOrEqual(t, out.OverallConfidence, cfg.MinConfidenceThreshold, name)
		assert.LessOrEqual(t, out.OverallConfidence, cfg.MaxConfidenceThreshold, name)
		assert.False(t, math.IsNaN(out.Reliability), name)
		for _, v := range out.Factors.Values() {
			assert.True(t, v >= 0 && v <= 1, "%s: factor %v out of range", name, v)
		}
	}
}

func TestEmptyCorrelationMatrixDefaultsToHalf(t *testing.T) {
	f := NewFusion(DefaultConfig())
	out := f.Calculate(freshInput())

	require.Equal(t, 0.5, out.Factors.Correlation)
	require.Equal(t, 0.3, out.Factors.Technical)
	require.Equal(t, 0.4, out.Factors.Pattern)
}

func TestTimeDecayFloor(t *testing.T) {
	cfg := DefaultConfig()
	fresh := NewFusion(cfg).Calculate(freshInput())

	in := freshInput()
	in.Now = in.Candles[len(in.Candles)-1].Bucket.Add(101 * time.Hour)
	stale := NewFusion(cfg).Calculate(in)

	fv, sv := fresh.Factors.Values(), stale.Factors.Values()
	for i := range fv {
		assert.InDelta(t, fv[i]*0.5, sv[i], 1e-9, models.FactorNames[i])
	}
	assert.True(t, hasAdjustment(stale.Adjustments, AdjTimeDecay, models.FactorTechnical))
	assert.False(t, hasAdjustment(fresh.Adjustments, AdjTimeDecay, models.FactorTechnical))
}

func TestTimeDecayUsesInjectedClock(t *testing.T) {
	f := NewFusion(DefaultConfig())
	in := freshInput()
	last := in.Candles[len(in.Candles)-1].Bucket
	in.Now = time.Time{}

	f.SetClock(func() time.Time { return last.Add(3 * time.Hour) })
	out := f.Calculate(in)

	// two hours past the bar close: exp(-0.2)
	require.InDelta(t, 0.3*math.Exp(-0.2), out.Factors.Technical, 1e-9)
	require.Equal(t, last.Add(3*time.Hour), out.Timestamp)
}

func TestVolatilityAdjustmentFloor(t *testing.T) {
	in := freshInput()
	in.Conditions.Volatility = 3.0

	on := NewFusion(DefaultConfig()).Calculate(in)
	off := NewFusion(DefaultConfig().WithOverrides(WithVolatilityAdjustment(false))).Calculate(in)

	assert.InDelta(t, off.Factors.Technical*0.7, on.Factors.Technical, 1e-9)
	assert.InDelta(t, off.Factors.Pattern*0.7, on.Factors.Pattern, 1e-9)
	assert.InDelta(t, off.Factors.Timeframe*0.7, on.Factors.Timeframe, 1e-9)
	assert.Equal(t, off.Factors.Volume, on.Factors.Volume)
	assert.Equal(t, off.Factors.Liquidity, on.Factors.Liquidity)
}

func TestVolatilityFactorPeaksAtOptimum(t *testing.T) {
	cfg := DefaultConfig()
	at := func(v float64) float64 {
		return volatilityFactor(Input{Conditions: models.MarketConditions{Volatility: v}}, cfg)
	}
	assert.InDelta(t, 1.0, at(0.3), 1e-12)
	assert.Less(t, at(0.1), at(0.3))
	assert.Less(t, at(0.6), at(0.3))
	assert.Equal(t, 0.1, at(5))
}

func TestFactorFailureIsIsolated(t *testing.T) {
	in := freshInput()
	in.Candles[20].Volume = math.NaN()

	out := NewFusion(DefaultConfig()).Calculate(in)

	require.Equal(t, defaultNeutral, out.Factors.Volume)
	require.True(t, hasAdjustment(out.Adjustments, AdjFactorFailure, models.FactorVolume))
	require.False(t, math.IsNaN(out.OverallConfidence))
}

func TestSafeFactorRecoversPanic(t *testing.T) {
	boom := func(Input, Config) float64 { panic("boom") }
	_, err := safeFactor(boom, Input{}, DefaultConfig())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestUnknownRegimeMultiplierKeyRejected(t *testing.T) {
	cfg := DefaultConfig().WithOverrides(WithRegimeMultiplier(models.RegimeTrending, "sentiment", 1.2))
	err := cfg.Validate()
	require.Error(t, err)
	require.True(t, errors.Is(err, models.ErrUnknownWeightKey))

	f := NewFusion(cfg)
	require.False(t, f.Valid())
	out := f.Calculate(freshInput())
	assert.Zero(t, out.OverallConfidence)
	assert.Equal(t, models.RiskHigh, out.RiskLevel)
	assert.True(t, hasAdjustment(out.Adjustments, AdjInvalidConfig, ""))
}

func TestDegenerateWeightsFallBackToBase(t *testing.T) {
	opts := []Option{}
	for _, name := range models.FactorNames {
		opts = append(opts, WithRegimeMultiplier(models.RegimeTrending, name, 0))
	}
	cfg := DefaultConfig().WithOverrides(opts...)
	in := freshInput()
	in.Conditions.Regime = models.Regime{Type: models.RegimeTrending, Confidence: 0.9}

	out := NewFusion(cfg).Calculate(in)

	require.InDelta(t, 1.0, out.Weights.Sum(), 1e-6)
	assert.InDelta(t, 0.25, out.Weights.Technical, 1e-9)
	assert.True(t, hasAdjustment(out.Adjustments, AdjWeightFallback, ""))
}

func TestNormalizeSumsToOne(t *testing.T) {
	w := models.ConfidenceWeights{Technical: 1, Pattern: 1, Volume: 1, Timeframe: 1, Correlation: 1, MarketRegime: 1, Volatility: 1, Liquidity: 3}
	n, ok := normalize(w)
	require.True(t, ok)
	assert.InDelta(t, 1.0, n.Sum(), 1e-12)
	assert.InDelta(t, 0.3, n.Liquidity, 1e-12)

	_, ok = normalize(models.ConfidenceWeights{})
	assert.False(t, ok)
}

func TestHistoricalPerformanceAdjustment(t *testing.T) {
	f := NewFusion(DefaultConfig())
	base := f.Calculate(freshInput())

	for i := 0; i < 4; i++ {
		f.RecordOutcome(1)
	}
	below := f.Calculate(freshInput())
	assert.False(t, hasAdjustment(below.Adjustments, AdjPerformance, models.FactorTechnical))

	f.RecordOutcome(1)
	avg, n := f.Performance()
	require.Equal(t, 5, n)
	require.Equal(t, 1.0, avg)

	boosted := f.Calculate(freshInput())
	assert.InDelta(t, base.Factors.Technical*1.1, boosted.Factors.Technical, 1e-9)
	assert.True(t, hasAdjustment(boosted.Adjustments, AdjPerformance, models.FactorTechnical))
}

func TestPerformanceWindowIsBounded(t *testing.T) {
	f := NewFusion(DefaultConfig())
	for i := 0; i < 80; i++ {
		f.RecordOutcome(0)
	}
	_, n := f.Performance()
	assert.Equal(t, 50, n)
}

func TestCorrelationBoost(t *testing.T) {
	in := freshInput()
	in.Matrix = agreeingMatrix(0.9)

	on := NewFusion(DefaultConfig()).Calculate(in)
	off := NewFusion(DefaultConfig().WithOverrides(WithCorrelationBoost(false))).Calculate(in)

	require.InDelta(t, 0.95, on.Factors.Correlation, 1e-9)
	assert.InDelta(t, off.Factors.Technical*1.1, on.Factors.Technical, 1e-9)
	assert.InDelta(t, off.Factors.Pattern*1.1, on.Factors.Pattern, 1e-9)
	assert.True(t, hasAdjustment(on.Adjustments, AdjCorrelationBoost, models.FactorTechnical))
}

func TestPredictorBlend(t *testing.T) {
	in := freshInput()
	in.Matrix.DominantSignal = models.SignalBullish
	in.Predictions = []models.NKNPrediction{
		{Horizon: 1, Confidence: 0.9, Direction: models.DirectionUp},
		{Horizon: 2, Confidence: 0.8, Direction: models.DirectionUp},
	}
	in.Patterns = []models.NKNPatternResult{{Pattern: models.PatternBullFlag, Probability: 0.9}}

	out := NewFusion(DefaultConfig()).Calculate(in)

	// no scores: technical 0.3 plus nothing, then 80/20 with 0.9
	assert.InDelta(t, 0.8*0.3+0.2*0.9, out.Factors.Technical, 1e-9)
	assert.InDelta(t, 0.8*0.4+0.2*0.9, out.Factors.Pattern, 1e-9)
	assert.True(t, hasAdjustment(out.Adjustments, AdjPredictorBlend, models.FactorTechnical))
	assert.True(t, hasAdjustment(out.Adjustments, AdjPatternBlend, models.FactorPattern))
}

func TestOpposingPredictionLowersTechnical(t *testing.T) {
	in := freshInput()
	in.Matrix.DominantSignal = models.SignalBearish
	in.Predictions = []models.NKNPrediction{{Horizon: 1, Confidence: 0.9, Direction: models.DirectionUp}}

	out := NewFusion(DefaultConfig()).Calculate(in)
	assert.InDelta(t, 0.8*0.3+0.2*0.1, out.Factors.Technical, 1e-9)
}

func TestUntrainedPredictionsIgnored(t *testing.T) {
	in := freshInput()
	in.Predictions = []models.NKNPrediction{{Horizon: 1, Probability: 0.5, Confidence: 0, Direction: models.DirectionSideways}}

	out := NewFusion(DefaultConfig()).Calculate(in)
	assert.Equal(t, 0.3, out.Factors.Technical)
	assert.False(t, hasAdjustment(out.Adjustments, AdjPredictorBlend, models.FactorTechnical))
}

func TestRiskLevels(t *testing.T) {
	flat := models.ConfidenceFactors{Technical: 0.6, Pattern: 0.6, Volume: 0.6, Timeframe: 0.6, Correlation: 0.6, MarketRegime: 0.6, Volatility: 0.6, Liquidity: 0.6}
	cond := func(v float64, r models.RegimeType) Input {
		return Input{Conditions: models.MarketConditions{Volatility: v, Regime: models.Regime{Type: r}}}
	}

	assert.Equal(t, models.RiskLow, riskLevel(0.8, flat, cond(0.2, models.RegimeTrending)))
	assert.Equal(t, models.RiskMedium, riskLevel(0.5, flat, cond(0.35, models.RegimeTrending)))
	assert.Equal(t, models.RiskHigh, riskLevel(0.3, flat, cond(0.6, models.RegimeTrending)))

	spread := flat
	spread.Volume = 0.05
	assert.Equal(t, models.RiskMedium, riskLevel(0.8, spread, cond(0.2, models.RegimeBreakout)))
}

func TestReliability(t *testing.T) {
	flat := models.ConfidenceFactors{Technical: 0.5, Pattern: 0.5, Volume: 0.5, Timeframe: 0.5, Correlation: 0.5, MarketRegime: 0.5, Volatility: 0.5, Liquidity: 0.5}
	assert.InDelta(t, 0.6+0.4*0.5, reliability(flat, models.CorrelationMatrix{}), 1e-12)

	strong := agreeingMatrix(1).Correlation
	assert.InDelta(t, 1.0, reliability(flat, strong), 1e-12)

	scattered := models.ConfidenceFactors{Technical: 0, Pattern: 1, Volume: 0, Timeframe: 1, Correlation: 0, MarketRegime: 1, Volatility: 0, Liquidity: 1}
	assert.Less(t, reliability(scattered, strong), reliability(flat, strong))
}

func TestWithOverridesDoesNotMutateBase(t *testing.T) {
	base := DefaultConfig()
	_ = base.WithOverrides(WithRegimeMultiplier(models.RegimeTrending, models.FactorVolume, 9))
	assert.NotContains(t, base.RegimeMultipliers[models.RegimeTrending], models.FactorVolume)
}

func TestApplyConfig(t *testing.T) {
	f := NewFusion(DefaultConfig())
	for i := 0; i < 10; i++ {
		f.RecordOutcome(0.7)
	}

	bad := DefaultConfig().WithOverrides(WithConfidenceBounds(0.9, 0.2))
	require.Error(t, f.ApplyConfig(bad))
	assert.True(t, f.Valid())

	next := DefaultConfig()
	next.PerformanceWindow = 5
	require.NoError(t, f.ApplyConfig(next))
	_, n := f.Performance()
	assert.Equal(t, 5, n)
	assert.Equal(t, 5, f.Config().PerformanceWindow)
}

func TestDecisionCarriesIdentity(t *testing.T) {
	f := NewFusion(DefaultConfig())
	in := freshInput()
	in.Matrix.DominantSignal = models.SignalBullish
	a := f.Calculate(in)
	b := f.Calculate(in)

	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, "ETHUSDT", a.Symbol)
	assert.Equal(t, models.SignalBullish, a.Signal)
	assert.NotNil(t, a.Adjustments)
}
