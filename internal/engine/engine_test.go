package engine

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinFusion/internal/domain/models"
	"FinFusion/internal/engine/fusion"
	"FinFusion/internal/engine/nkn"
	"FinFusion/internal/engine/scoring"
)

var t0 = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

func history(n int) ([]models.Candle, []models.IndicatorSample) {
	candles := make([]models.Candle, n)
	samples := make([]models.IndicatorSample, n)
	price, pvt := 100.0, 0.0
	for i := 0; i < n; i++ {
		x := float64(i)
		next := 100 + 6*math.Sin(x/7) + 0.03*x
		candles[i] = models.Candle{
			Bucket:    t0.Add(time.Duration(i) * time.Hour),
			Symbol:    "BTCUSDT",
			Timeframe: "1h",
			Open:      price,
			High:      math.Max(price, next) + 0.2,
			Low:       math.Min(price, next) - 0.2,
			Close:     next,
			Volume:    900 + 150*math.Cos(x/5),
		}
		pvt += (next - price) / price * candles[i].Volume
		trend := models.TrendSideways
		if next > price {
			trend = models.TrendBullish
		} else if next < price {
			trend = models.TrendBearish
		}
		samples[i] = models.IndicatorSample{
			Timestamp:  candles[i].Bucket,
			RSI:        50 + 25*math.Sin(x/7),
			WaveTrend:  models.WaveTrend{WT1: 60 * math.Sin(x/7), WT2: 60 * math.Sin((x-2)/7), Signal: models.WTNeutral},
			PVT:        pvt,
			Trend:      trend,
			Momentum:   models.MomentumWeak,
			Volatility: 0.2 + 0.05*math.Sin(x/3),
		}
		price = next
	}
	return candles, samples
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Predictor = nkn.DefaultConfig().WithOverrides(nkn.WithTrainingPeriod(60), nkn.WithEpochs(5))
	cfg.AutoTrain = false
	return cfg
}

func lastOpen(cs []models.Candle) time.Time {
	return cs[len(cs)-1].Bucket.Add(10 * time.Minute)
}

func TestCycleRequiresCandles(t *testing.T) {
	e := New("BTCUSDT", "1h", testConfig())
	defer e.Close()

	_, err := e.Cycle(context.Background(), CycleInput{})
	require.True(t, errors.Is(err, ErrNoCandles))
	assert.Nil(t, e.Last())
}

func TestCycleProducesBoundedDecision(t *testing.T) {
	cfg := testConfig()
	e := New("BTCUSDT", "1h", cfg)
	defer e.Close()
	candles, samples := history(120)

	res, err := e.Cycle(context.Background(), CycleInput{
		Samples:    samples,
		Candles:    candles,
		Conditions: models.MarketConditions{Volatility: 0.25, Regime: models.Regime{Type: models.RegimeTrending, Confidence: 0.7}},
		Zones:      []models.ConfluenceZone{{PriceLevel: candles[len(candles)-1].Close, Strength: 0.8, Reliability: 0.7, Type: models.ZoneSupport}},
		Now:        lastOpen(candles),
	})
	require.NoError(t, err)

	d := res.Decision
	assert.GreaterOrEqual(t, d.OverallConfidence, cfg.Fusion.MinConfidenceThreshold)
	assert.LessOrEqual(t, d.OverallConfidence, cfg.Fusion.MaxConfidenceThreshold)
	assert.InDelta(t, 1.0, d.Weights.Sum(), 1e-6)
	assert.Equal(t, "BTCUSDT", d.Symbol)
	assert.Len(t, res.Matrix.Scores, 6)
	assert.Len(t, res.Predictions, cfg.Predictor.PredictionHorizon)
	assert.False(t, res.TrainingStarted)
	assert.Same(t, res, e.Last())
}

func TestPredictorShortageIsIsolated(t *testing.T) {
	cfg := testConfig()
	cfg.Predictor = nkn.DefaultConfig()
	var (
		mu     sync.Mutex
		events []Event
	)
	e := New("BTCUSDT", "1h", cfg, WithCollector(CollectorFunc(func(ev Event) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	})))
	defer e.Close()

	candles, samples := history(40)
	res, err := e.Cycle(context.Background(), CycleInput{Samples: samples, Candles: candles, Now: lastOpen(candles)})
	require.NoError(t, err)

	var found bool
	for _, a := range res.Decision.Adjustments {
		if a.Type == AdjPredictionsUnavailable {
			found = true
			assert.Contains(t, a.Reason, "insufficient")
		}
	}
	assert.True(t, found)
	assert.Empty(t, res.Predictions)

	mu.Lock()
	defer mu.Unlock()
	types := map[string]bool{}
	for _, ev := range events {
		types[ev.Type] = true
		assert.Equal(t, "BTCUSDT", ev.Symbol)
	}
	assert.True(t, types[EventPredictorSkipped])
	assert.True(t, types[EventCycleCompleted])
}

func TestAutoTrainRunsInBackground(t *testing.T) {
	cfg := testConfig()
	cfg.AutoTrain = true
	done := make(chan Event, 4)
	e := New("BTCUSDT", "1h", cfg, WithCollector(CollectorFunc(func(ev Event) {
		if ev.Type == EventTrainingFinished || ev.Type == EventTrainingFailed {
			done <- ev
		}
	})))
	defer e.Close()

	candles, samples := history(120)
	in := CycleInput{Samples: samples, Candles: candles, Now: lastOpen(candles)}
	res, err := e.Cycle(context.Background(), in)
	require.NoError(t, err)
	require.True(t, res.TrainingStarted)

	select {
	case ev := <-done:
		require.Equal(t, EventTrainingFinished, ev.Type, "%v", ev.Fields)
	case <-time.After(30 * time.Second):
		t.Fatalf("training did not finish")
	}
	require.NotNil(t, e.NetworkState())

	res, err = e.Cycle(context.Background(), in)
	require.NoError(t, err)
	assert.False(t, res.TrainingStarted)
	assert.Greater(t, res.Predictions[0].Confidence, 0.0)
}

func TestTrainGateVetoesAutoTraining(t *testing.T) {
	cfg := testConfig()
	cfg.AutoTrain = true
	var asked []Key
	e := New("BTCUSDT", "1h", cfg, WithTrainGate(func(k Key) bool {
		asked = append(asked, k)
		return false
	}))
	defer e.Close()

	candles, samples := history(120)
	res, err := e.Cycle(context.Background(), CycleInput{Samples: samples, Candles: candles, Now: lastOpen(candles)})
	require.NoError(t, err)
	assert.False(t, res.TrainingStarted)
	assert.False(t, e.Training())
	assert.Equal(t, []Key{{Symbol: "BTCUSDT", Timeframe: "1h"}}, asked)
}

func TestDisabledPredictorNeverTrains(t *testing.T) {
	cfg := testConfig()
	cfg.AutoTrain = true
	cfg.Predictor = cfg.Predictor.WithOverrides(nkn.WithEnabled(false))
	e := New("BTCUSDT", "1h", cfg)
	defer e.Close()

	candles, samples := history(120)
	res, err := e.Cycle(context.Background(), CycleInput{Samples: samples, Candles: candles})
	require.NoError(t, err)
	assert.False(t, res.TrainingStarted)
	assert.Empty(t, res.Predictions)
	assert.Empty(t, res.Patterns)
}

func TestManualTrain(t *testing.T) {
	e := New("BTCUSDT", "1h", testConfig())
	defer e.Close()
	candles, _ := history(120)

	res, err := e.Train(context.Background(), candles)
	require.NoError(t, err)
	assert.Greater(t, res.Epochs, 0)
	assert.False(t, e.Training())
	require.NotNil(t, e.NetworkState())

	_, err = e.Train(context.Background(), candles[:10])
	require.True(t, errors.Is(err, nkn.ErrInsufficientData))
}

func TestCycleHonoursCancellation(t *testing.T) {
	e := New("BTCUSDT", "1h", testConfig())
	defer e.Close()
	candles, samples := history(80)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.Cycle(ctx, CycleInput{Samples: samples, Candles: candles})
	require.True(t, errors.Is(err, context.Canceled))
}

func TestResetThresholds(t *testing.T) {
	e := New("BTCUSDT", "1h", testConfig())
	defer e.Close()
	candles, samples := history(80)
	stressed := models.MarketConditions{
		Volatility: 0.6,
		Regime:     models.Regime{Type: models.RegimeBreakout, Confidence: 0.9},
		TimeOfDay:  models.SessionOverlap,
	}

	var moved int
	for i := 0; i < 10; i++ {
		res, err := e.Cycle(context.Background(), CycleInput{Samples: samples, Candles: candles, Conditions: stressed})
		require.NoError(t, err)
		moved += len(res.Adjusted)
	}
	require.Greater(t, moved, 0)
	require.NotEqual(t, e.BaseThresholds(), e.Thresholds())
	require.NotEmpty(t, e.ThresholdHistory())

	e.ResetThresholds()
	assert.Equal(t, e.BaseThresholds(), e.Thresholds())
	assert.Empty(t, e.ThresholdHistory())
}

func TestConcurrentCyclesAreSerialized(t *testing.T) {
	e := New("BTCUSDT", "1h", testConfig())
	defer e.Close()
	candles, samples := history(80)
	cond := models.MarketConditions{Volatility: 0.5, Regime: models.Regime{Type: models.RegimeBreakout}}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				if _, err := e.Cycle(context.Background(), CycleInput{Samples: samples, Candles: candles, Conditions: cond}); err != nil {
					t.Errorf("cycle: %v", err)
				}
			}
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, len(e.ThresholdHistory()), 100)
}

func TestRecordOutcome(t *testing.T) {
	e := New("BTCUSDT", "1h", testConfig())
	defer e.Close()
	e.RecordOutcome(0.9)
	e.RecordOutcome(1.5)
	avg, n := e.Performance()
	assert.Equal(t, 2, n)
	assert.InDelta(t, 0.95, avg, 1e-12)
}

func TestApplyConfigKeepsValidParts(t *testing.T) {
	e := New("BTCUSDT", "1h", testConfig())
	defer e.Close()

	next := testConfig()
	next.Scoring = scoring.DefaultConfig().WithOverrides(scoring.WithLookback(30))
	next.Fusion = fusion.DefaultConfig().WithOverrides(fusion.WithConfidenceBounds(0.8, 0.2))

	err := e.ApplyConfig(next)
	require.Error(t, err)

	got := e.Config()
	assert.Equal(t, 30, got.Scoring.Lookback)
	assert.Equal(t, 0.1, got.Fusion.MinConfidenceThreshold)
	assert.Equal(t, "1h", got.Thresholds.Timeframe)
}
