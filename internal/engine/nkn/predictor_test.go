package nkn

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinFusion/internal/domain/models"
)

func makeSeries(n int) []models.Candle {
	t0 := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	out := make([]models.Candle, n)
	price := 100.0
	for i := range out {
		next := 100 + 8*math.Sin(float64(i)/6) + 0.02*float64(i)
		out[i] = models.Candle{
			Bucket: t0.Add(time.Duration(i) * time.Hour),
			Symbol: "ETHUSDT",
			Open:   price,
			High:   math.Max(price, next) + 0.3,
			Low:    math.Min(price, next) - 0.3,
			Close:  next,
			Volume: 1000 + 200*math.Cos(float64(i)/4),
		}
		price = next
	}
	return out
}

func trainedPredictor(t *testing.T, opts ...Option) (*Predictor, []models.Candle) {
	t.Helper()
	p := NewPredictor(DefaultConfig().WithOverrides(opts...))
	candles := makeSeries(160)
	if _, err := p.Train(context.Background(), candles); err != nil {
		t.Fatalf("train: %v", err)
	}
	return p, candles
}

func TestDisabledPredictorIsNoop(t *testing.T) {
	p := NewPredictor(DefaultConfig().WithOverrides(WithEnabled(false)))
	few := makeSeries(5)

	preds, err := p.GeneratePredictions(context.Background(), few, 5)
	require.NoError(t, err)
	assert.Empty(t, preds)

	pats, err := p.RecognizePatterns(context.Background(), few)
	require.NoError(t, err)
	assert.Empty(t, pats)

	res, err := p.Train(context.Background(), few)
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Nil(t, p.State())
}

func TestInvalidConfigDisablesPredictor(t *testing.T) {
	p := NewPredictor(DefaultConfig().WithOverrides(WithNetwork(0, 16)))
	require.False(t, p.Enabled())
	preds, err := p.GeneratePredictions(context.Background(), makeSeries(200), 3)
	require.NoError(t, err)
	assert.Empty(t, preds)
}

func TestInsufficientDataFails(t *testing.T) {
	p := NewPredictor(DefaultConfig())
	few := makeSeries(50)

	_, err := p.GeneratePredictions(context.Background(), few, 3)
	assert.True(t, errors.Is(err, ErrInsufficientData), "predict: %v", err)

	_, err = p.Train(context.Background(), few)
	assert.True(t, errors.Is(err, ErrInsufficientData), "train: %v", err)

	_, err = p.RecognizePatterns(context.Background(), few)
	assert.True(t, errors.Is(err, ErrInsufficientData), "patterns: %v", err)
}

func TestUntrainedPredictionsAreNeutral(t *testing.T) {
	p := NewPredictor(DefaultConfig())
	candles := makeSeries(120)
	preds, err := p.GeneratePredictions(context.Background(), candles, 3)
	require.NoError(t, err)
	require.Len(t, preds, 3)
	for _, pr := range preds {
		assert.Equal(t, 0.5, pr.Probability)
		assert.Equal(t, 0.0, pr.Confidence)
		assert.Equal(t, candles[len(candles)-1].Close, pr.PredictedPrice)
	}
	assert.True(t, preds[1].Timestamp.After(preds[0].Timestamp))
}

func TestConfidenceNonIncreasingInHorizon(t *testing.T) {
	p, candles := trainedPredictor(t)
	preds, err := p.GeneratePredictions(context.Background(), candles, 10)
	require.NoError(t, err)
	require.Len(t, preds, 10)
	for i, pr := range preds {
		assert.Equal(t, i+1, pr.Horizon)
		assert.GreaterOrEqual(t, pr.Probability, 0.0)
		assert.LessOrEqual(t, pr.Probability, 1.0)
		assert.Greater(t, pr.PredictedPrice, 0.0)
		if i > 0 {
			assert.LessOrEqual(t, pr.Confidence, preds[i-1].Confidence)
		}
	}
	assert.InDelta(t, preds[0].Confidence, Confidence(preds), 1e-12)
}

func TestPatternsFilteredAndSorted(t *testing.T) {
	p, candles := trainedPredictor(t, WithConfidenceThreshold(0))
	all, err := p.RecognizePatterns(context.Background(), candles)
	require.NoError(t, err)
	require.Len(t, all, len(models.PatternTypes))
	for i := 1; i < len(all); i++ {
		assert.GreaterOrEqual(t, all[i-1].Probability, all[i].Probability)
	}

	require.NoError(t, p.ApplyConfig(p.Config().WithOverrides(WithConfidenceThreshold(0.5))))
	some, err := p.RecognizePatterns(context.Background(), candles)
	require.NoError(t, err)
	for _, r := range some {
		assert.Greater(t, r.Probability, 0.5)
		if r.Pattern.Bullish() {
			assert.Equal(t, models.DirectionUp, r.Direction)
		} else {
			assert.Equal(t, models.DirectionDown, r.Direction)
		}
	}

	require.NoError(t, p.ApplyConfig(p.Config().WithOverrides(WithConfidenceThreshold(0.9))))
	strict, err := p.RecognizePatterns(context.Background(), candles)
	require.NoError(t, err)
	want := 0
	for _, r := range all {
		if r.Probability > 0.9 {
			want++
		}
	}
	require.Len(t, strict, want)
	for i, r := range strict {
		assert.Greater(t, r.Probability, 0.9)
		if i > 0 {
			assert.GreaterOrEqual(t, strict[i-1].Probability, r.Probability)
		}
	}
}

func TestTrainingReducesError(t *testing.T) {
	p := NewPredictor(DefaultConfig())
	res, err := p.Train(context.Background(), makeSeries(200))
	require.NoError(t, err)
	assert.Greater(t, res.Epochs, 0)
	assert.LessOrEqual(t, res.TrainError, res.InitialError)

	st := p.State()
	require.NotNil(t, st)
	assert.Len(t, st.Layers, DefaultConfig().NetworkDepth+1)
	assert.Equal(t, res.Epochs, st.TrainingEpochs)
}

// Gradients flow through every layer, not only the output layer, so a second
// run must move the first hidden layer's weights too.
func TestTrainingUpdatesHiddenLayers(t *testing.T) {
	p, candles := trainedPredictor(t)
	before := p.State()

	_, err := p.Train(context.Background(), candles)
	require.NoError(t, err)
	after := p.State()

	require.Equal(t, len(before.Layers), len(after.Layers))
	assert.NotEqual(t, before.Layers[0].Weights, after.Layers[0].Weights)
	assert.NotEqual(t, before.Layers[len(before.Layers)-1].Weights, after.Layers[len(after.Layers)-1].Weights)
	assert.Greater(t, after.TrainingEpochs, before.TrainingEpochs)
}

func TestCancelledTrainingCommitsNothing(t *testing.T) {
	p := NewPredictor(DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Train(ctx, makeSeries(160))
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Nil(t, p.State())
	assert.False(t, p.Trained())
}

func TestCancelledRetrainKeepsPreviousCommit(t *testing.T) {
	p, candles := trainedPredictor(t)
	before := p.State()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Train(ctx, candles)
	require.Error(t, err)

	after := p.State()
	assert.Equal(t, before.TrainedAt, after.TrainedAt)
	assert.Equal(t, before.Layers, after.Layers)
}

func TestInferenceDuringBackgroundTraining(t *testing.T) {
	p, candles := trainedPredictor(t)
	done := p.TrainAsync(context.Background(), candles)

	for i := 0; i < 20; i++ {
		preds, err := p.GeneratePredictions(context.Background(), candles, 3)
		require.NoError(t, err)
		require.Len(t, preds, 3)
	}

	select {
	case out := <-done:
		require.NoError(t, out.Err)
		assert.Greater(t, out.Result.Epochs, 0)
	case <-time.After(30 * time.Second):
		t.Fatalf("background training did not finish")
	}
}

func TestTrainingDurationBudget(t *testing.T) {
	cfg := DefaultConfig().WithOverrides(WithEpochs(100000), WithMaxTrainingDuration(50*time.Millisecond))
	cfg.MinLearningRate = 0
	cfg.LearningRateDecay = 1
	p := NewPredictor(cfg)
	res, err := p.Train(context.Background(), makeSeries(160))
	require.NoError(t, err)
	assert.True(t, res.Truncated)
	assert.True(t, p.Trained())
}

func TestReshapeDropsCommittedNetwork(t *testing.T) {
	p, _ := trainedPredictor(t)
	require.True(t, p.Trained())
	require.NoError(t, p.ApplyConfig(p.Config().WithOverrides(WithNetwork(1, 8))))
	assert.False(t, p.Trained())
}
