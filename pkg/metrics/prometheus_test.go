package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"FinFusion/internal/engine"
)

func TestCollectCycle(t *testing.T) {
	r := NewWithRegisterer(prometheus.NewRegistry())
	r.Collect(engine.Event{
		Type:      engine.EventCycleCompleted,
		Symbol:    "BTCUSDT",
		Timeframe: "1m",
		Fields: map[string]interface{}{
			"confidence":  0.62,
			"reliability": 0.7,
			"signal":      "bullish",
			"risk":        "medium",
			"duration":    3 * time.Millisecond,
		},
	})
	assert.Equal(t, 1.0, testutil.ToFloat64(r.cycles.WithLabelValues("BTCUSDT", "1m")))
	assert.Equal(t, 0.62, testutil.ToFloat64(r.confidence.WithLabelValues("BTCUSDT", "1m")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.decisions.WithLabelValues("BTCUSDT", "bullish", "medium")))
}

func TestCollectTrainingOutcomes(t *testing.T) {
	r := NewWithRegisterer(prometheus.NewRegistry())
	r.Collect(engine.Event{Type: engine.EventTrainingFinished, Symbol: "ETH", Fields: map[string]interface{}{"skipped": true}})
	r.Collect(engine.Event{Type: engine.EventTrainingFinished, Symbol: "ETH", Fields: map[string]interface{}{
		"truncated":        true,
		"train_error":      0.01,
		"validation_error": 0.02,
	}})
	r.Collect(engine.Event{Type: engine.EventTrainingFailed, Symbol: "ETH"})

	assert.Equal(t, 1.0, testutil.ToFloat64(r.training.WithLabelValues("ETH", "skipped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.training.WithLabelValues("ETH", "truncated")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.training.WithLabelValues("ETH", "failed")))
	assert.Equal(t, 0.02, testutil.ToFloat64(r.trainingError.WithLabelValues("ETH", "validation")))
}

func TestCollectThresholdAdjustment(t *testing.T) {
	r := NewWithRegisterer(prometheus.NewRegistry())
	r.Collect(engine.Event{Type: engine.EventThresholdAdjusted, Symbol: "SOL", Fields: map[string]interface{}{"indicator": "rsi"}})
	r.Collect(engine.Event{Type: engine.EventThresholdAdjusted, Symbol: "SOL", Fields: map[string]interface{}{"indicator": "rsi"}})
	assert.Equal(t, 2.0, testutil.ToFloat64(r.thresholdMoves.WithLabelValues("SOL", "rsi")))
}
