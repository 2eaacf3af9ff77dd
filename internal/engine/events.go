package engine

import "time"

// Event types emitted to a Collector.
const (
	EventThresholdAdjusted = "threshold_adjusted"
	EventPredictorSkipped  = "predictor_skipped"
	EventTrainingStarted   = "training_started"
	EventTrainingFinished  = "training_finished"
	EventTrainingFailed    = "training_failed"
	EventCycleCompleted    = "cycle_completed"
)

// Event is one telemetry record of an engine.
type Event struct {
	Type      string
	Symbol    string
	Timeframe string
	Time      time.Time
	Fields    map[string]interface{}
}

// Collector receives engine events. Training events arrive from background
// goroutines, so implementations must be safe for concurrent use.
type Collector interface {
	Collect(Event)
}

// CollectorFunc adapts a function to Collector.
type CollectorFunc func(Event)

func (f CollectorFunc) Collect(e Event) { f(e) }
