package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"FinFusion/internal/engine"
)

// Recorder implements domain.repository.Metrics and engine.Collector using Prometheus.
type Recorder struct {
	messagesSent   *prometheus.CounterVec
	errorsTotal    *prometheus.CounterVec
	latency        *prometheus.HistogramVec
	cycles         *prometheus.CounterVec
	confidence     *prometheus.GaugeVec
	reliability    *prometheus.GaugeVec
	decisions      *prometheus.CounterVec
	cycleDuration  *prometheus.HistogramVec
	thresholdMoves *prometheus.CounterVec
	training       *prometheus.CounterVec
	trainingError  *prometheus.GaugeVec
	predictorSkips *prometheus.CounterVec
}

// New creates a recorder on the default registry.
func New() *Recorder {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer creates a recorder on reg; tests pass a fresh registry.
func NewWithRegisterer(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		messagesSent: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finfusion_messages_sent_total",
				Help: "Total number of messages sent to backend",
			},
			[]string{"backend", "symbol"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finfusion_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "finfusion_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		cycles: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finfusion_engine_cycles_total",
				Help: "Completed engine cycles",
			},
			[]string{"symbol", "timeframe"},
		),
		confidence: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "finfusion_engine_confidence",
				Help: "Overall confidence of the latest decision",
			},
			[]string{"symbol", "timeframe"},
		),
		reliability: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "finfusion_engine_reliability",
				Help: "Reliability of the latest decision",
			},
			[]string{"symbol", "timeframe"},
		),
		decisions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finfusion_engine_decisions_total",
				Help: "Decisions by signal and risk level",
			},
			[]string{"symbol", "signal", "risk"},
		),
		cycleDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "finfusion_engine_cycle_seconds",
				Help:    "Engine cycle latency",
				Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"timeframe"},
		),
		thresholdMoves: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finfusion_engine_threshold_adjustments_total",
				Help: "Material threshold adjustments",
			},
			[]string{"symbol", "indicator"},
		),
		training: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finfusion_engine_training_runs_total",
				Help: "Predictor training runs by outcome",
			},
			[]string{"symbol", "outcome"},
		),
		trainingError: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "finfusion_engine_training_error",
				Help: "Train and validation error of the last committed run",
			},
			[]string{"symbol", "set"},
		),
		predictorSkips: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finfusion_engine_predictor_skips_total",
				Help: "Cycles that ran without predictor output",
			},
			[]string{"symbol"},
		),
	}
}

// RecordMessageSent records a message sent to a backend.
func (r *Recorder) RecordMessageSent(backend, symbol string) {
	r.messagesSent.WithLabelValues(backend, symbol).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// Collect turns engine events into series.
func (r *Recorder) Collect(e engine.Event) {
	switch e.Type {
	case engine.EventCycleCompleted:
		r.cycles.WithLabelValues(e.Symbol, e.Timeframe).Inc()
		if v, ok := e.Fields["confidence"].(float64); ok {
			r.confidence.WithLabelValues(e.Symbol, e.Timeframe).Set(v)
		}
		if v, ok := e.Fields["reliability"].(float64); ok {
			r.reliability.WithLabelValues(e.Symbol, e.Timeframe).Set(v)
		}
		signal, _ := e.Fields["signal"].(string)
		risk, _ := e.Fields["risk"].(string)
		r.decisions.WithLabelValues(e.Symbol, signal, risk).Inc()
		if d, ok := e.Fields["duration"].(time.Duration); ok {
			r.cycleDuration.WithLabelValues(e.Timeframe).Observe(d.Seconds())
		}
	case engine.EventThresholdAdjusted:
		ind, _ := e.Fields["indicator"].(string)
		r.thresholdMoves.WithLabelValues(e.Symbol, ind).Inc()
	case engine.EventPredictorSkipped:
		r.predictorSkips.WithLabelValues(e.Symbol).Inc()
	case engine.EventTrainingStarted:
		r.training.WithLabelValues(e.Symbol, "started").Inc()
	case engine.EventTrainingFailed:
		r.training.WithLabelValues(e.Symbol, "failed").Inc()
	case engine.EventTrainingFinished:
		outcome := "committed"
		if skipped, _ := e.Fields["skipped"].(bool); skipped {
			outcome = "skipped"
		} else if truncated, _ := e.Fields["truncated"].(bool); truncated {
			outcome = "truncated"
		}
		r.training.WithLabelValues(e.Symbol, outcome).Inc()
		if outcome == "skipped" {
			return
		}
		if v, ok := e.Fields["train_error"].(float64); ok {
			r.trainingError.WithLabelValues(e.Symbol, "train").Set(v)
		}
		if v, ok := e.Fields["validation_error"].(float64); ok {
			r.trainingError.WithLabelValues(e.Symbol, "validation").Set(v)
		}
	}
}

var _ engine.Collector = (*Recorder)(nil)
