package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DecisionSource counts how confluence queries were answered: "cache",
	// "engine" for the last cycle held in memory, or "cycle" for a fresh run.
	DecisionSource = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "finfusion",
		Subsystem: "api",
		Name:      "decision_source_total",
		Help:      "Confluence answers by where the decision came from.",
	}, []string{"source"})

	Failures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "finfusion",
		Subsystem: "api",
		Name:      "failures_total",
		Help:      "API requests refused or failed by the engines, by error code.",
	}, []string{"endpoint", "code"})

	WSClients = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "finfusion",
		Subsystem: "ws",
		Name:      "clients",
		Help:      "Connected decision stream subscribers.",
	})
)
