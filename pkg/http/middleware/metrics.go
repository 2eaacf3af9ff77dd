package middleware

import (
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	applogger "FinFusion/pkg/logger"
)

type apiMetrics struct {
	answers  *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	inFlight prometheus.Gauge
	bytes    *prometheus.HistogramVec
}

var (
	metricsOnce sync.Once
	metricsSet  *apiMetrics
)

func registerMetrics(reg prometheus.Registerer) *apiMetrics {
	metricsOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		f := promauto.With(reg)
		metricsSet = &apiMetrics{
			answers: f.NewCounterVec(prometheus.CounterOpts{
				Name: "finfusion_api_answers_total",
				Help: "API answers by route and envelope status.",
			}, []string{"route", "method", "status"}),
			latency: f.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "finfusion_api_latency_seconds",
				Help:    "Time to answer an API request.",
				Buckets: []float64{0.002, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 10, 30},
			}, []string{"route", "outcome"}),
			inFlight: f.NewGauge(prometheus.GaugeOpts{
				Name: "finfusion_api_in_flight",
				Help: "API requests being served.",
			}),
			bytes: f.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "finfusion_api_response_bytes",
				Help:    "Size of API response bodies.",
				Buckets: prometheus.ExponentialBuckets(256, 4, 7),
			}, []string{"route"}),
		}
	})
	return metricsSet
}

// Metrics counts answers per route template and envelope status. Training
// runs with wait=true are the usual slow requests and get logged past slow.
func Metrics(reg prometheus.Registerer, l *applogger.Logger, slow time.Duration) echo.MiddlewareFunc {
	m := registerMetrics(reg)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			m.inFlight.Inc()
			start := time.Now()
			err := next(c)
			took := time.Since(start)
			m.inFlight.Dec()

			status := Outcome(c, err)
			m.answers.WithLabelValues(route, c.Request().Method, strconv.Itoa(status)).Inc()
			m.latency.WithLabelValues(route, outcomeClass(status)).Observe(took.Seconds())
			m.bytes.WithLabelValues(route).Observe(float64(c.Response().Size))

			if l != nil && slow > 0 && took >= slow {
				l.Warn("api slow answer",
					applogger.String("route", route),
					applogger.Int("status", status),
					applogger.Duration("duration_ms", took),
				)
			}
			return err
		}
	}
}

// outcomeClass folds envelope statuses into ok, client and server.
func outcomeClass(status int) string {
	switch {
	case status >= 500:
		return "server"
	case status >= 400:
		return "client"
	default:
		return "ok"
	}
}
