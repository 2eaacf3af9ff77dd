package kafka

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"
)

var (
	publishedRecords = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "finfusion_kafka_published_records_total",
		Help: "Records written per topic and result",
	}, []string{"topic", "result"})
	publishedBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "finfusion_kafka_published_bytes_total",
		Help: "Payload bytes written per topic",
	}, []string{"topic"})
	publishSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "finfusion_kafka_publish_seconds",
		Help:    "Write latency per call",
		Buckets: prometheus.DefBuckets,
	}, []string{"topic"})

	consumedRecords = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "finfusion_kafka_consumed_records_total",
		Help: "Records handled per topic and outcome (ok, dead_letter, dropped)",
	}, []string{"topic", "outcome"})
	consumeRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "finfusion_kafka_consume_retries_total",
		Help: "Handler retries per topic",
	}, []string{"topic"})
	handleSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "finfusion_kafka_handle_seconds",
		Help:    "Handling time per record including retries",
		Buckets: prometheus.DefBuckets,
	}, []string{"topic"})
	partitionLag = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "finfusion_kafka_partition_lag",
		Help: "Records behind the high watermark at the last fetch",
	}, []string{"topic", "partition"})
)

func observePublish(topic string, msgs []kafka.Message, d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	var n int
	for _, m := range msgs {
		n += len(m.Value)
	}
	publishedRecords.WithLabelValues(topic, result).Add(float64(len(msgs)))
	publishedBytes.WithLabelValues(topic).Add(float64(n))
	publishSeconds.WithLabelValues(topic).Observe(d.Seconds())
}
