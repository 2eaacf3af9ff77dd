package usecase

import (
	"context"
	"errors"
	"time"

	"FinFusion/internal/domain/models"
	domrepo "FinFusion/internal/domain/repository"
	"FinFusion/internal/engine"
	pkgkafka "FinFusion/pkg/kafka"
)

// Ingester is the part of ConfluenceUseCase the Kafka handler needs.
type Ingester interface {
	Ingest(ctx context.Context, bar models.Bar) (*engine.CycleResult, error)
}

// KafkaCandlesHandler consumes closed bars and feeds them to the engines.
type KafkaCandlesHandler struct {
	topic   string
	ingest  Ingester
	metrics domrepo.Metrics
}

func NewKafkaCandlesHandler(topic string, ingest Ingester, metrics domrepo.Metrics) *KafkaCandlesHandler {
	return &KafkaCandlesHandler{topic: topic, ingest: ingest, metrics: metrics}
}

func (h *KafkaCandlesHandler) Topic() string { return h.topic }

// Handle decodes one closed bar and runs it through its engine.
func (h *KafkaCandlesHandler) Handle(ctx context.Context, b []byte) error {
	bar, err := pkgkafka.Decode[models.Bar](b)
	if err != nil {
		h.recordError("consumer_unmarshal")
		return err
	}

	start := time.Now()
	_, err = h.ingest.Ingest(ctx, bar)
	if h.metrics != nil {
		h.metrics.RecordLatency("cycle_seconds", time.Since(start).Seconds())
	}
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrStaleBar):
		// redelivery or out-of-order bar; already reflected in history
		return nil
	case errors.Is(err, ErrInvalidBar):
		return pkgkafka.Permanent(err)
	default:
		h.recordError("consumer_cycle")
		return err
	}
}

func (h *KafkaCandlesHandler) recordError(kind string) {
	if h.metrics != nil {
		h.metrics.RecordError(kind)
	}
}

var _ pkgkafka.MessageHandler = (*KafkaCandlesHandler)(nil)
