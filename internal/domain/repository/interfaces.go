package repository

import (
	"context"

	"FinFusion/internal/domain/models"
)

// DecisionPublisher fans decisions out to downstream consumers.
type DecisionPublisher interface {
	Publish(ctx context.Context, d *models.WeightedConfidence) error
}

// DecisionStore keeps an audit trail of decisions.
type DecisionStore interface {
	SaveDecision(ctx context.Context, d *models.WeightedConfidence) error
	LatestDecisions(ctx context.Context, symbol string, tf Timeframe, n int) ([]models.WeightedConfidence, error)
}

type Metrics interface {
	RecordMessageSent(backend, symbol string)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}
