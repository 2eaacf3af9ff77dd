package repository

import (
	"context"
	"time"

	"FinFusion/internal/domain/models"
)

// FeatureStore provides read access to stored bars for warmup and training.
// All slices come back oldest first.
type FeatureStore interface {
	GetCandles(ctx context.Context, symbol string, from, to time.Time, tf Timeframe) ([]models.Candle, error)
	GetLatestNCandles(ctx context.Context, symbol string, n int, tf Timeframe) ([]models.Candle, error)
	GetLatestNSamples(ctx context.Context, symbol string, n int, tf Timeframe) ([]models.IndicatorSample, error)
}

// BarWriter persists ingested bars so history survives restarts.
type BarWriter interface {
	AppendBar(ctx context.Context, bar models.Bar) error
}
