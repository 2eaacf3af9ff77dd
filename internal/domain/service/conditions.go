package service

import "FinFusion/internal/domain/models"

// ConditionsDeriver estimates market conditions from candles when the
// upstream pipeline supplied none.
type ConditionsDeriver interface {
	Derive(timeframe string, candles []models.Candle) models.MarketConditions
}
