package models

import "time"

// SymbolQuery selects one engine.
type SymbolQuery struct {
	Symbol    string `query:"symbol" json:"symbol" validate:"required,max=32"`
	Timeframe string `query:"timeframe" json:"timeframe" default:"1m" validate:"oneof=1s 1m 5m 15m 1h 4h 1d"`
}

// ConfluenceRequest asks for a fresh decision from stored history.
type ConfluenceRequest struct {
	SymbolQuery
	Refresh bool `query:"refresh" json:"refresh"`
}

// PredictionsRequest asks for the predictor's forecast.
type PredictionsRequest struct {
	SymbolQuery
	Horizon int `query:"horizon" json:"horizon" default:"5" validate:"gte=1,lte=100"`
}

// TrainRequest triggers a manual training run.
type TrainRequest struct {
	SymbolQuery
	Candles int  `query:"candles" json:"candles" default:"500" validate:"gte=50,lte=20000"`
	Wait    bool `query:"wait" json:"wait"`
}

// OutcomeRequest reports how a past decision played out, scored in [0,1].
type OutcomeRequest struct {
	SymbolQuery
	DecisionID string  `json:"decision_id"`
	Score      float64 `json:"score" validate:"gte=0,lte=1"`
}

// LatestDecisionsRequest lists cached decisions, all configured symbols when
// Symbols is empty.
type LatestDecisionsRequest struct {
	Symbols   []string `query:"symbols" json:"symbols" validate:"max=100,dive,required"`
	Timeframe string   `query:"timeframe" json:"timeframe" default:"1m" validate:"oneof=1s 1m 5m 15m 1h 4h 1d"`
}

// ThresholdsView is the controller's state for one engine.
type ThresholdsView struct {
	Symbol    string                `json:"symbol"`
	Timeframe string                `json:"timeframe"`
	Current   AdaptiveThresholds    `json:"current"`
	Base      AdaptiveThresholds    `json:"base"`
	History   []ThresholdAdjustment `json:"history"`
}

// PredictionsView bundles forecasts and pattern scores.
type PredictionsView struct {
	Symbol      string             `json:"symbol"`
	Timeframe   string             `json:"timeframe"`
	Trained     bool               `json:"trained"`
	TrainedAt   *time.Time         `json:"trained_at,omitempty"`
	Training    bool               `json:"training"`
	Predictions []NKNPrediction    `json:"predictions,omitempty"`
	Patterns    []NKNPatternResult `json:"patterns,omitempty"`
}

// TrainView reports a manual training request.
type TrainView struct {
	Symbol    string      `json:"symbol"`
	Timeframe string      `json:"timeframe"`
	Started   bool        `json:"started"`
	Result    interface{} `json:"result,omitempty"`
}

// PerformanceView reports the fusion's outcome series after a record.
type PerformanceView struct {
	Symbol    string  `json:"symbol"`
	Timeframe string  `json:"timeframe"`
	Average   float64 `json:"average"`
	Samples   int     `json:"samples"`
}
