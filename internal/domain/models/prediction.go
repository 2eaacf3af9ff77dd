package models

import "time"

// Direction of a forecast move.
type Direction string

const (
	DirectionUp       Direction = "up"
	DirectionDown     Direction = "down"
	DirectionSideways Direction = "sideways"
)

// PatternType is a chart pattern the predictor scores.
type PatternType string

const (
	PatternDoubleBottom       PatternType = "double_bottom"
	PatternDoubleTop          PatternType = "double_top"
	PatternHeadShoulders      PatternType = "head_and_shoulders"
	PatternInvHeadShoulders   PatternType = "inverse_head_and_shoulders"
	PatternBullFlag           PatternType = "bull_flag"
	PatternBearFlag           PatternType = "bear_flag"
	PatternAscendingTriangle  PatternType = "ascending_triangle"
	PatternDescendingTriangle PatternType = "descending_triangle"
)

// PatternTypes is the fixed tag order used by the network's one-hot input.
var PatternTypes = []PatternType{
	PatternDoubleBottom,
	PatternDoubleTop,
	PatternHeadShoulders,
	PatternInvHeadShoulders,
	PatternBullFlag,
	PatternBearFlag,
	PatternAscendingTriangle,
	PatternDescendingTriangle,
}

// Bullish reports whether the pattern implies an upward resolution.
func (p PatternType) Bullish() bool {
	switch p {
	case PatternDoubleBottom, PatternInvHeadShoulders, PatternBullFlag, PatternAscendingTriangle:
		return true
	}
	return false
}

// NKNPrediction is the forecast for one horizon step.
type NKNPrediction struct {
	Horizon        int       `json:"horizon"`
	PredictedPrice float64   `json:"predicted_price"`
	Probability    float64   `json:"probability"`
	Confidence     float64   `json:"confidence"`
	Direction      Direction `json:"direction"`
	Timestamp      time.Time `json:"timestamp"`
}

type NKNPatternResult struct {
	Pattern      PatternType `json:"pattern"`
	Probability  float64     `json:"probability"`
	Direction    Direction   `json:"direction"`
	Confidence   float64     `json:"confidence"`
	ExpectedMove float64     `json:"expected_move"`
}

// LayerState is one dense layer of a committed network.
type LayerState struct {
	Weights    [][]float64 `json:"weights"` // [out][in]
	Biases     []float64   `json:"biases"`
	Activation string      `json:"activation"`
}

// NetworkState is a committed snapshot of the predictor's network.
type NetworkState struct {
	Layers          []LayerState `json:"layers"`
	TrainingEpochs  int          `json:"training_epochs"`
	LastError       float64      `json:"last_error"`
	ValidationError float64      `json:"validation_error"`
	ConvergenceRate float64      `json:"convergence_rate"`
	TrainedAt       time.Time    `json:"trained_at"`
}
