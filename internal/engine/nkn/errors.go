package nkn

import "errors"

// ErrInsufficientData is returned when fewer candles than TrainingPeriod are supplied.
var ErrInsufficientData = errors.New("nkn: insufficient data")
