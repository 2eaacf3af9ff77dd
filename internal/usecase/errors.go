package usecase

import "errors"

var (
	ErrInvalidBar         = errors.New("invalid bar")
	ErrStaleBar           = errors.New("bar not newer than stored history")
	ErrNotTracked         = errors.New("symbol/timeframe not tracked")
	ErrThrottled          = errors.New("training rate limit exceeded")
	ErrTrainingInProgress = errors.New("training already in progress")
)
