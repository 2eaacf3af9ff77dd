package http

import (
	"fmt"
	"net/http"
)

// AppError is a failure the API reports inside the envelope. Status is
// the envelope status; Err stays server side.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Err }

// NotFoundError reports a symbol or timeframe no engine tracks.
func NotFoundError(message string) *AppError {
	return &AppError{Code: "ERR_NOT_FOUND", Message: message, Status: http.StatusNotFound}
}

// ConflictError reports a training run already holding the lock.
func ConflictError(message string) *AppError {
	return &AppError{Code: "ERR_CONFLICT", Message: message, Status: http.StatusConflict}
}

// TooManyRequestsError reports an exhausted training budget.
func TooManyRequestsError(message string) *AppError {
	return &AppError{Code: "ERR_RATE_LIMITED", Message: message, Status: http.StatusTooManyRequests}
}

func TimeoutError(cause error) *AppError {
	return &AppError{Code: "ERR_TIMEOUT", Message: "request timed out", Status: http.StatusGatewayTimeout, Err: cause}
}

func InternalError(cause error) *AppError {
	return &AppError{Code: "ERR_INTERNAL", Message: "Something went wrong", Status: http.StatusInternalServerError, Err: cause}
}
