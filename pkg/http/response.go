package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"FinFusion/pkg/http/middleware"
)

// Envelope is the body of every API response. The HTTP status is always
// 200; Status carries the outcome.
type Envelope struct {
	Status  int         `json:"status" example:"200"`
	Message string      `json:"message" example:"OK"`
	Data    interface{} `json:"data,omitempty"`
}

// ValidationError describes one rejected request field.
type ValidationError struct {
	Code    string                 `json:"code,omitempty" example:"ERR_REQUIRED"`
	Field   string                 `json:"field,omitempty" example:"symbol"`
	Message string                 `json:"message,omitempty" example:"symbol is required"`
	Params  map[string]interface{} `json:"params,omitempty"`
}

// Rows wraps a list result with its size.
type Rows[T any] struct {
	Rows  []T `json:"rows"`
	Total int `json:"total"`
}

func Respond(c echo.Context, status int, data interface{}) error {
	middleware.SetOutcome(c, status)
	return c.JSON(http.StatusOK, Envelope{
		Status:  status,
		Message: http.StatusText(status),
		Data:    data,
	})
}

func OK(c echo.Context, data interface{}) error { return Respond(c, http.StatusOK, data) }

// Accepted answers a request whose work continues in the background.
func Accepted(c echo.Context, data interface{}) error {
	return Respond(c, http.StatusAccepted, data)
}

func Invalid(c echo.Context, errs []ValidationError) error {
	return Respond(c, http.StatusBadRequest, errs)
}

// List answers with every row and the row count. A nil slice is sent as [].
func List[T any](c echo.Context, rows []T) error {
	if rows == nil {
		rows = []T{}
	}
	return OK(c, Rows[T]{Rows: rows, Total: len(rows)})
}

// Fail reports err in the envelope. Errors that are not an *AppError are
// reported as internal without their detail.
func Fail(c echo.Context, err error) error {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		appErr = InternalError(err)
	}
	return Respond(c, appErr.Status, []*AppError{appErr})
}
