package middleware

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

const outcomeKey = "envelope_status"

// SetOutcome records the status written into the response envelope.
func SetOutcome(c echo.Context, status int) { c.Set(outcomeKey, status) }

// Outcome is the status a request ended with. API answers are sent with
// HTTP 200, so the envelope status wins over the transport code; errors
// returned past the handlers map to their echo status.
func Outcome(c echo.Context, err error) int {
	if s, ok := c.Get(outcomeKey).(int); ok {
		return s
	}
	if err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return he.Code
		}
		return http.StatusInternalServerError
	}
	if s := c.Response().Status; s != 0 {
		return s
	}
	return http.StatusOK
}
