package middleware

import (
	"time"

	"github.com/labstack/echo/v4"

	applogger "FinFusion/pkg/logger"
)

// RequestLogging logs one entry per request at a level picked from the
// envelope status: server failures as errors, rejected requests as
// warnings, the rest at debug.
func RequestLogging(l *applogger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			status := Outcome(c, err)

			req := c.Request()
			fields := []applogger.Field{
				applogger.String("method", req.Method),
				applogger.String("route", c.Path()),
				applogger.String("query", req.URL.RawQuery),
				applogger.Int("status", status),
				applogger.Duration("duration_ms", time.Since(start)),
			}
			if err != nil {
				fields = append(fields, applogger.Error(err))
			}
			switch {
			case status >= 500:
				l.Error("api request", fields...)
			case status >= 400:
				l.Warn("api request", fields...)
			default:
				l.Debug("api request", fields...)
			}
			return err
		}
	}
}
