package middleware

import (
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/eventease/internal/logger"
)

// RequestLogger tags every request with an X-Request-ID (reusing the
// client's when present) and logs one record per request once the handler
// has returned.
func RequestLogger(log *logger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			rid := req.Header.Get(echo.HeaderXRequestID)
			if rid == "" {
				rid = uuid.NewString()
			}
			c.Response().Header().Set(echo.HeaderXRequestID, rid)

			start := time.Now()
			err := next(c)
			if err != nil {
				// let echo's error handler write the response so the status is final
				c.Error(err)
			}

			status := c.Response().Status
			args := []any{
				"request_id", rid,
				"method", req.Method,
				"path", c.Path(),
				"status", status,
				"latency_ms", time.Since(start).Milliseconds(),
				"remote_ip", c.RealIP(),
				"user", userKey(c),
			}
			switch {
			case status >= 500:
				log.ErrorContext(req.Context(), "request", append(args, "error", err)...)
			case status >= 400:
				log.WarnContext(req.Context(), "request", args...)
			default:
				log.InfoContext(req.Context(), "request", args...)
			}
			return nil
		}
	}
}
