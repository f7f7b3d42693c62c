package middleware

import (
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v3"
)

// RequestRecorder defines how served requests are recorded.
type RequestRecorder interface {
	RecordRequest(method, path string, status int, d time.Duration)
}

// MetricsMiddleware records every request with its route pattern, so
// path parameters do not explode label cardinality.
func MetricsMiddleware(recorder RequestRecorder) fiber.Handler {
	return func(c fiber.Ctx) error {
		start := time.Now()

		// Capture request data BEFORE handler execution (Fiber reuses context objects)
		method := c.Method()

		err := c.Next()

		// Unmatched requests only ever reach this middleware's own route.
		path := c.Route().Path
		if path == "" || (path == "/" && c.Path() != "/") {
			path = "unmatched"
		}
		status := c.Response().StatusCode()
		if err != nil {
			var fe *fiber.Error
			if errors.As(err, &fe) {
				status = fe.Code
			} else if status < fiber.StatusBadRequest {
				status = fiber.StatusInternalServerError
			}
		}

		d := time.Since(start)
		recorder.RecordRequest(method, path, status, d)
		slog.Debug("http request", "method", method, "path", path, "status", status, "duration_ms", d.Milliseconds())
		return err
	}
}
