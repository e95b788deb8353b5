package middleware

import (
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "gitknow_http_requests_total",
	Help: "HTTP requests served, by method and status code.",
}, []string{"method", "status"})

// RequestMetrics counts every request and logs server errors.
func RequestMetrics() fiber.Handler {
	return func(c fiber.Ctx) error {
		start := time.Now()

		// Capture request data before the handler runs; fiber reuses context objects.
		method := c.Method()
		path := c.Path()

		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			var fe *fiber.Error
			if errors.As(err, &fe) {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}
		httpRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()

		if status >= fiber.StatusInternalServerError {
			userID := "anonymous"
			if uc := GetUserContext(c); uc != nil {
				userID = uc.UserID
			}
			slog.Error("request failed", "method", method, "path", path, "status", status,
				"user_id", userID, "duration_ms", time.Since(start).Milliseconds(), "error", err)
		}
		return err
	}
}
