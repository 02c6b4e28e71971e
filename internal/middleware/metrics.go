package middleware

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"storefront/internal/metrics"

	"github.com/gofiber/fiber/v2"
)

// Metrics records request count and latency per route template.
func Metrics() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		duration := float64(time.Since(start).Milliseconds())

		status := c.Response().StatusCode()
		if err != nil {
			status = fiber.StatusInternalServerError
			var fe *fiber.Error
			if errors.As(err, &fe) {
				status = fe.Code
			}
		}
		path := c.Route().Path
		if path == "" || path == "/" {
			path = c.Path()
		}

		statusText := http.StatusText(status)
		if statusText == "" {
			statusText = strconv.Itoa(status)
		}
		metrics.HTTPRequests.WithLabelValues(c.Method(), path, statusText).Inc()
		metrics.HTTPDuration.WithLabelValues(c.Method(), path).Observe(duration)
		return err
	}
}
