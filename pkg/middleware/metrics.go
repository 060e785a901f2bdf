package middleware

import (
	"fmt"
	"strconv"
	"time"

	"github.com/EdgeWard/WardGate/pkg/infra/prometheus"
	"github.com/gofiber/fiber/v2"
)

type metricsMiddleware struct{}

func NewMetricsMiddleware() Middleware {
	return &metricsMiddleware{}
}

func (m *metricsMiddleware) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if prometheus.Config.EnableConnections {
			prometheus.GuardConnections.WithLabelValues("active").Inc()
			defer prometheus.GuardConnections.WithLabelValues("active").Dec()
		}

		start := time.Now()
		err := c.Next()

		statusCode := c.Response().StatusCode()
		prometheus.GuardRequestTotal.WithLabelValues(
			c.Method(),
			m.getStatusClass(strconv.Itoa(statusCode)),
		).Inc()

		if prometheus.Config.EnableLatency {
			elapsedMs := float64(time.Since(start).Nanoseconds()) / 1e6
			prometheus.GuardRequestLatency.WithLabelValues("total").Observe(elapsedMs)
		}

		return err
	}
}

func (m *metricsMiddleware) getStatusClass(status string) string {
	code, err := strconv.Atoi(status)
	if err != nil {
		return "5xx" // Return server error class if status code is invalid
	}
	return fmt.Sprintf("%dxx", code/100)
}
