package http

import (
	"strings"

	"github.com/EdgeWard/WardGate/pkg/infra/prometheus"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/proxy"
	"github.com/sirupsen/logrus"
)

// forwardedHandler relays admitted requests to the protected upstream. It
// runs after every admission check, so everything arriving here has already
// been admitted.
type forwardedHandler struct {
	logger *logrus.Logger
	target string
}

func NewForwardedHandler(logger *logrus.Logger, target string) Handler {
	return &forwardedHandler{
		logger: logger,
		target: strings.TrimRight(target, "/"),
	}
}

func (h *forwardedHandler) Handle(c *fiber.Ctx) error {
	url := h.target + c.OriginalURL()
	if err := proxy.Do(c, url); err != nil {
		prometheus.GuardUpstreamErrorsTotal.Inc()
		h.logger.WithFields(logrus.Fields{
			"method": c.Method(),
			"path":   c.Path(),
			"error":  err.Error(),
		}).Error("upstream request failed")
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "upstream unavailable"})
	}
	c.Response().Header.Del(fiber.HeaderServer)
	return nil
}
