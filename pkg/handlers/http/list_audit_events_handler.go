package http

import (
	"strconv"

	"github.com/EdgeWard/WardGate/pkg/domain/audit"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type listAuditEventsHandler struct {
	logger *logrus.Logger
	repo   audit.Repository
}

// NewListAuditEventsHandler serves the audit trail. repo may be nil when the
// database is disabled; the handler then reports the trail as unavailable.
func NewListAuditEventsHandler(
	logger *logrus.Logger,
	repo audit.Repository,
) Handler {
	return &listAuditEventsHandler{
		logger: logger,
		repo:   repo,
	}
}

func (h *listAuditEventsHandler) Handle(c *fiber.Ctx) error {
	if h.repo == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "audit storage is not configured",
		})
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "limit must be a positive integer"})
		}
		limit = parsed
	}

	events, err := h.repo.List(c.Context(), limit)
	if err != nil {
		h.logger.WithError(err).Error("failed to list audit events")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to list audit events"})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"count":  len(events),
		"events": events,
	})
}
