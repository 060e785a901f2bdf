package http

import (
	"github.com/EdgeWard/WardGate/pkg/infra/accesslist"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type listDenyEntriesHandler struct {
	logger  *logrus.Logger
	manager accesslist.Manager
}

func NewListDenyEntriesHandler(
	logger *logrus.Logger,
	manager accesslist.Manager,
) Handler {
	return &listDenyEntriesHandler{
		logger:  logger,
		manager: manager,
	}
}

func (h *listDenyEntriesHandler) Handle(c *fiber.Ctx) error {
	entries, err := h.manager.ListDenied(c.Context())
	if err != nil {
		h.logger.WithError(err).Error("failed to list deny entries")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to list deny entries"})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"count":   len(entries),
		"entries": entries,
	})
}
