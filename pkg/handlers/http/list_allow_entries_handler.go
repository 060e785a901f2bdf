package http

import (
	"github.com/EdgeWard/WardGate/pkg/infra/accesslist"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type listAllowEntriesHandler struct {
	logger  *logrus.Logger
	manager accesslist.Manager
}

func NewListAllowEntriesHandler(
	logger *logrus.Logger,
	manager accesslist.Manager,
) Handler {
	return &listAllowEntriesHandler{
		logger:  logger,
		manager: manager,
	}
}

func (h *listAllowEntriesHandler) Handle(c *fiber.Ctx) error {
	identities, err := h.manager.ListAllowed(c.Context())
	if err != nil {
		h.logger.WithError(err).Error("failed to list allow entries")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to list allow entries"})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"count":      len(identities),
		"identities": identities,
	})
}
