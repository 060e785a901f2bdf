package http

import (
	"net/http"

	"github.com/EdgeWard/WardGate/pkg/domain/audit"
	"github.com/EdgeWard/WardGate/pkg/infra/accesslist"
	"github.com/EdgeWard/WardGate/pkg/infra/auditlogs"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type deleteAllowEntryHandler struct {
	logger   *logrus.Logger
	manager  accesslist.Manager
	recorder auditlogs.Recorder
}

func NewDeleteAllowEntryHandler(
	logger *logrus.Logger,
	manager accesslist.Manager,
	recorder auditlogs.Recorder,
) Handler {
	return &deleteAllowEntryHandler{
		logger:   logger,
		manager:  manager,
		recorder: recorder,
	}
}

func (h *deleteAllowEntryHandler) Handle(c *fiber.Ctx) error {
	identity, err := parseIdentity(c.Params("identity"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	// Removing an always-allow identity is a no-op inside the manager; the
	// local set is immutable at runtime.
	if err := h.manager.Unallow(c.Context(), identity); err != nil {
		h.logger.WithFields(logrus.Fields{
			"identity": identity,
			"error":    err.Error(),
		}).Error("failed to remove allow entry")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to remove allow entry"})
	}

	h.recorder.Record(c.Context(), audit.ActionAllowRemoved, identity, "", audit.SourceAdmin, nil)
	return c.SendStatus(http.StatusNoContent)
}
