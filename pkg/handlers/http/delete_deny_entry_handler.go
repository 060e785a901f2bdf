package http

import (
	"net/http"

	"github.com/EdgeWard/WardGate/pkg/domain/audit"
	"github.com/EdgeWard/WardGate/pkg/infra/accesslist"
	"github.com/EdgeWard/WardGate/pkg/infra/auditlogs"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type deleteDenyEntryHandler struct {
	logger   *logrus.Logger
	manager  accesslist.Manager
	recorder auditlogs.Recorder
}

func NewDeleteDenyEntryHandler(
	logger *logrus.Logger,
	manager accesslist.Manager,
	recorder auditlogs.Recorder,
) Handler {
	return &deleteDenyEntryHandler{
		logger:   logger,
		manager:  manager,
		recorder: recorder,
	}
}

func (h *deleteDenyEntryHandler) Handle(c *fiber.Ctx) error {
	identity, err := parseIdentity(c.Params("identity"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	if err := h.manager.Undeny(c.Context(), identity); err != nil {
		h.logger.WithFields(logrus.Fields{
			"identity": identity,
			"error":    err.Error(),
		}).Error("failed to remove deny entry")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to remove deny entry"})
	}

	h.recorder.Record(c.Context(), audit.ActionDenyRemoved, identity, "", audit.SourceAdmin, nil)
	return c.SendStatus(http.StatusNoContent)
}
