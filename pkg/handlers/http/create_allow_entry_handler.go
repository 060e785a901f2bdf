package http

import (
	"github.com/EdgeWard/WardGate/pkg/domain/audit"
	"github.com/EdgeWard/WardGate/pkg/infra/accesslist"
	"github.com/EdgeWard/WardGate/pkg/infra/auditlogs"
	"github.com/EdgeWard/WardGate/pkg/types"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type createAllowEntryHandler struct {
	logger   *logrus.Logger
	manager  accesslist.Manager
	recorder auditlogs.Recorder
}

func NewCreateAllowEntryHandler(
	logger *logrus.Logger,
	manager accesslist.Manager,
	recorder auditlogs.Recorder,
) Handler {
	return &createAllowEntryHandler{
		logger:   logger,
		manager:  manager,
		recorder: recorder,
	}
}

func (h *createAllowEntryHandler) Handle(c *fiber.Ctx) error {
	var req types.CreateAllowEntryRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	identity, err := parseIdentity(req.Identity)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	// Allow wins over deny: the manager drops any block the identity carries.
	if err := h.manager.Allow(c.Context(), identity); err != nil {
		h.logger.WithFields(logrus.Fields{
			"identity": identity,
			"error":    err.Error(),
		}).Error("failed to create allow entry")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to create allow entry"})
	}

	h.recorder.Record(c.Context(), audit.ActionAllowCreated, identity, "", audit.SourceAdmin, nil)
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"identity": identity})
}
