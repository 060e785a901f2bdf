package http

import (
	"time"

	"github.com/EdgeWard/WardGate/pkg/domain/audit"
	"github.com/EdgeWard/WardGate/pkg/infra/accesslist"
	"github.com/EdgeWard/WardGate/pkg/infra/auditlogs"
	"github.com/EdgeWard/WardGate/pkg/types"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type createDenyEntryHandler struct {
	logger   *logrus.Logger
	manager  accesslist.Manager
	recorder auditlogs.Recorder
}

func NewCreateDenyEntryHandler(
	logger *logrus.Logger,
	manager accesslist.Manager,
	recorder auditlogs.Recorder,
) Handler {
	return &createDenyEntryHandler{
		logger:   logger,
		manager:  manager,
		recorder: recorder,
	}
}

func (h *createDenyEntryHandler) Handle(c *fiber.Ctx) error {
	var req types.CreateDenyEntryRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	identity, err := parseIdentity(req.Identity)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if req.DurationSeconds < 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "duration_seconds cannot be negative"})
	}
	reason := req.Reason
	if reason == "" {
		reason = "manually denied"
	}

	// Zero duration selects the configured default ban length.
	duration := time.Duration(req.DurationSeconds) * time.Second
	applied, err := h.manager.Deny(c.Context(), identity, reason, duration)
	if err != nil {
		h.logger.WithFields(logrus.Fields{
			"identity": identity,
			"error":    err.Error(),
		}).Error("failed to create deny entry")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to create deny entry"})
	}
	if !applied {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error":    "identity is allow-listed, deny not applied",
			"identity": identity,
		})
	}

	h.recorder.Record(c.Context(), audit.ActionDenyCreated, identity, reason, audit.SourceAdmin, nil)

	entry, err := h.manager.GetDenyEntry(c.Context(), identity)
	if err != nil || entry == nil {
		// The write succeeded; answer without the metadata read-back.
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"identity": identity, "reason": reason})
	}
	return c.Status(fiber.StatusCreated).JSON(entry)
}
