package http

import (
	"time"

	"github.com/EdgeWard/WardGate/pkg/infra/accesslist"
	"github.com/EdgeWard/WardGate/pkg/infra/attackmode"
	"github.com/EdgeWard/WardGate/pkg/types"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type getGuardStatusHandler struct {
	logger   *logrus.Logger
	manager  accesslist.Manager
	detector attackmode.Detector
}

func NewGetGuardStatusHandler(
	logger *logrus.Logger,
	manager accesslist.Manager,
	detector attackmode.Detector,
) Handler {
	return &getGuardStatusHandler{
		logger:   logger,
		manager:  manager,
		detector: detector,
	}
}

func (h *getGuardStatusHandler) Handle(c *fiber.Ctx) error {
	state := h.detector.CurrentState(c.Context())

	denied, allowed, err := h.manager.Counts(c.Context())
	if err != nil {
		h.logger.WithError(err).Warn("failed to read access list sizes")
	}

	resp := types.GuardStatusResponse{
		AttackMode:         state.Active,
		RequestsThisMinute: state.RequestCount,
		DenyEntries:        denied,
		AllowEntries:       allowed,
	}
	if state.Active && state.StartedAt != nil {
		resp.AttackModeSince = state.StartedAt
		resp.AttackModeSeconds = int64(time.Since(*state.StartedAt) / time.Second)
	}
	return c.Status(fiber.StatusOK).JSON(resp)
}
