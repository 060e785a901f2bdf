package middleware

import (
	"strconv"
	"time"

	"github.com/EdgeWard/WardGate/pkg/admission"
	"github.com/EdgeWard/WardGate/pkg/common"
	"github.com/EdgeWard/WardGate/pkg/infra/prometheus"
	"github.com/EdgeWard/WardGate/pkg/types"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type admissionMiddleware struct {
	logger   *logrus.Logger
	pipeline *admission.Pipeline
}

func NewAdmissionMiddleware(
	logger *logrus.Logger,
	pipeline *admission.Pipeline,
) Middleware {
	return &admissionMiddleware{
		logger:   logger,
		pipeline: pipeline,
	}
}

func (m *admissionMiddleware) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		clientIP := realClientIP(c)
		decision := m.pipeline.Admit(c.Context(), admission.RequestInfo{
			ClientIP:       clientIP,
			Method:         c.Method(),
			Path:           c.Path(),
			UserAgent:      c.Get(fiber.HeaderUserAgent),
			AcceptLanguage: c.Get(fiber.HeaderAcceptLanguage),
			AcceptEncoding: c.Get(fiber.HeaderAcceptEncoding),
			ForwardedFor:   c.Get(fiber.HeaderXForwardedFor),
		})

		prometheus.GuardDecisionTotal.WithLabelValues(decision.Outcome).Inc()
		if decision.AttackMode {
			prometheus.GuardAttackMode.Set(1)
		} else {
			prometheus.GuardAttackMode.Set(0)
		}

		if !decision.Allowed {
			m.logger.WithFields(logrus.Fields{
				"client_ip": clientIP,
				"path":      c.Path(),
				"outcome":   decision.Outcome,
			}).Debug("request rejected")
			writeRateLimitHeaders(c, decision)
			guardErr := &types.GuardError{
				StatusCode: decision.StatusCode,
				Code:       decision.Outcome,
				Message:    decision.Reason,
			}
			return c.Status(guardErr.StatusCode).JSON(fiber.Map{
				"error": guardErr.Error(),
				"code":  guardErr.Code,
			})
		}

		c.Locals(common.ClientIPContextKey, clientIP)
		c.Locals(common.FingerprintIdContextKey, decision.Fingerprint)
		if decision.AttackMode {
			c.Set(common.AttackModeHeader, "active")
		}
		return c.Next()
	}
}

func writeRateLimitHeaders(c *fiber.Ctx, decision admission.Decision) {
	if decision.RetryAfter > 0 {
		c.Set(common.RetryAfterHeader, strconv.FormatInt(int64(decision.RetryAfter/time.Second), 10))
	}
	rl := decision.RateLimit
	if rl == nil {
		return
	}
	c.Set(common.RateLimitLimitHeader, strconv.FormatInt(rl.Limit, 10))
	c.Set(common.RateLimitRemainingHeader, strconv.FormatInt(rl.Remaining, 10))
	c.Set(common.RateLimitResetHeader, strconv.FormatInt((rl.ResetInMs+999)/1000, 10))
}
