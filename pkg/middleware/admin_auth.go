package middleware

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/EdgeWard/WardGate/pkg/infra/jwt"
)

const (
	authorizationHeader = "Authorization"
	bearerPrefix        = "Bearer "

	unauthorizedCode = "unauthorized"
)

// adminAuthMiddleware gates the management surface. Tokens must be bearer
// JWTs signed with the shared secret and carrying the admin subject; every
// rejection uses the same body shape as admission rejections.
type adminAuthMiddleware struct {
	logger     *logrus.Logger
	jwtManager jwt.Manager
}

func NewAdminAuthMiddleware(
	logger *logrus.Logger,
	jwtManager jwt.Manager,
) Middleware {
	return &adminAuthMiddleware{
		logger:     logger,
		jwtManager: jwtManager,
	}
}

func (m *adminAuthMiddleware) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(authorizationHeader)
		token := strings.TrimPrefix(header, bearerPrefix)
		if header == "" || token == header || token == "" {
			m.logger.WithField("path", c.Path()).Debug("management request without bearer token")
			return unauthorized(c, "authorization required")
		}

		if err := m.jwtManager.ValidateToken(token); err != nil {
			m.logger.WithFields(logrus.Fields{
				"path":  c.Path(),
				"error": err.Error(),
			}).Debug("management token rejected")

			switch {
			case errors.Is(err, jwt.ErrExpiredToken):
				return unauthorized(c, "token expired")
			case errors.Is(err, jwt.ErrWrongSubject):
				return unauthorized(c, "token subject is not authorized")
			default:
				return unauthorized(c, "invalid token")
			}
		}

		return c.Next()
	}
}

func unauthorized(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"error": message,
		"code":  unauthorizedCode,
	})
}
