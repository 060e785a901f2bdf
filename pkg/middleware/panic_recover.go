package middleware

import (
	"fmt"
	"runtime/debug"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/EdgeWard/WardGate/pkg/common"
)

type panicRecoverMiddleware struct {
	logger *logrus.Logger
}

func NewPanicRecoverMiddleware(logger *logrus.Logger) Middleware {
	return &panicRecoverMiddleware{logger: logger}
}

// Middleware converts a panic anywhere down the chain into a 500 in the same
// body shape as admission rejections, so a crashing handler never drops the
// connection or leaks a half-written response past the guard.
func (m *panicRecoverMiddleware) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		defer func() {
			if r := recover(); r != nil {
				fields := logrus.Fields{
					"panic":  fmt.Sprintf("%v", r),
					"method": c.Method(),
					"path":   c.Path(),
					"stack":  string(debug.Stack()),
				}
				if ip, ok := c.Locals(common.ClientIPContextKey).(string); ok {
					fields["client_ip"] = ip
				}
				m.logger.WithFields(fields).Error("panic recovered while serving request")

				// A panic means the handler never finished its response, so
				// the recovered reply replaces whatever was staged.
				_ = c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
					"error": "internal server error",
					"code":  "internal",
				})
			}
		}()

		return c.Next()
	}
}
