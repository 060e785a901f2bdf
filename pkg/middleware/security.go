package middleware

import (
	"strconv"

	"github.com/EdgeWard/WardGate/pkg/config"
	"github.com/gofiber/fiber/v2"
)

type securityMiddleware struct {
	cfg config.SecurityConfig
}

func NewSecurityMiddleware(cfg config.SecurityConfig) Middleware {
	return &securityMiddleware{
		cfg: cfg,
	}
}

func (m *securityMiddleware) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		cfg := m.cfg

		// Strict-Transport-Security only makes sense over TLS
		if cfg.STSSeconds > 0 && c.Protocol() == "https" {
			h := "max-age=" + strconv.Itoa(cfg.STSSeconds)
			if cfg.STSIncludeSubdomains {
				h += "; includeSubDomains"
			}
			c.Set("Strict-Transport-Security", h)
		}

		if cfg.FrameDeny {
			c.Set("X-Frame-Options", "DENY")
		}

		if cfg.ContentTypeNosniff {
			c.Set("X-Content-Type-Options", "nosniff")
		}

		if cfg.BrowserXSSFilter {
			c.Set("X-XSS-Protection", "1; mode=block")
		}

		if cfg.ReferrerPolicy != "" {
			c.Set("Referrer-Policy", cfg.ReferrerPolicy)
		}

		if cfg.ContentSecurityPolicy != "" {
			c.Set("Content-Security-Policy", cfg.ContentSecurityPolicy)
		}

		return c.Next()
	}
}
