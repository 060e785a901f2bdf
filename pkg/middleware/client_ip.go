package middleware

import (
	"net"
	"strings"

	"github.com/EdgeWard/WardGate/pkg/common"
	"github.com/gofiber/fiber/v2"
)

// ipHeaders are checked in order; the first header carrying a parseable
// address wins, taking the first hop of a comma-separated chain.
var ipHeaders = []string{
	common.XRealIPHeader,
	common.XForwardedForHeader,
	common.TrueClientIPHeader,
	common.CFConnectingIPHeader,
}

func realClientIP(ctx *fiber.Ctx) string {
	for _, header := range ipHeaders {
		if value := ctx.Get(header); value != "" {
			ips := strings.Split(value, ",")
			if len(ips) > 0 {
				ip := strings.TrimSpace(ips[0])
				if parsedIP := net.ParseIP(ip); parsedIP != nil {
					return ip
				}
			}
		}
	}
	return strings.TrimSpace(ctx.IP())
}
