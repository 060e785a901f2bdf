package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/EdgeWard/WardGate/pkg/config"
	handlers "github.com/EdgeWard/WardGate/pkg/handlers/http"
	"github.com/EdgeWard/WardGate/pkg/infra/prometheus"
	"github.com/EdgeWard/WardGate/pkg/middleware"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type (
	GuardServerDI struct {
		Config              *config.Config
		Logger              *logrus.Logger
		MiddlewareTransport *middleware.Transport
		HandlerTransport    handlers.HandlerTransport
	}
	// GuardServer fronts the protected upstream: every request passes the
	// admission middleware before being forwarded.
	GuardServer struct {
		*BaseServer
		middlewareTransport *middleware.Transport
		handlerTransport    handlers.HandlerTransport
	}
)

const (
	HealthPath = "/health"
	PingPath   = "/__/ping"
)

func NewGuardServer(di GuardServerDI) *GuardServer {
	prometheus.Initialize(prometheus.MetricsConfig{
		EnableLatency:     di.Config.Metrics.EnableLatency,
		EnableConnections: false,
	})

	s := &GuardServer{
		BaseServer:          NewBaseServer(di.Config, di.Logger),
		middlewareTransport: di.MiddlewareTransport,
		handlerTransport:    di.HandlerTransport,
	}

	s.BaseServer.setupMetricsEndpoint()
	return s
}

func (s *GuardServer) Run() error {
	s.Router.Get(HealthPath, func(ctx *fiber.Ctx) error {
		return ctx.Status(http.StatusOK).JSON(fiber.Map{
			"status": "ok",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	s.Router.Get(PingPath, func(ctx *fiber.Ctx) error {
		return ctx.Status(http.StatusOK).JSON(fiber.Map{
			"message": "pong",
		})
	})

	// Everything that is not a system route goes through the admission
	// chain and, if admitted, on to the upstream.
	chain := append(
		s.middlewareTransport.GetMiddlewares(),
		s.handlerTransport.ForwardedHandler.Handle,
	)
	s.Router.Use(chain...)

	addr := fmt.Sprintf("%s:%d", s.Config.Server.Host, s.Config.Server.Port)
	s.Logger.WithField("addr", addr).Info("starting guard server")
	return s.Router.Listen(addr)
}

func (s *GuardServer) Shutdown() error {
	return s.Router.Shutdown()
}
