package server

import (
	"fmt"

	"github.com/EdgeWard/WardGate/pkg/config"
	handlers "github.com/EdgeWard/WardGate/pkg/handlers/http"
	"github.com/EdgeWard/WardGate/pkg/middleware"
	"github.com/EdgeWard/WardGate/pkg/server/router"
	"github.com/sirupsen/logrus"
)

type (
	AdminServerDI struct {
		Config              *config.Config
		Logger              *logrus.Logger
		MiddlewareTransport *middleware.Transport
		HandlerTransport    handlers.HandlerTransport
	}
	// AdminServer exposes the operator management surface: allow/deny list
	// CRUD, guard status and the audit trail.
	AdminServer struct {
		*BaseServer
		middlewareTransport *middleware.Transport
		handlerTransport    handlers.HandlerTransport
	}
)

func NewAdminServer(di AdminServerDI) *AdminServer {
	return &AdminServer{
		BaseServer:          NewBaseServer(di.Config, di.Logger),
		middlewareTransport: di.MiddlewareTransport,
		handlerTransport:    di.HandlerTransport,
	}
}

func (s *AdminServer) Run() error {
	s.setupHealthCheck()
	s.WithRouters(router.NewAdminRouter(s.middlewareTransport, s.handlerTransport))

	addr := fmt.Sprintf("%s:%d", s.Config.Server.Host, s.Config.Server.AdminPort)
	s.Logger.WithField("addr", addr).Info("starting admin server")
	return s.Router.Listen(addr)
}

func (s *AdminServer) Shutdown() error {
	return s.Router.Shutdown()
}
