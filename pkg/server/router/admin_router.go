package router

import (
	handlers "github.com/EdgeWard/WardGate/pkg/handlers/http"
	"github.com/EdgeWard/WardGate/pkg/middleware"
	"github.com/gofiber/fiber/v2"
)

type adminRouter struct {
	middlewareTransport *middleware.Transport
	handlerTransport    handlers.HandlerTransport
}

func NewAdminRouter(
	middlewareTransport *middleware.Transport,
	handlerTransport handlers.HandlerTransport,
) ServerRouter {
	return &adminRouter{
		middlewareTransport: middlewareTransport,
		handlerTransport:    handlerTransport,
	}
}

func (r *adminRouter) BuildRoutes(router *fiber.App) error {
	router.Get("/version", r.handlerTransport.GetVersionHandler.Handle)

	v1 := router.Group("/api/v1")
	{
		if r.middlewareTransport.GetMiddlewares() != nil {
			v1.Use(r.middlewareTransport.GetMiddlewares()...)
		}

		guard := v1.Group("/guard")
		{
			deny := guard.Group("/deny")
			{
				deny.Get("", r.handlerTransport.ListDenyEntriesHandler.Handle)
				deny.Post("", r.handlerTransport.CreateDenyEntryHandler.Handle)
				deny.Delete("/:identity", r.handlerTransport.DeleteDenyEntryHandler.Handle)
			}

			allow := guard.Group("/allow")
			{
				allow.Get("", r.handlerTransport.ListAllowEntriesHandler.Handle)
				allow.Post("", r.handlerTransport.CreateAllowEntryHandler.Handle)
				allow.Delete("/:identity", r.handlerTransport.DeleteAllowEntryHandler.Handle)
			}

			guard.Get("/status", r.handlerTransport.GetGuardStatusHandler.Handle)
			guard.Get("/audit-events", r.handlerTransport.ListAuditEventsHandler.Handle)
		}
	}

	return nil
}
