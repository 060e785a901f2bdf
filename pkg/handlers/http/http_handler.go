package http

import "github.com/gofiber/fiber/v2"

type Handler interface {
	Handle(ctx *fiber.Ctx) error
}

type HandlerTransport struct {
	// Guard
	ForwardedHandler Handler

	// Deny list
	ListDenyEntriesHandler Handler
	CreateDenyEntryHandler Handler
	DeleteDenyEntryHandler Handler

	// Allow list
	ListAllowEntriesHandler Handler
	CreateAllowEntryHandler Handler
	DeleteAllowEntryHandler Handler

	// Status
	GetGuardStatusHandler  Handler
	ListAuditEventsHandler Handler
	GetVersionHandler      Handler
}
