package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-inbox/internal/api/http/handlers"
	"github.com/spec-kit/support-inbox/internal/auth"
	"github.com/spec-kit/support-inbox/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Tickets        *handlers.TicketsHandler
	Messages       *handlers.MessagesHandler
	Channel        *handlers.ChannelHandler
	Realtime       *handlers.RealtimeHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	// Provider webhooks authenticate with the verify token, not a JWT.
	app.Get("/channels/whatsapp/webhook", cfg.Channel.Verify)
	app.Post("/channels/whatsapp/webhook", cfg.Channel.Receive)

	app.Get("/realtime", cfg.Realtime.Upgrade, cfg.Realtime.Stream())

	staff := app.Group("/tickets", cfg.AuthMiddleware.Handle,
		auth.RequireRole(domain.RoleAgent, domain.RoleAdmin))
	staff.Get("", cfg.Tickets.List)
	staff.Post("/messages", cfg.Messages.Append)
	staff.Get("/:id", cfg.Tickets.Get)
	staff.Post("/:id/transfer", cfg.Tickets.Transfer)
	staff.Patch("/:id/summary", cfg.Tickets.UpdateSummary)
	staff.Get("/:id/messages", cfg.Messages.ListByTicket)
}
