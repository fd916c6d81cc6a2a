package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-pipeline/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk-pipeline/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health            *handlers.HealthHandler
	Webhook           *handlers.WebhookHandler
	Tickets           *handlers.TicketsHandler
	Sync              *handlers.SyncHandler
	AuthMiddleware    *auth.AuthMiddleware
	WebhookSecretHash string
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	app.Post("/webhooks/helpdesk", auth.RequireWebhookToken(cfg.WebhookSecretHash), cfg.Webhook.Handle)

	api := app.Group("/api/v1", cfg.AuthMiddleware.Handle)
	api.Get("/tickets", auth.RequireScope(auth.ScopeTicketsRead), cfg.Tickets.ListTickets)
	api.Get("/tickets/:ticketNumber", auth.RequireScope(auth.ScopeTicketsRead), cfg.Tickets.GetTicket)
	api.Get("/metrics", auth.RequireScope(auth.ScopeTicketsRead), cfg.Health.Metrics)
	api.Get("/sync", auth.RequireScope(auth.ScopeSyncRun), cfg.Sync.Sync)
}
