package router

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/verdictlabs/verdict-api/internal/config"
	"github.com/verdictlabs/verdict-api/internal/handler"
	"github.com/verdictlabs/verdict-api/internal/middleware"
	"github.com/verdictlabs/verdict-api/internal/service"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	SessionHandler *handler.SessionHandler
	AdminHandler   *handler.AdminHandler
	Sessions       service.SessionService
	AgentNames     []string
	StartedAt      time.Time
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	// Common v1 group for health & headers
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.Sessions, deps.AgentNames, deps.StartedAt))

	// Collaborative validation sessions
	if deps.SessionHandler != nil {
		sessions := app.Group("/api/v1/sessions",
			middleware.RateLimit("sessions", 30, time.Minute))
		deps.SessionHandler.Register(sessions)
	}

	// Operational views
	if deps.AdminHandler != nil {
		admin := app.Group("/api/v1/admin")
		deps.AdminHandler.Register(admin)
	}
}
