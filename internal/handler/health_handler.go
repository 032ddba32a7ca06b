package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/verdictlabs/verdict-api/internal/config"
	"github.com/verdictlabs/verdict-api/internal/service"
	"github.com/verdictlabs/verdict-api/internal/utils"
)

// HealthResponse represents the payload returned by the health endpoint.
type HealthResponse struct {
	Status         string    `json:"status"`
	Timestamp      time.Time `json:"timestamp"`
	Service        string    `json:"service"`
	Environment    string    `json:"environment"`
	UptimeSeconds  float64   `json:"uptime_seconds"`
	ActiveSessions int       `json:"active_sessions"`
	ConnectedUsers int       `json:"connected_users"`
	Agents         []string  `json:"agents"`
}

// HealthCheck returns a handler that reports application health information.
func HealthCheck(cfg config.Config, sessions service.SessionService, agents []string, startedAt time.Time) fiber.Handler {
	return func(c *fiber.Ctx) error {
		activeSessions, connectedUsers := sessions.Counts()

		payload := HealthResponse{
			Status:         "ok",
			Timestamp:      time.Now().UTC(),
			Service:        cfg.AppName,
			Environment:    cfg.AppEnv,
			UptimeSeconds:  time.Since(startedAt).Seconds(),
			ActiveSessions: activeSessions,
			ConnectedUsers: connectedUsers,
			Agents:         agents,
		}

		return utils.SendSuccess(c, "service healthy", payload)
	}
}
