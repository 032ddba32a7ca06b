package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/verdictlabs/verdict-api/internal/dto"
	"github.com/verdictlabs/verdict-api/internal/service"
	"github.com/verdictlabs/verdict-api/internal/utils"
)

// AdminHandler exposes read-only operational views over live sessions.
type AdminHandler struct {
	sessions service.SessionService
	logger   zerolog.Logger
}

// NewAdminHandler creates an admin handler instance.
func NewAdminHandler(sessions service.SessionService, logger zerolog.Logger) *AdminHandler {
	return &AdminHandler{
		sessions: sessions,
		logger:   logger.With().Str("component", "admin_handler").Logger(),
	}
}

// Register binds admin routes under the provided router group.
func (h *AdminHandler) Register(router fiber.Router) {
	router.Get("/sessions", h.listSessions)
	router.Get("/sessions/:id", h.sessionDetail)
}

func (h *AdminHandler) listSessions(c *fiber.Ctx) error {
	summaries := h.sessions.Summaries()
	return utils.SendSuccess(c, "active sessions", summaries)
}

func (h *AdminHandler) sessionDetail(c *fiber.Ctx) error {
	sessionID := c.Params("id")

	session, err := h.sessions.Snapshot(sessionID)
	if err != nil {
		if errors.Is(err, service.ErrSessionNotFound) {
			return utils.SendError(c, fiber.StatusNotFound, "session not found")
		}
		h.logger.Error().Err(err).Str("session_id", sessionID).Msg("failed to load session snapshot")
		return utils.SendError(c, fiber.StatusInternalServerError, err.Error())
	}

	return utils.SendSuccess(c, "session detail", dto.NewSessionSnapshotResponse(session))
}
