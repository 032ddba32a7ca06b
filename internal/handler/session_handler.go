package handler

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/verdictlabs/verdict-api/internal/dto"
	"github.com/verdictlabs/verdict-api/internal/middleware"
	"github.com/verdictlabs/verdict-api/internal/service"
	"github.com/verdictlabs/verdict-api/internal/utils"
)

// Client-to-server message names.
const (
	actionJoinSession = "join-session"
	actionSubmitCode  = "submit-code"
	actionTyping      = "typing"
	actionLeave       = "leave-session"
)

const submitCodeSchema = `{
	"type": "object",
	"required": ["code", "validation_type"],
	"properties": {
		"code": {"type": "string", "minLength": 1},
		"validation_type": {
			"type": "string",
			"enum": ["general_validation", "crypto_audit", "betting_algorithm", "security_testing"]
		},
		"language": {"type": "string"},
		"heightened_scrutiny": {"type": "boolean"},
		"request_report_delivery": {"type": "boolean"}
	}
}`

// clientMessage is the envelope clients send over the websocket.
type clientMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// SessionHandler wires the collaborative session websocket endpoint.
type SessionHandler struct {
	sessions     service.SessionService
	validations  service.ValidationService
	validator    *validator.Validate
	submitSchema *jsonschema.Schema
	logger       zerolog.Logger
}

// NewSessionHandler creates a session handler instance.
func NewSessionHandler(sessions service.SessionService, validations service.ValidationService, validate *validator.Validate, logger zerolog.Logger) *SessionHandler {
	return &SessionHandler{
		sessions:     sessions,
		validations:  validations,
		validator:    validate,
		submitSchema: jsonschema.MustCompileString("submit-code.json", submitCodeSchema),
		logger:       logger.With().Str("component", "session_handler").Logger(),
	}
}

// Register binds session routes under the provided router group.
func (h *SessionHandler) Register(router fiber.Router) {
	router.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			ctx := c.UserContext()
			if ctx == nil {
				ctx = context.Background()
			}
			ctx = middleware.ContextWithCorrelation(ctx, middleware.GetCorrelationID(c))
			c.Locals("request_ctx", ctx)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	router.Get("/ws", websocket.New(h.handleConnection))
	router.Get("/:id", h.snapshot)
}

// connState tracks what one websocket connection has joined.
type connState struct {
	sessionID string
	username  string
}

func (h *SessionHandler) handleConnection(conn *websocket.Conn) {
	baseCtx, _ := conn.Locals("request_ctx").(context.Context)
	if baseCtx == nil {
		baseCtx = context.Background()
	}

	client := h.sessions.Connect()
	defer client.Close()

	h.logger.Info().Str("conn_id", client.ConnID()).Msg("session websocket connected")

	go h.writer(conn, client)
	h.reader(baseCtx, conn, client)

	h.logger.Info().Str("conn_id", client.ConnID()).Msg("session websocket disconnected")
}

func (h *SessionHandler) writer(conn *websocket.Conn, client *service.Client) {
	for {
		select {
		case event := <-client.Events():
			if err := conn.WriteJSON(event); err != nil {
				h.logger.Debug().Err(err).Msg("session write loop terminated")
				_ = conn.Close()
				return
			}
		case <-time.After(30 * time.Second):
			if err := conn.WriteMessage(websocket.PingMessage, []byte("keepalive")); err != nil {
				h.logger.Debug().Err(err).Msg("session ping failed")
				_ = conn.Close()
				return
			}
		case <-client.Done():
			return
		}
	}
}

func (h *SessionHandler) reader(ctx context.Context, conn *websocket.Conn, client *service.Client) {
	state := &connState{}

	for {
		var message clientMessage
		if err := conn.ReadJSON(&message); err != nil {
			h.logger.Debug().Err(err).Msg("session read loop ended")
			return
		}

		switch message.Event {
		case actionJoinSession:
			h.handleJoin(client, state, message.Data)
		case actionSubmitCode:
			h.handleSubmit(ctx, client, state, message.Data)
		case actionTyping:
			h.handleTyping(client, state, message.Data)
		case actionLeave:
			return
		default:
			h.enqueueError(client, state.sessionID, "", "unknown event "+message.Event)
		}
	}
}

func (h *SessionHandler) handleJoin(client *service.Client, state *connState, data json.RawMessage) {
	var req dto.JoinSessionRequest
	if err := json.Unmarshal(data, &req); err != nil {
		h.enqueueError(client, "", "", "invalid join payload")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		h.enqueueError(client, "", "", err.Error())
		return
	}

	snapshot, err := h.sessions.Join(client, req)
	if err != nil {
		if errors.Is(err, service.ErrAlreadyJoined) {
			h.enqueueError(client, state.sessionID, "", "already joined a session")
			return
		}
		h.enqueueError(client, "", "", err.Error())
		return
	}

	// The registry already queued the session-state snapshot as the client's
	// first event, ahead of any concurrent broadcast.
	state.sessionID = snapshot.SessionID
	state.username = req.Username
}

func (h *SessionHandler) handleSubmit(ctx context.Context, client *service.Client, state *connState, data json.RawMessage) {
	if state.sessionID == "" {
		h.enqueueError(client, "", "", "join a session before submitting code")
		return
	}

	var generic interface{}
	if err := json.Unmarshal(data, &generic); err != nil {
		h.enqueueError(client, state.sessionID, "", "invalid submit payload")
		return
	}
	if err := h.submitSchema.Validate(generic); err != nil {
		h.enqueueError(client, state.sessionID, "", "submit payload failed schema validation")
		return
	}

	var req dto.SubmitCodeRequest
	if err := json.Unmarshal(data, &req); err != nil {
		h.enqueueError(client, state.sessionID, "", "invalid submit payload")
		return
	}

	submission, err := h.validations.Submit(ctx, state.sessionID, client.ConnID(), req)
	if err != nil {
		h.logger.Warn().
			Err(err).
			Str("session_id", state.sessionID).
			Str("conn_id", client.ConnID()).
			Msg("submission rejected")
		h.enqueueError(client, state.sessionID, "", err.Error())
		return
	}

	h.logger.Info().
		Str("session_id", state.sessionID).
		Str("submission_id", submission.ID).
		Str("validation_type", string(submission.ValidationType)).
		Msg("submission accepted")
}

func (h *SessionHandler) handleTyping(client *service.Client, state *connState, data json.RawMessage) {
	if state.sessionID == "" {
		return
	}
	var req dto.TypingRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return
	}
	h.sessions.NotifyTyping(client.ConnID(), req.Typing)
}

func (h *SessionHandler) enqueueError(client *service.Client, sessionID, submissionID, message string) {
	payload := map[string]string{"message": message}
	if submissionID != "" {
		payload["submission_id"] = submissionID
	}
	if !client.Enqueue(dto.NewSessionEvent(sessionID, dto.EventValidationError, payload)) {
		h.logger.Warn().Str("conn_id", client.ConnID()).Msg("error event dropped, client buffer full")
	}
}

func (h *SessionHandler) snapshot(c *fiber.Ctx) error {
	sessionID := c.Params("id")

	session, err := h.sessions.Snapshot(sessionID)
	if err != nil {
		if errors.Is(err, service.ErrSessionNotFound) {
			return utils.SendError(c, fiber.StatusNotFound, "session not found")
		}
		return utils.SendError(c, fiber.StatusInternalServerError, err.Error())
	}

	return utils.SendSuccess(c, "session state", dto.NewSessionSnapshotResponse(session))
}
