package dto

import (
	"encoding/json"
	"time"

	"github.com/verdictlabs/verdict-api/internal/models"
)

// Session event names carried in the websocket envelope.
const (
	EventSessionState       = "session-state"
	EventUserJoined         = "user-joined"
	EventUserLeft           = "user-left"
	EventTyping             = "typing"
	EventValidationStarted  = "validation-started"
	EventValidationComplete = "validation-complete"
	EventValidationError    = "validation-error"
)

// SessionEvent is the envelope broadcast to session members.
type SessionEvent struct {
	Event     string          `json:"event"`
	SessionID string          `json:"session_id"`
	Data      json.RawMessage `json:"data,omitempty"`
	SentAt    time.Time       `json:"sent_at"`
}

// NewSessionEvent wraps a payload into a broadcast envelope. Marshal errors
// degrade to an empty payload rather than dropping the event.
func NewSessionEvent(sessionID, event string, payload interface{}) SessionEvent {
	var raw json.RawMessage
	if payload != nil {
		if data, err := json.Marshal(payload); err == nil {
			raw = data
		}
	}
	return SessionEvent{
		Event:     event,
		SessionID: sessionID,
		Data:      raw,
		SentAt:    time.Now().UTC(),
	}
}

// JoinSessionRequest is the first message a client sends after upgrading.
type JoinSessionRequest struct {
	SessionID string `json:"session_id" validate:"required,min=1,max=128"`
	Username  string `json:"username" validate:"required,min=1,max=64"`
	Avatar    string `json:"avatar" validate:"omitempty,max=256"`
}

// TypingRequest signals that a member is editing code.
type TypingRequest struct {
	Typing bool `json:"typing"`
}

// UserResponse is the serialized representation of a session member.
type UserResponse struct {
	ConnID   string    `json:"conn_id"`
	Name     string    `json:"name"`
	Avatar   string    `json:"avatar,omitempty"`
	JoinedAt time.Time `json:"joined_at"`
}

// NewUserResponse converts a user model into a DTO.
func NewUserResponse(user models.User) UserResponse {
	return UserResponse{
		ConnID:   user.ConnID,
		Name:     user.Name,
		Avatar:   user.Avatar,
		JoinedAt: user.JoinedAt,
	}
}

// SessionSnapshotResponse is the bounded history returned to late joiners.
type SessionSnapshotResponse struct {
	SessionID   string                     `json:"session_id"`
	CreatedAt   time.Time                  `json:"created_at"`
	Users       []UserResponse             `json:"users"`
	Submissions []SubmissionResponse       `json:"submissions"`
	Results     []ValidationResultResponse `json:"results"`
}

// NewSessionSnapshotResponse converts a session model into its snapshot DTO.
func NewSessionSnapshotResponse(session models.Session) SessionSnapshotResponse {
	users := make([]UserResponse, 0, len(session.Users))
	for _, user := range session.Users {
		users = append(users, NewUserResponse(user))
	}

	submissions := make([]SubmissionResponse, 0, len(session.Submissions))
	for _, submission := range session.Submissions {
		submissions = append(submissions, NewSubmissionResponse(submission))
	}

	results := make([]ValidationResultResponse, 0, len(session.Results))
	for _, result := range session.Results {
		results = append(results, NewValidationResultResponse(result))
	}

	return SessionSnapshotResponse{
		SessionID:   session.ID,
		CreatedAt:   session.CreatedAt,
		Users:       users,
		Submissions: submissions,
		Results:     results,
	}
}

// SessionSummaryResponse is the admin listing entry for one active session.
type SessionSummaryResponse struct {
	SessionID    string    `json:"session_id"`
	UserCount    int       `json:"user_count"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
}
