package models

import "time"

// User is a participant of a session, owned exclusively by the session that
// contains it and removed on disconnect.
type User struct {
	ConnID   string    `json:"conn_id"`
	Name     string    `json:"name"`
	Avatar   string    `json:"avatar,omitempty"`
	JoinedAt time.Time `json:"joined_at"`
}

// Session is a live multi-user context sharing submission and result history.
// It is created lazily on first join and torn down when the last user leaves.
type Session struct {
	ID          string            `json:"id"`
	CreatedAt   time.Time         `json:"created_at"`
	Users       []User            `json:"users"`
	Submissions []Submission      `json:"submissions"`
	Results     []ConsensusResult `json:"results"`
}
