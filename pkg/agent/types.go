package agent

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Request contains the artefacts one agent needs to analyse a submission.
type Request struct {
	Code               string
	ValidationType     string
	Language           string
	HeightenedScrutiny bool
}

// Result is the normalized output of a single agent invocation.
type Result struct {
	Agent       string
	Confidence  float64
	Issues      []string
	Suggestions []string
	Rationale   string
	Duration    time.Duration
}

// Descriptor is the static manifest entry of an agent: its name, the
// reliability weight applied during aggregation, and informational specialty
// tags. Tags never bias aggregation beyond the declared weight.
type Descriptor struct {
	Name        string
	Weight      float64
	Specialties []string
}

// Agent is one independent analysis backend.
type Agent interface {
	Descriptor() Descriptor
	Invoke(ctx context.Context, req Request) (Result, error)
}

// ErrorKind categorises agent invocation failures.
type ErrorKind string

// Agent failure kinds. All are non-fatal: the orchestrator drops the agent
// from aggregation and carries on.
const (
	KindTimeout           ErrorKind = "timeout"
	KindTransport         ErrorKind = "transport"
	KindMalformedResponse ErrorKind = "malformed_response"
)

// Error wraps an agent invocation failure with its kind.
type Error struct {
	Agent string
	Kind  ErrorKind
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("agent %s: %s: %v", e.Agent, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError builds a typed agent error.
func NewError(agent string, kind ErrorKind, err error) *Error {
	return &Error{Agent: agent, Kind: kind, Err: err}
}

// KindOf extracts the failure kind from an error chain, defaulting to
// transport for untyped errors.
func KindOf(err error) ErrorKind {
	var agentErr *Error
	if errors.As(err, &agentErr) {
		return agentErr.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindTransport
}
