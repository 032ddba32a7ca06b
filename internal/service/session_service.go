package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/verdictlabs/verdict-api/internal/dto"
	"github.com/verdictlabs/verdict-api/internal/models"
	"github.com/verdictlabs/verdict-api/internal/observability"
)

const sendBufferSize = 32

// Registry errors. ErrSessionNotFound is the only one surfaced to clients;
// the rest are internal drop signals.
var (
	ErrSessionNotFound    = errors.New("session not found")
	ErrSubmissionNotFound = errors.New("submission not found in session history")
	ErrAlreadyJoined      = errors.New("connection already joined a session")
)

// Client is one websocket connection's view of the registry. The transport
// layer pumps Events() to the wire and calls Close on disconnect.
type Client struct {
	connID  string
	send    chan dto.SessionEvent
	closed  chan struct{}
	once    sync.Once
	service *sessionService
}

// ConnID returns the connection identifier assigned at upgrade time.
func (c *Client) ConnID() string { return c.connID }

// Events returns the channel of broadcast events destined for this client.
func (c *Client) Events() <-chan dto.SessionEvent { return c.send }

// Done is closed when the client has been torn down.
func (c *Client) Done() <-chan struct{} { return c.closed }

// Enqueue queues an event directly to this client, sharing the writer path
// with broadcasts so per-connection ordering is preserved. Returns false when
// the client's buffer is full.
func (c *Client) Enqueue(event dto.SessionEvent) bool {
	select {
	case c.send <- event:
		return true
	default:
		return false
	}
}

// Close removes the client from its session and releases its resources.
func (c *Client) Close() {
	c.once.Do(func() {
		c.service.leave(c.connID)
		close(c.closed)
	})
}

// SessionService holds all live sessions and fans lifecycle events out to
// their members. Mutation is serialized per session; distinct sessions
// proceed fully in parallel.
type SessionService interface {
	Connect() *Client
	Join(client *Client, req dto.JoinSessionRequest) (dto.SessionSnapshotResponse, error)
	Leave(connID string)
	RecordSubmission(sessionID string, submission models.Submission) error
	RecordResult(sessionID string, result models.ConsensusResult) error
	RecordFailure(sessionID, submissionID, message string) error
	NotifyTyping(connID string, typing bool)
	Snapshot(sessionID string) (models.Session, error)
	Summaries() []dto.SessionSummaryResponse
	Counts() (sessions int, users int)
	Start(ctx context.Context)
}

type sessionState struct {
	mu           sync.Mutex
	id           string
	createdAt    time.Time
	userOrder    []string
	users        map[string]models.User
	clients      map[string]*Client
	submissions  []models.Submission
	results      []models.ConsensusResult
	lastActivity time.Time
}

type relayEvent struct {
	Source string           `json:"source"`
	Event  dto.SessionEvent `json:"event"`
}

type sessionService struct {
	mu       sync.RWMutex
	sessions map[string]*sessionState
	conns    map[string]string

	historyCap  int
	redis       *redis.Client
	redisStream string
	nats        *nats.Conn
	natsSubject string
	nodeID      string
	sanitizer   *bluemonday.Policy
	logger      zerolog.Logger
	tracer      trace.Tracer
}

// NewSessionService creates the in-process session registry. Redis and NATS
// connections are optional; when present, events are relayed across nodes the
// same way on both brokers.
func NewSessionService(historyCap int, redisClient *redis.Client, natsConn *nats.Conn, channelBase string, logger zerolog.Logger) SessionService {
	if historyCap <= 0 {
		historyCap = 10
	}

	streamChannel := ""
	natsSubject := ""
	if channelBase != "" {
		streamChannel = channelBase + ":events"
		natsSubject = strings.ReplaceAll(channelBase, ":", ".") + ".events"
	}

	return &sessionService{
		sessions:    make(map[string]*sessionState),
		conns:       make(map[string]string),
		historyCap:  historyCap,
		redis:       redisClient,
		redisStream: streamChannel,
		nats:        natsConn,
		natsSubject: natsSubject,
		nodeID:      uuid.NewString(),
		sanitizer:   bluemonday.StrictPolicy(),
		logger:      logger.With().Str("component", "session_service").Logger(),
		tracer:      otel.Tracer("github.com/verdictlabs/verdict-api/internal/service/session"),
	}
}

func (s *sessionService) Start(ctx context.Context) {
	if s.redis != nil && s.redisStream != "" {
		go s.consumeRedis(ctx)
	}
	if s.nats != nil && s.natsSubject != "" {
		go s.consumeNATS(ctx)
	}
}

// Connect allocates a client for a freshly upgraded connection. The client
// belongs to no session until Join succeeds.
func (s *sessionService) Connect() *Client {
	return &Client{
		connID:  uuid.NewString(),
		send:    make(chan dto.SessionEvent, sendBufferSize),
		closed:  make(chan struct{}),
		service: s,
	}
}

// Join registers the client into a session, creating it lazily, and returns
// the bounded recent history so late joiners see context. The same snapshot
// is queued as the client's first event, ordered ahead of every later
// broadcast for the session.
func (s *sessionService) Join(client *Client, req dto.JoinSessionRequest) (dto.SessionSnapshotResponse, error) {
	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		return dto.SessionSnapshotResponse{}, ErrSessionNotFound
	}

	name := strings.TrimSpace(s.sanitizer.Sanitize(req.Username))
	if name == "" {
		name = "anonymous"
	}

	user := models.User{
		ConnID:   client.connID,
		Name:     name,
		Avatar:   strings.TrimSpace(s.sanitizer.Sanitize(req.Avatar)),
		JoinedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	if _, joined := s.conns[client.connID]; joined {
		s.mu.Unlock()
		return dto.SessionSnapshotResponse{}, ErrAlreadyJoined
	}
	state, exists := s.sessions[sessionID]
	if !exists {
		state = &sessionState{
			id:        sessionID,
			createdAt: time.Now().UTC(),
			users:     make(map[string]models.User),
			clients:   make(map[string]*Client),
		}
		s.sessions[sessionID] = state
		observability.SessionsActive().Inc()
	}
	s.conns[client.connID] = sessionID

	// Membership must be inserted before the registry lock drops: the
	// last-leave teardown re-checks emptiness under both locks, so it can
	// never unregister a session while this join is in flight.
	state.mu.Lock()
	state.users[client.connID] = user
	state.userOrder = append(state.userOrder, client.connID)
	state.clients[client.connID] = client
	state.lastActivity = time.Now().UTC()
	s.mu.Unlock()

	snapshot := dto.NewSessionSnapshotResponse(state.modelLocked())
	// Enqueued under the session lock so the snapshot is the joiner's first
	// event, ahead of any broadcast recorded afterwards.
	if !client.Enqueue(dto.NewSessionEvent(sessionID, dto.EventSessionState, snapshot)) {
		s.logger.Warn().Str("session_id", sessionID).Str("conn_id", client.connID).Msg("dropping session snapshot, client buffer full")
	}
	state.broadcastLocked(dto.NewSessionEvent(sessionID, dto.EventUserJoined, dto.NewUserResponse(user)), client.connID, s.logger)
	state.mu.Unlock()

	observability.SessionUsers().Inc()
	s.publish(dto.NewSessionEvent(sessionID, dto.EventUserJoined, dto.NewUserResponse(user)))
	s.logger.Info().Str("session_id", sessionID).Str("conn_id", client.connID).Str("user", name).Msg("user joined session")

	return snapshot, nil
}

// Leave removes the connection from its session. When the last user leaves,
// the session is torn down immediately and its transient history is lost.
func (s *sessionService) Leave(connID string) {
	s.leave(connID)
}

func (s *sessionService) leave(connID string) {
	s.mu.Lock()
	sessionID, joined := s.conns[connID]
	if !joined {
		s.mu.Unlock()
		return
	}
	delete(s.conns, connID)
	state := s.sessions[sessionID]
	s.mu.Unlock()

	if state == nil {
		return
	}

	state.mu.Lock()
	user, present := state.users[connID]
	delete(state.users, connID)
	delete(state.clients, connID)
	for i, id := range state.userOrder {
		if id == connID {
			state.userOrder = append(state.userOrder[:i], state.userOrder[i+1:]...)
			break
		}
	}
	empty := len(state.users) == 0
	if present && !empty {
		state.broadcastLocked(dto.NewSessionEvent(sessionID, dto.EventUserLeft, dto.NewUserResponse(user)), connID, s.logger)
	}
	state.lastActivity = time.Now().UTC()
	state.mu.Unlock()

	if present {
		observability.SessionUsers().Dec()
	}

	if empty {
		s.mu.Lock()
		// Re-check under the registry lock: a concurrent join may have
		// recreated membership between the two critical sections.
		if current, ok := s.sessions[sessionID]; ok && current == state {
			state.mu.Lock()
			if len(current.users) == 0 {
				delete(s.sessions, sessionID)
				observability.SessionsActive().Dec()
				s.logger.Info().Str("session_id", sessionID).Msg("session torn down")
			}
			state.mu.Unlock()
		}
		s.mu.Unlock()
	} else if present {
		s.publish(dto.NewSessionEvent(sessionID, dto.EventUserLeft, dto.NewUserResponse(user)))
	}
}

// RecordSubmission appends the submission to the session's bounded history
// and broadcasts validation-started as one atomic step.
func (s *sessionService) RecordSubmission(sessionID string, submission models.Submission) error {
	_, span := s.tracer.Start(context.Background(), "session.record_submission", trace.WithAttributes(
		attribute.String("session_id", sessionID),
		attribute.String("submission_id", submission.ID),
	))
	defer span.End()

	state, err := s.state(sessionID)
	if err != nil {
		return err
	}

	state.mu.Lock()
	submission.Status = models.SubmissionValidating
	state.submissions = append(state.submissions, submission)
	if len(state.submissions) > s.historyCap {
		state.submissions = state.submissions[len(state.submissions)-s.historyCap:]
	}
	state.lastActivity = time.Now().UTC()
	event := dto.NewSessionEvent(sessionID, dto.EventValidationStarted, dto.NewSubmissionResponse(submission))
	state.broadcastLocked(event, "", s.logger)
	state.mu.Unlock()

	s.publish(event)
	return nil
}

// RecordResult appends the result and broadcasts validation-complete. When
// the session has been torn down or the submission was trimmed from history,
// the result is dropped and an error returned so the caller can log it.
func (s *sessionService) RecordResult(sessionID string, result models.ConsensusResult) error {
	_, span := s.tracer.Start(context.Background(), "session.record_result", trace.WithAttributes(
		attribute.String("session_id", sessionID),
		attribute.String("submission_id", result.SubmissionID),
	))
	defer span.End()

	state, err := s.state(sessionID)
	if err != nil {
		return err
	}

	state.mu.Lock()
	found := false
	for i := range state.submissions {
		if state.submissions[i].ID == result.SubmissionID {
			state.submissions[i].Status = models.SubmissionComplete
			found = true
			break
		}
	}
	if !found {
		state.mu.Unlock()
		return ErrSubmissionNotFound
	}

	state.results = append(state.results, result)
	if len(state.results) > s.historyCap {
		state.results = state.results[len(state.results)-s.historyCap:]
	}
	state.lastActivity = time.Now().UTC()
	event := dto.NewSessionEvent(sessionID, dto.EventValidationComplete, dto.NewValidationResultResponse(result))
	state.broadcastLocked(event, "", s.logger)
	state.mu.Unlock()

	s.publish(event)
	return nil
}

// RecordFailure marks the submission failed and broadcasts validation-error.
func (s *sessionService) RecordFailure(sessionID, submissionID, message string) error {
	state, err := s.state(sessionID)
	if err != nil {
		return err
	}

	state.mu.Lock()
	found := false
	for i := range state.submissions {
		if state.submissions[i].ID == submissionID {
			state.submissions[i].Status = models.SubmissionFailed
			found = true
			break
		}
	}
	if !found {
		state.mu.Unlock()
		return ErrSubmissionNotFound
	}
	state.lastActivity = time.Now().UTC()
	event := dto.NewSessionEvent(sessionID, dto.EventValidationError, map[string]string{
		"submission_id": submissionID,
		"message":       message,
	})
	state.broadcastLocked(event, "", s.logger)
	state.mu.Unlock()

	s.publish(event)
	return nil
}

// NotifyTyping relays a typing indicator to the other members of the
// sender's session.
func (s *sessionService) NotifyTyping(connID string, typing bool) {
	s.mu.RLock()
	sessionID, joined := s.conns[connID]
	state := s.sessions[sessionID]
	s.mu.RUnlock()

	if !joined || state == nil {
		return
	}

	state.mu.Lock()
	user, present := state.users[connID]
	if present {
		state.broadcastLocked(dto.NewSessionEvent(sessionID, dto.EventTyping, map[string]interface{}{
			"conn_id": connID,
			"name":    user.Name,
			"typing":  typing,
		}), connID, s.logger)
	}
	state.mu.Unlock()
}

// Snapshot returns a copy of one session's full state.
func (s *sessionService) Snapshot(sessionID string) (models.Session, error) {
	state, err := s.state(sessionID)
	if err != nil {
		return models.Session{}, err
	}

	state.mu.Lock()
	defer state.mu.Unlock()
	return state.modelLocked(), nil
}

// Summaries lists the active sessions for the admin surface.
func (s *sessionService) Summaries() []dto.SessionSummaryResponse {
	s.mu.RLock()
	states := make([]*sessionState, 0, len(s.sessions))
	for _, state := range s.sessions {
		states = append(states, state)
	}
	s.mu.RUnlock()

	summaries := make([]dto.SessionSummaryResponse, 0, len(states))
	for _, state := range states {
		state.mu.Lock()
		summaries = append(summaries, dto.SessionSummaryResponse{
			SessionID:    state.id,
			UserCount:    len(state.users),
			CreatedAt:    state.createdAt,
			LastActivity: state.lastActivity,
		})
		state.mu.Unlock()
	}
	return summaries
}

// Counts reports active sessions and connected users for the health endpoint.
func (s *sessionService) Counts() (int, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions), len(s.conns)
}

func (s *sessionService) state(sessionID string) (*sessionState, error) {
	s.mu.RLock()
	state, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	return state, nil
}

func (st *sessionState) modelLocked() models.Session {
	users := make([]models.User, 0, len(st.userOrder))
	for _, connID := range st.userOrder {
		if user, ok := st.users[connID]; ok {
			users = append(users, user)
		}
	}

	submissions := make([]models.Submission, len(st.submissions))
	copy(submissions, st.submissions)
	results := make([]models.ConsensusResult, len(st.results))
	copy(results, st.results)

	return models.Session{
		ID:          st.id,
		CreatedAt:   st.createdAt,
		Users:       users,
		Submissions: submissions,
		Results:     results,
	}
}

// broadcastLocked fans the event out to every member except skipConnID.
// Caller holds the session lock, which is what gives each member FIFO
// delivery relative to the session's recorded operations.
func (st *sessionState) broadcastLocked(event dto.SessionEvent, skipConnID string, log zerolog.Logger) {
	observability.EventsBroadcast().WithLabelValues(event.Event).Inc()
	for connID, client := range st.clients {
		if connID == skipConnID {
			continue
		}
		select {
		case client.send <- event:
		default:
			log.Warn().Str("session_id", st.id).Str("conn_id", connID).Str("event", event.Event).Msg("dropping event for slow client")
		}
	}
}

func (s *sessionService) publish(event dto.SessionEvent) {
	if (s.redis == nil || s.redisStream == "") && (s.nats == nil || s.natsSubject == "") {
		return
	}

	payload, err := json.Marshal(relayEvent{Source: s.nodeID, Event: event})
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to marshal relay event")
		return
	}

	if s.redis != nil && s.redisStream != "" {
		if err := s.redis.Publish(context.Background(), s.redisStream, payload).Err(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to publish relay event to redis")
		}
	}

	if s.nats != nil && s.natsSubject != "" {
		if err := s.nats.Publish(s.natsSubject, payload); err != nil {
			s.logger.Warn().Err(err).Msg("failed to publish relay event to nats")
		}
	}
}

func (s *sessionService) consumeRedis(ctx context.Context) {
	pubsub := s.redis.Subscribe(ctx, s.redisStream)
	defer func() {
		_ = pubsub.Close()
	}()
	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			s.logger.Error().Err(err).Msg("session redis subscription closed")
			return
		}
		s.handleRelay([]byte(msg.Payload))
	}
}

func (s *sessionService) consumeNATS(ctx context.Context) {
	sub, err := s.nats.QueueSubscribe(s.natsSubject, "verdict-sessions", func(msg *nats.Msg) {
		s.handleRelay(msg.Data)
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to subscribe to nats session subject")
		return
	}
	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to drain session nats subscription")
		}
	}()
}

// handleRelay re-broadcasts an event originating on another node to the
// local members of its session, if any.
func (s *sessionService) handleRelay(data []byte) {
	var relay relayEvent
	if err := json.Unmarshal(data, &relay); err != nil {
		s.logger.Warn().Err(err).Msg("invalid relay event")
		return
	}

	if relay.Source == s.nodeID {
		return
	}

	s.mu.RLock()
	state := s.sessions[relay.Event.SessionID]
	s.mu.RUnlock()
	if state == nil {
		return
	}

	state.mu.Lock()
	state.broadcastLocked(relay.Event, "", s.logger)
	state.mu.Unlock()
}
