// ABOUTME: In-memory session manager for the stub backend
// ABOUTME: Tracks per-session event queues, history, and pending approvals

package stubserver

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// eventQueueSize bounds how many undelivered events a session can hold.
// A full queue drops the newest event rather than blocking the agent.
const eventQueueSize = 64

// Event is one frame on a session's SSE stream.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type pendingCancellation struct {
	OrderID    string
	ApprovalID string
}

// Session holds the in-memory state for one conversation.
type Session struct {
	ID     string
	UserID string

	mu      sync.Mutex
	queue   chan Event
	pending *pendingCancellation
	history []string
}

func (s *Session) setPending(p *pendingCancellation) {
	s.mu.Lock()
	s.pending = p
	s.mu.Unlock()
}

func (s *Session) takePending() *pendingCancellation {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.pending
	s.pending = nil
	return p
}

func (s *Session) record(line string) {
	s.mu.Lock()
	s.history = append(s.history, line)
	s.mu.Unlock()
}

// SessionManager creates sessions and routes events to their queues.
type SessionManager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	logger   *slog.Logger
}

// NewSessionManager creates an empty manager.
func NewSessionManager(logger *slog.Logger) *SessionManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionManager{
		sessions: make(map[string]*Session),
		logger:   logger.With("component", "sessions"),
	}
}

// Create registers a new session for the user and returns it.
func (m *SessionManager) Create(userID string) *Session {
	s := &Session{
		ID:     uuid.New().String(),
		UserID: userID,
		queue:  make(chan Event, eventQueueSize),
	}
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	m.logger.Info("session created", "session_id", s.ID, "user_id", userID)
	return s
}

// Get returns the session with the given id, or nil.
func (m *SessionManager) Get(sessionID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[sessionID]
}

// Emit queues an event on the session's stream. Events to unknown
// sessions or full queues are dropped with a warning.
func (m *SessionManager) Emit(sessionID, eventType string, data any) {
	s := m.Get(sessionID)
	if s == nil {
		m.logger.Warn("emit to unknown session", "session_id", sessionID, "event", eventType)
		return
	}
	select {
	case s.queue <- Event{Type: eventType, Data: data}:
	default:
		m.logger.Warn("session queue full, dropping event", "session_id", sessionID, "event", eventType)
	}
}

// Events returns the session's event queue for SSE streaming.
func (s *Session) Events() <-chan Event {
	return s.queue
}
