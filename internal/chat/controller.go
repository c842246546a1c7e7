// ABOUTME: ConversationController: owns session state and translates user actions and stream events.
// ABOUTME: Enforces the approval gate and session-scoped correlation of approval decisions.

package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kunjal/agent-console/internal/auth"
)

// sendErrorMessage is appended as a synthetic assistant message when an
// outgoing message cannot be delivered.
const sendErrorMessage = "Sorry, there was an error processing your message."

// State errors, rejected locally without a network call.
var (
	// ErrInputBlocked means the approval gate refused new input: the agent is
	// producing output or a human decision is outstanding.
	ErrInputBlocked = errors.New("input blocked: agent busy or approval pending")
	// ErrNoPendingApproval means a decision was sent with nothing to decide.
	ErrNoPendingApproval = errors.New("no pending approval")
	// ErrNoSession means no session identity has been established yet.
	ErrNoSession = errors.New("no session established")
)

// chatRequest is the JSON body sent to POST /api/chat.
type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
}

// chatResponse is the JSON response from POST /api/chat.
type chatResponse struct {
	SessionID string `json:"session_id"`
}

// approvalRequest is the JSON body sent to POST /api/approval. Decisions are
// correlated by session identity, not by approval id: the backend tracks at
// most one outstanding approval per session.
type approvalRequest struct {
	ID        string `json:"id"`
	Approved  bool   `json:"approved"`
	UserInput string `json:"userInput,omitempty"`
}

// Stream event payloads.
type messageEvent struct {
	ID      string `json:"id"`
	Role    string `json:"role"`
	Content string `json:"content"`
}

type errorEvent struct {
	Message string `json:"message"`
}

// Controller owns the authoritative conversation state for one session.
//
// User messages are appended optimistically before any network activity. The
// session identity is assigned from the first successful send response and
// never overwritten afterwards. Stream event handlers are idempotent and
// never fail; malformed payloads degrade to empty content.
type Controller struct {
	baseURL string
	tokens  auth.TokenProvider
	httpc   *http.Client
	logger  *slog.Logger

	mu          sync.Mutex
	messages    []Message
	isTyping    bool
	pending     *Approval
	isConnected bool
	sessionID   string
	seen        map[string]struct{}
	onChange    func(State)
	onSession   func(sessionID string)
}

// New creates a conversation controller for the given backend base URL.
// The token provider is consulted fresh on every outgoing call. Pass nil
// logger for the default.
func New(baseURL string, tokens auth.TokenProvider, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		baseURL: strings.TrimRight(baseURL, "/"),
		tokens:  tokens,
		httpc:   &http.Client{},
		logger:  logger.With("component", "chat"),
		seen:    make(map[string]struct{}),
	}
}

// OnChange registers a callback invoked with a fresh state snapshot after
// every state transition. Single slot, last registration wins.
func (c *Controller) OnChange(fn func(State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onChange = fn
}

// OnSessionEstablished registers a callback invoked once, when the first
// successful send response assigns the session identity.
func (c *Controller) OnSessionEstablished(fn func(sessionID string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onSession = fn
}

// SessionID returns the current session identity, or "" before the first
// successful send.
func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Snapshot returns a copy of the current conversation state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// CanSend reports whether the approval gate currently admits new user input.
func (c *Controller) CanSend() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.isTyping && c.pending == nil
}

// SendMessage appends the user message optimistically, marks the agent as
// typing, and posts the message to the backend. The response's session
// identity becomes authoritative if none was held before. On transport
// failure a synthetic assistant error message is appended and typing is
// cleared; there is no automatic retry.
func (c *Controller) SendMessage(ctx context.Context, text string) error {
	c.mu.Lock()
	if c.isTyping || c.pending != nil {
		c.mu.Unlock()
		return ErrInputBlocked
	}
	c.messages = append(c.messages, Message{
		ID:        uuid.New().String(),
		Role:      RoleUser,
		Content:   text,
		Timestamp: time.Now(),
	})
	c.isTyping = true
	sessionID := c.sessionID
	st := c.snapshotLocked()
	c.mu.Unlock()
	c.notify(st)

	var resp chatResponse
	err := c.post(ctx, "/api/chat", chatRequest{Message: text, SessionID: sessionID}, &resp)
	if err != nil {
		c.logger.Warn("send failed", "error", err)
		c.sendFailed()
		return fmt.Errorf("sending message: %w", err)
	}

	c.mu.Lock()
	var established func(string)
	if c.sessionID == "" && resp.SessionID != "" {
		c.sessionID = resp.SessionID
		established = c.onSession
	}
	c.mu.Unlock()

	if established != nil {
		c.logger.Debug("session established", "session_id", resp.SessionID)
		established(resp.SessionID)
	}
	return nil
}

// SendApprovalDecision posts the human's decision for the pending approval.
// Valid only when both a pending approval and a session identity exist;
// otherwise it is a local no-op surfacing a state error. On success the
// pending approval is cleared and typing is set (another stream event is
// expected). On failure state is left unchanged so the human may retry.
func (c *Controller) SendApprovalDecision(ctx context.Context, approved bool, userInput string) error {
	c.mu.Lock()
	if c.pending == nil {
		c.mu.Unlock()
		c.logger.Warn("approval decision with no pending approval")
		return ErrNoPendingApproval
	}
	if c.sessionID == "" {
		c.mu.Unlock()
		c.logger.Warn("approval decision with no session")
		return ErrNoSession
	}
	sessionID := c.sessionID
	c.mu.Unlock()

	req := approvalRequest{ID: sessionID, Approved: approved, UserInput: userInput}
	if err := c.post(ctx, "/api/approval", req, nil); err != nil {
		c.logger.Warn("approval decision failed", "error", err)
		return fmt.Errorf("sending approval decision: %w", err)
	}

	c.mu.Lock()
	c.pending = nil
	c.isTyping = true
	st := c.snapshotLocked()
	c.mu.Unlock()
	c.notify(st)
	return nil
}

// SetConnected records the connectivity of the event stream.
func (c *Controller) SetConnected(connected bool) {
	c.mu.Lock()
	if c.isConnected == connected {
		c.mu.Unlock()
		return
	}
	c.isConnected = connected
	st := c.snapshotLocked()
	c.mu.Unlock()
	c.notify(st)
}

// HandleMessage processes a "message" stream event: appends the delivered
// message and clears typing. Repeated delivery of the same server message id
// appends only once.
func (c *Controller) HandleMessage(data json.RawMessage) {
	var ev messageEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		c.logger.Warn("malformed message event", "error", err)
	}

	c.mu.Lock()
	if ev.ID != "" {
		if _, dup := c.seen[ev.ID]; dup {
			c.isTyping = false
			st := c.snapshotLocked()
			c.mu.Unlock()
			c.notify(st)
			return
		}
		c.seen[ev.ID] = struct{}{}
	}

	id := ev.ID
	if id == "" {
		id = uuid.New().String()
	}
	role := Role(ev.Role)
	if role == "" {
		role = RoleAssistant
	}
	c.messages = append(c.messages, Message{
		ID:        id,
		Role:      role,
		Content:   ev.Content,
		Timestamp: time.Now(),
	})
	c.isTyping = false
	st := c.snapshotLocked()
	c.mu.Unlock()
	c.notify(st)
}

// HandleApproval processes an "approval" stream event: clears typing and
// installs the new pending approval, replacing any previous one.
func (c *Controller) HandleApproval(data json.RawMessage) {
	var a Approval
	if err := json.Unmarshal(data, &a); err != nil {
		c.logger.Warn("malformed approval event", "error", err)
	}

	c.mu.Lock()
	if c.pending != nil && c.pending.ID != a.ID {
		// The human's in-progress decision is silently invalidated; the
		// backend only tracks the newest approval per session.
		c.logger.Warn("replacing pending approval", "old_id", c.pending.ID, "new_id", a.ID)
	}
	c.isTyping = false
	c.pending = &a
	st := c.snapshotLocked()
	c.mu.Unlock()
	c.notify(st)
}

// HandleError processes an "error" stream event: appends a synthetic
// assistant message describing the failure and clears typing. A repeated
// identical error is not appended twice.
func (c *Controller) HandleError(data json.RawMessage) {
	var ev errorEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		c.logger.Warn("malformed error event", "error", err)
	}
	content := "Error: " + ev.Message

	c.mu.Lock()
	if n := len(c.messages); n > 0 {
		last := c.messages[n-1]
		if last.Role == RoleAssistant && last.Content == content {
			c.isTyping = false
			st := c.snapshotLocked()
			c.mu.Unlock()
			c.notify(st)
			return
		}
	}
	c.messages = append(c.messages, Message{
		ID:        uuid.New().String(),
		Role:      RoleAssistant,
		Content:   content,
		Timestamp: time.Now(),
	})
	c.isTyping = false
	st := c.snapshotLocked()
	c.mu.Unlock()
	c.notify(st)
}

// HandleDone processes a "done" stream event: the agent turn is over.
func (c *Controller) HandleDone(json.RawMessage) {
	c.mu.Lock()
	if !c.isTyping {
		c.mu.Unlock()
		return
	}
	c.isTyping = false
	st := c.snapshotLocked()
	c.mu.Unlock()
	c.notify(st)
}

// sendFailed records a failed outgoing message: synthetic assistant error
// message appended, typing cleared.
func (c *Controller) sendFailed() {
	c.mu.Lock()
	c.messages = append(c.messages, Message{
		ID:        uuid.New().String(),
		Role:      RoleAssistant,
		Content:   sendErrorMessage,
		Timestamp: time.Now(),
	})
	c.isTyping = false
	st := c.snapshotLocked()
	c.mu.Unlock()
	c.notify(st)
}

// post sends an authenticated JSON request and decodes the response into out
// when non-nil. Non-2xx statuses are errors.
func (c *Controller) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token := c.tokens.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("server returned status %d", resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			// The request was accepted; a bad response shape is logged and
			// otherwise dropped.
			c.logger.Warn("unexpected response shape", "path", path, "error", err)
		}
	}
	return nil
}

// snapshotLocked builds a State copy. Caller holds c.mu.
func (c *Controller) snapshotLocked() State {
	msgs := make([]Message, len(c.messages))
	copy(msgs, c.messages)
	var pending *Approval
	if c.pending != nil {
		p := *c.pending
		pending = &p
	}
	return State{
		Messages:        msgs,
		IsTyping:        c.isTyping,
		PendingApproval: pending,
		IsConnected:     c.isConnected,
	}
}

// notify invokes the change callback outside the lock.
func (c *Controller) notify(st State) {
	c.mu.Lock()
	cb := c.onChange
	c.mu.Unlock()
	if cb != nil {
		cb(st)
	}
}
