// ABOUTME: SSE client owning the single server-push subscription for a session.
// ABOUTME: Handles connect, fixed-delay reconnect, frame demultiplexing, and terminal teardown.

package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/kunjal/agent-console/internal/auth"
)

// DefaultReconnectDelay is the fixed delay between a detected stream error
// and the next connection attempt.
const DefaultReconnectDelay = 1000 * time.Millisecond

// Handler receives the payload of one event frame.
type Handler func(data json.RawMessage)

// frame is the JSON envelope of one inbound event: {"type": ..., "data": ...}.
type frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Client maintains a single SSE subscription keyed by session identity.
//
// Handlers are registered per event type; registering a second handler for a
// type replaces the first (single-slot registry, not a fan-out bus). On a
// transport error the client closes the connection, reports disconnected, and
// schedules exactly one reconnect attempt after a fixed delay. Disconnect is
// terminal: no reconnect is ever attempted afterwards, even if an error is
// already in flight.
type Client struct {
	baseURL string
	tokens  auth.TokenProvider
	httpc   *http.Client
	logger  *slog.Logger

	mu         sync.Mutex
	delay      time.Duration
	handlers   map[string]Handler
	onConnect  func(bool)
	sessionID  string
	connected  bool
	closed     bool
	gen        int
	cancelConn context.CancelFunc
	reconnect  *time.Timer
}

// New creates a stream client for the given backend base URL. The token
// provider is consulted fresh on every connection attempt. Pass nil logger
// for the default.
func New(baseURL string, tokens auth.TokenProvider, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		tokens:   tokens,
		httpc:    &http.Client{},
		logger:   logger.With("component", "stream"),
		delay:    DefaultReconnectDelay,
		handlers: make(map[string]Handler),
	}
}

// SetReconnectDelay overrides the fixed reconnect delay. Must be called
// before Connect.
func (c *Client) SetReconnectDelay(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.delay = d
}

// OnEvent registers the handler for a named event type. The registry is
// single-slot: the last registration for a type wins.
func (c *Client) OnEvent(eventType string, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[eventType] = h
}

// OnConnectionChange registers a callback invoked with the new connectivity
// state whenever it changes (and on failed connection attempts).
func (c *Client) OnConnectionChange(fn func(connected bool)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onConnect = fn
}

// IsConnected reports whether the subscription is currently open.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Connect establishes the subscription for the given session identity.
// Any existing subscription is fully torn down first, so two identities are
// never live at once. An empty identity is a no-op: no connection is
// attempted and the connectivity state reports false. Calling Connect after
// Disconnect does nothing.
func (c *Client) Connect(sessionID string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.stopReconnectLocked()
	c.teardownLocked()
	c.sessionID = sessionID

	if strings.TrimSpace(sessionID) == "" {
		c.logger.Debug("no session id, skipping connection")
		cb := c.onConnect
		c.connected = false
		c.mu.Unlock()
		if cb != nil {
			cb(false)
		}
		return
	}

	c.dialLocked()
	c.mu.Unlock()
}

// Disconnect permanently closes the subscription. It suppresses all future
// reconnect attempts, including ones racing against an in-flight error, and
// is terminal for this instance.
func (c *Client) Disconnect() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.logger.Debug("manual disconnect")
	c.closed = true
	c.stopReconnectLocked()
	c.teardownLocked()
	c.connected = false
	cb := c.onConnect
	c.mu.Unlock()
	if cb != nil {
		cb(false)
	}
}

// dialLocked starts a new connection attempt for the current session.
// Caller holds c.mu.
func (c *Client) dialLocked() {
	c.gen++
	ctx, cancel := context.WithCancel(context.Background())
	c.cancelConn = cancel
	go c.run(ctx, c.gen, c.sessionID)
}

// teardownLocked cancels the live connection, if any, and invalidates any
// frames it may still deliver. Caller holds c.mu.
func (c *Client) teardownLocked() {
	if c.cancelConn != nil {
		c.cancelConn()
		c.cancelConn = nil
	}
	c.gen++
}

// stopReconnectLocked cancels a pending reconnect timer. Caller holds c.mu.
func (c *Client) stopReconnectLocked() {
	if c.reconnect != nil {
		c.reconnect.Stop()
		c.reconnect = nil
	}
}

// run opens the SSE request and reads frames until the connection fails or
// is torn down.
func (c *Client) run(ctx context.Context, gen int, sessionID string) {
	endpoint := fmt.Sprintf("%s/api/events?session_id=%s", c.baseURL, url.QueryEscape(sessionID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		c.handleDisconnect(gen, err)
		return
	}
	req.Header.Set("Accept", "text/event-stream")
	if token := c.tokens.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		c.handleDisconnect(gen, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.handleDisconnect(gen, fmt.Errorf("server returned status %d", resp.StatusCode))
		return
	}

	c.markConnected(gen)
	c.logger.Debug("stream connected", "session_id", sessionID)

	err = c.readFrames(gen, resp.Body)
	c.handleDisconnect(gen, err)
}

// markConnected flips the connectivity state to true for a live generation.
func (c *Client) markConnected(gen int) {
	c.mu.Lock()
	if c.closed || gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.connected = true
	cb := c.onConnect
	c.mu.Unlock()
	if cb != nil {
		cb(true)
	}
}

// readFrames consumes the SSE body line by line. Each event is one or more
// "data:" lines terminated by a blank line; comment lines (":keepalive") are
// ignored. Returns when the transport fails or the body ends.
func (c *Client) readFrames(gen int, body io.Reader) error {
	scanner := bufio.NewScanner(body)

	var dataLines []string
	for scanner.Scan() {
		line := scanner.Text()

		if line == "" {
			if len(dataLines) > 0 {
				c.dispatch(gen, strings.Join(dataLines, "\n"))
				dataLines = nil
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue // keepalive comment
		}
		if strings.HasPrefix(line, "data:") {
			dataLines = append(dataLines, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
			continue
		}
		// Other fields (event:, id:, retry:) carry no information in this
		// protocol; the type lives inside the JSON payload.
	}

	if err := scanner.Err(); err != nil {
		return err
	}
	return io.EOF
}

// dispatch parses one frame and invokes the registered handler for its type.
// Malformed frames are logged and dropped without tearing down the connection.
func (c *Client) dispatch(gen int, data string) {
	var f frame
	if err := json.Unmarshal([]byte(data), &f); err != nil {
		c.logger.Warn("dropping malformed frame", "error", err)
		return
	}
	if f.Type == "" {
		c.logger.Warn("dropping frame without type")
		return
	}

	c.mu.Lock()
	if c.closed || gen != c.gen {
		c.mu.Unlock()
		return
	}
	h := c.handlers[f.Type]
	c.mu.Unlock()

	if h == nil {
		c.logger.Debug("no handler for event", "type", f.Type)
		return
	}
	h(f.Data)
}

// handleDisconnect records a lost connection and schedules exactly one
// reconnect attempt, unless the client is closed or the connection is stale.
// A pending reconnect timer suppresses scheduling a second one.
func (c *Client) handleDisconnect(gen int, err error) {
	c.mu.Lock()
	if c.closed || gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.connected = false
	if c.reconnect == nil {
		c.reconnect = time.AfterFunc(c.delay, c.reconnectNow)
	}
	cb := c.onConnect
	c.mu.Unlock()

	c.logger.Warn("stream disconnected", "error", err)
	if cb != nil {
		cb(false)
	}
}

// reconnectNow fires from the reconnect timer and redials the current session.
func (c *Client) reconnectNow() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reconnect = nil
	if c.closed || strings.TrimSpace(c.sessionID) == "" {
		return
	}
	c.logger.Debug("reconnecting", "session_id", c.sessionID)
	c.dialLocked()
}
