// ABOUTME: Tests for the SSE stream client.
// ABOUTME: Covers dispatch, single-slot handlers, malformed frames, reconnect pacing, and terminal disconnect.

package stream

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kunjal/agent-console/internal/auth"
)

// sseServer serves a fixed set of SSE lines, then holds the connection open
// until the client goes away.
func sseServer(t *testing.T, dials *atomic.Int64, lines ...string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if dials != nil {
			dials.Add(1)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		flusher, ok := w.(http.Flusher)
		require.True(t, ok)
		for _, line := range lines {
			fmt.Fprintf(w, "%s\n", line)
		}
		flusher.Flush()
		<-r.Context().Done()
	}))
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	c := New(baseURL, auth.Static(""), nil)
	c.SetReconnectDelay(10 * time.Millisecond)
	t.Cleanup(c.Disconnect)
	return c
}

func TestConnectEmptySessionIsNoop(t *testing.T) {
	var dials atomic.Int64
	srv := sseServer(t, &dials)
	t.Cleanup(srv.Close)

	c := newTestClient(t, srv.URL)
	c.Connect("")
	c.Connect("   ")

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int64(0), dials.Load())
	assert.False(t, c.IsConnected())
}

func TestDeliversEventsToHandlers(t *testing.T) {
	srv := sseServer(t, nil,
		`data: {"type":"message","data":{"content":"hello"}}`,
		"",
		`data: {"type":"done","data":{}}`,
		"",
	)
	t.Cleanup(srv.Close)

	messages := make(chan json.RawMessage, 1)
	done := make(chan struct{}, 1)

	c := newTestClient(t, srv.URL)
	c.OnEvent("message", func(data json.RawMessage) { messages <- data })
	c.OnEvent("done", func(json.RawMessage) { done <- struct{}{} })
	c.Connect("sess-1")

	select {
	case data := <-messages:
		assert.JSONEq(t, `{"content":"hello"}`, string(data))
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message event")
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for done event")
	}
}

func TestSingleSlotHandlerLastWins(t *testing.T) {
	srv := sseServer(t, nil,
		`data: {"type":"message","data":{}}`,
		"",
	)
	t.Cleanup(srv.Close)

	var first, second atomic.Int64

	c := newTestClient(t, srv.URL)
	c.OnEvent("message", func(json.RawMessage) { first.Add(1) })
	c.OnEvent("message", func(json.RawMessage) { second.Add(1) })
	c.Connect("sess-1")

	require.Eventually(t, func() bool { return second.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(0), first.Load())
}

func TestMalformedFrameDroppedWithoutTeardown(t *testing.T) {
	srv := sseServer(t, nil,
		`data: this is not json`,
		"",
		`data: {"no type here": true}`,
		"",
		`data: {"type":"message","data":{"content":"still alive"}}`,
		"",
	)
	t.Cleanup(srv.Close)

	messages := make(chan json.RawMessage, 1)

	c := newTestClient(t, srv.URL)
	c.OnEvent("message", func(data json.RawMessage) { messages <- data })
	c.Connect("sess-1")

	select {
	case data := <-messages:
		assert.Contains(t, string(data), "still alive")
	case <-time.After(2 * time.Second):
		t.Fatal("valid frame after malformed ones was not delivered")
	}
	assert.True(t, c.IsConnected())
}

func TestKeepaliveCommentsIgnored(t *testing.T) {
	srv := sseServer(t, nil,
		":keepalive",
		"",
		`data: {"type":"done","data":{}}`,
		"",
	)
	t.Cleanup(srv.Close)

	done := make(chan struct{}, 1)

	c := newTestClient(t, srv.URL)
	c.OnEvent("done", func(json.RawMessage) { done <- struct{}{} })
	c.Connect("sess-1")

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("frame after keepalive comment was not delivered")
	}
}

func TestReconnectsAfterTransportError(t *testing.T) {
	var dials atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		dials.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	c := newTestClient(t, srv.URL)
	c.Connect("sess-1")

	// Each failed attempt schedules exactly one retry after the fixed delay.
	require.Eventually(t, func() bool { return dials.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	assert.False(t, c.IsConnected())
}

func TestDisconnectStopsReconnects(t *testing.T) {
	var dials atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		dials.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	c := newTestClient(t, srv.URL)
	c.Connect("sess-1")
	require.Eventually(t, func() bool { return dials.Load() >= 1 }, 2*time.Second, 5*time.Millisecond)

	c.Disconnect()
	settled := dials.Load()
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, settled, dials.Load(), "no reconnect attempts after Disconnect")

	// Disconnect is terminal: a later Connect must not dial either.
	c.Connect("sess-2")
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, settled, dials.Load())
}

func TestSessionChangeTearsDownOldSubscription(t *testing.T) {
	var live atomic.Int64
	sessions := make(chan string, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessions <- r.URL.Query().Get("session_id")
		live.Add(1)
		defer live.Add(-1)
		w.Header().Set("Content-Type", "text/event-stream")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	t.Cleanup(srv.Close)

	c := newTestClient(t, srv.URL)
	c.Connect("session-a")
	require.Equal(t, "session-a", <-sessions)
	require.Eventually(t, c.IsConnected, 2*time.Second, 5*time.Millisecond)

	c.Connect("session-b")
	require.Equal(t, "session-b", <-sessions)

	// The old subscription must be gone: never two live at once.
	require.Eventually(t, func() bool { return live.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
}

func TestConnectionChangeCallback(t *testing.T) {
	srv := sseServer(t, nil)
	t.Cleanup(srv.Close)

	states := make(chan bool, 8)

	c := newTestClient(t, srv.URL)
	c.OnConnectionChange(func(connected bool) { states <- connected })
	c.Connect("sess-1")

	select {
	case st := <-states:
		assert.True(t, st)
	case <-time.After(2 * time.Second):
		t.Fatal("no connected notification")
	}

	srv.CloseClientConnections()
	select {
	case st := <-states:
		assert.False(t, st)
	case <-time.After(2 * time.Second):
		t.Fatal("no disconnected notification")
	}
}

func TestAuthorizationHeaderReadFresh(t *testing.T) {
	headers := make(chan string, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers <- r.Header.Get("Authorization")
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	token := &rotatingToken{}
	token.value.Store("tok-1")

	c := New(srv.URL, token, nil)
	c.SetReconnectDelay(10 * time.Millisecond)
	defer c.Disconnect()
	c.Connect("sess-1")

	require.Equal(t, "Bearer tok-1", <-headers)

	token.value.Store("tok-2")
	require.Eventually(t, func() bool {
		select {
		case h := <-headers:
			return h == "Bearer tok-2"
		default:
			return false
		}
	}, 2*time.Second, 5*time.Millisecond)
}

type rotatingToken struct {
	value atomic.Value
}

func (r *rotatingToken) Token() string {
	if v, ok := r.value.Load().(string); ok {
		return v
	}
	return ""
}
