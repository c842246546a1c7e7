// ABOUTME: HTTP and SSE surface of the stub backend
// ABOUTME: Serves chat, approval, event stream, and tool gateway endpoints

package stubserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/kunjal/agent-console/internal/auth"
)

// keepaliveInterval is how often an idle SSE stream gets a comment frame.
const keepaliveInterval = 30 * time.Second

type userIDKey struct{}

func contextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}

func userIDFromContext(ctx context.Context) string {
	userID, _ := ctx.Value(userIDKey{}).(string)
	return userID
}

// Server wires the stub backend's handlers together.
type Server struct {
	tools     *Tools
	sessions  *SessionManager
	agent     *Agent
	verifier  auth.TokenVerifier
	logger    *slog.Logger
	keepalive time.Duration
}

// NewServer builds the stub backend on top of the given store.
func NewServer(store *OrderStore, verifier auth.TokenVerifier, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	tools := NewTools(store, logger)
	sessions := NewSessionManager(logger)
	return &Server{
		tools:     tools,
		sessions:  sessions,
		agent:     NewAgent(tools, sessions, logger),
		verifier:  verifier,
		logger:    logger.With("component", "stubserver"),
		keepalive: keepaliveInterval,
	}
}

// SetKeepaliveInterval overrides the SSE keepalive cadence. Used by tests.
func (s *Server) SetKeepaliveInterval(d time.Duration) {
	s.keepalive = d
}

// Handler returns the full route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/chat", s.requireAuth(s.handleChat))
	mux.HandleFunc("POST /api/approval", s.requireAuth(s.handleApproval))
	mux.HandleFunc("GET /api/events", s.requireAuth(s.handleEvents))

	mux.HandleFunc("GET /api/mcp/tools", s.requireAuth(s.handleListTools))
	mux.HandleFunc("POST /api/mcp/tools/execute", s.requireAuth(s.handleExecuteTool))
	mux.HandleFunc("GET /api/mcp/resources", s.requireAuth(s.handleListResources))
	mux.HandleFunc("GET /api/mcp/resources/{uri}", s.requireAuth(s.handleGetResource))
	mux.HandleFunc("GET /api/mcp/prompts", s.requireAuth(s.handleListPrompts))
	mux.HandleFunc("POST /api/mcp/prompts/{name}", s.requireAuth(s.handleGetPrompt))
	mux.HandleFunc("GET /api/mcp/health", s.handleHealth)

	return mux
}

// requireAuth verifies the bearer token and stashes the user id on the
// request context.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, errMsg := auth.ExtractBearerToken(r.Header.Get("Authorization"))
		if errMsg != "" {
			s.writeError(w, http.StatusUnauthorized, errMsg)
			return
		}
		userID, err := s.verifier.Verify(token)
		if err != nil {
			s.logger.Warn("token verification failed", "error", err)
			s.writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		ctx := contextWithUserID(r.Context(), userID)
		next(w, r.WithContext(ctx))
	}
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Message   string `json:"message"`
		SessionID string `json:"session_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	userID := userIDFromContext(r.Context())
	var sess *Session
	if req.SessionID != "" {
		sess = s.sessions.Get(req.SessionID)
		if sess == nil {
			s.writeError(w, http.StatusNotFound, "session not found")
			return
		}
	} else {
		sess = s.sessions.Create(userID)
	}

	go s.agent.HandleMessage(sess, req.Message)
	s.writeJSON(w, http.StatusOK, map[string]string{"session_id": sess.ID})
}

func (s *Server) handleApproval(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID        string `json:"id"`
		Approved  bool   `json:"approved"`
		UserInput string `json:"userInput"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sess := s.sessions.Get(req.ID)
	if sess == nil {
		s.writeError(w, http.StatusNotFound, "session not found")
		return
	}

	go s.agent.HandleApproval(sess, req.Approved, req.UserInput)
	s.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	sess := s.sessions.Get(sessionID)
	if sess == nil {
		s.writeError(w, http.StatusNotFound, "session not found")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ticker := time.NewTicker(s.keepalive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-sess.Events():
			payload, err := json.Marshal(ev)
			if err != nil {
				s.logger.Error("marshaling event failed", "error", err)
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		case <-ticker.C:
			fmt.Fprint(w, ":keepalive\n\n")
			flusher.Flush()
		}
	}
}

func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{"tools": s.tools.Catalog()})
}

func (s *Server) handleExecuteTool(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ToolName string         `json:"tool_name"`
		Params   map[string]any `json:"params"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	userID := userIDFromContext(r.Context())
	result, err := s.tools.Execute(userID, req.ToolName, req.Params)
	if err != nil {
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"success": true, "result": result})
}

func (s *Server) handleListResources(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{"resources": s.tools.Resources()})
}

func (s *Server) handleGetResource(w http.ResponseWriter, r *http.Request) {
	uri, err := url.PathUnescape(r.PathValue("uri"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid resource uri")
		return
	}
	data, rerr := s.tools.ReadResource(uri)
	if rerr != nil {
		s.writeJSON(w, http.StatusOK, map[string]any{"success": false, "error": rerr.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": data})
}

func (s *Server) handleListPrompts(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{"prompts": s.tools.Prompts()})
}

func (s *Server) handleGetPrompt(w http.ResponseWriter, r *http.Request) {
	var params map[string]any
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	prompt, err := s.tools.RenderPrompt(r.PathValue("name"), params)
	if err != nil {
		s.writeJSON(w, http.StatusOK, map[string]any{"success": false, "error": err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"success": true, "prompt": prompt})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	msg := fmt.Sprintf("MCP server is running with %d tools, %d resources, %d prompts, and %d pending approvals",
		len(s.tools.Catalog()), len(s.tools.Resources()), len(s.tools.Prompts()), s.tools.PendingApprovals())
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "message": msg})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encoding response failed", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
