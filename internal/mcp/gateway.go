// ABOUTME: HTTP client for the backend tool surface: discovery and generic invocation.
// ABOUTME: Catalog reads are safely retryable; a shared busy flag tracks in-flight calls.

package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/kunjal/agent-console/internal/auth"
)

// Gateway invokes named backend operations over HTTP, independently of the
// conversational stream.
//
// Every call sets a shared busy flag for its duration and records the last
// transport error. Overlapping calls share the single flag (last writer wins
// on completion); callers must treat it as "gateway busy", not as per-call
// status.
type Gateway struct {
	baseURL string
	tokens  auth.TokenProvider
	httpc   *http.Client
	logger  *slog.Logger

	mu      sync.Mutex
	loading bool
	lastErr string
}

// New creates a tool gateway for the given backend base URL. The token
// provider is consulted fresh on every call. Pass nil logger for the default.
func New(baseURL string, tokens auth.TokenProvider, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		tokens:  tokens,
		httpc:   &http.Client{},
		logger:  logger.With("component", "mcp"),
	}
}

// Busy reports whether a gateway call is currently in flight.
func (g *Gateway) Busy() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.loading
}

// LastError returns the message of the most recent failed call, or "" if the
// most recent call succeeded.
func (g *Gateway) LastError() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastErr
}

// ListTools fetches the tool catalog.
func (g *Gateway) ListTools(ctx context.Context) ([]Tool, error) {
	var out struct {
		Tools []Tool `json:"tools"`
	}
	if err := g.call(ctx, http.MethodGet, "/api/mcp/tools", nil, &out); err != nil {
		return nil, err
	}
	return out.Tools, nil
}

// ExecuteTool invokes a named tool with the given parameters. Backend
// rejections come back as a ToolResult with Success=false; only transport
// and protocol failures are returned as errors.
func (g *Gateway) ExecuteTool(ctx context.Context, toolName string, params map[string]any) (ToolResult, error) {
	if params == nil {
		params = map[string]any{}
	}
	body := struct {
		ToolName string         `json:"tool_name"`
		Params   map[string]any `json:"params"`
	}{ToolName: toolName, Params: params}

	var result ToolResult
	if err := g.call(ctx, http.MethodPost, "/api/mcp/tools/execute", body, &result); err != nil {
		return ToolResult{}, err
	}
	return result, nil
}

// ListResources fetches the resource catalog.
func (g *Gateway) ListResources(ctx context.Context) ([]Resource, error) {
	var out struct {
		Resources []Resource `json:"resources"`
	}
	if err := g.call(ctx, http.MethodGet, "/api/mcp/resources", nil, &out); err != nil {
		return nil, err
	}
	return out.Resources, nil
}

// GetResource fetches one resource by URI.
func (g *Gateway) GetResource(ctx context.Context, uri string) (ResourceData, error) {
	var out ResourceData
	path := "/api/mcp/resources/" + url.PathEscape(uri)
	if err := g.call(ctx, http.MethodGet, path, nil, &out); err != nil {
		return ResourceData{}, err
	}
	return out, nil
}

// ListPrompts fetches the prompt catalog.
func (g *Gateway) ListPrompts(ctx context.Context) ([]Prompt, error) {
	var out struct {
		Prompts []Prompt `json:"prompts"`
	}
	if err := g.call(ctx, http.MethodGet, "/api/mcp/prompts", nil, &out); err != nil {
		return nil, err
	}
	return out.Prompts, nil
}

// GetPrompt renders a named prompt with the given parameters.
func (g *Gateway) GetPrompt(ctx context.Context, promptName string, params map[string]any) (PromptData, error) {
	if params == nil {
		params = map[string]any{}
	}
	var out PromptData
	path := "/api/mcp/prompts/" + url.PathEscape(promptName)
	if err := g.call(ctx, http.MethodPost, path, params, &out); err != nil {
		return PromptData{}, err
	}
	return out, nil
}

// CheckHealth fetches the tool service health summary.
func (g *Gateway) CheckHealth(ctx context.Context) (Health, error) {
	var out Health
	if err := g.call(ctx, http.MethodGet, "/api/mcp/health", nil, &out); err != nil {
		return Health{}, err
	}
	return out, nil
}

// call performs one authenticated JSON round trip and maintains the shared
// busy flag and last-error message.
func (g *Gateway) call(ctx context.Context, method, path string, body, out any) error {
	g.begin()
	err := g.do(ctx, method, path, body, out)
	g.finish(err)
	return err
}

func (g *Gateway) begin() {
	g.mu.Lock()
	g.loading = true
	g.lastErr = ""
	g.mu.Unlock()
}

func (g *Gateway) finish(err error) {
	g.mu.Lock()
	g.loading = false
	if err != nil {
		g.lastErr = err.Error()
	}
	g.mu.Unlock()
	if err != nil {
		g.logger.Warn("gateway call failed", "error", err)
	}
}

func (g *Gateway) do(ctx context.Context, method, path string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token := g.tokens.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := g.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("server returned status %d", resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("parsing response: %w", err)
		}
	}
	return nil
}
