// ABOUTME: Tests for the tool gateway against a scripted HTTP backend.
// ABOUTME: Covers catalog reads, invocation result shaping, busy flag, and error capture.

package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kunjal/agent-console/internal/auth"
)

func newTestGateway(t *testing.T, baseURL string) *Gateway {
	t.Helper()
	return New(baseURL, auth.Static("test-token"), nil)
}

func TestListTools(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/mcp/tools", r.URL.Path)
		require.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(map[string]any{
			"tools": []map[string]any{
				{"name": "list_user_orders", "description": "List orders"},
				{"name": "get_order_details", "description": "Order details"},
			},
		})
	}))
	defer srv.Close()

	g := newTestGateway(t, srv.URL)
	tools, err := g.ListTools(context.Background())
	require.NoError(t, err)
	require.Len(t, tools, 2)
	assert.Equal(t, "list_user_orders", tools[0].Name)
	assert.Empty(t, g.LastError())
}

func TestExecuteToolBackendRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ToolName string         `json:"tool_name"`
			Params   map[string]any `json:"params"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "confirm_cancellation", req.ToolName)
		json.NewEncoder(w).Encode(map[string]any{"success": false, "error": "Invalid verification code"})
	}))
	defer srv.Close()

	g := newTestGateway(t, srv.URL)
	res, err := g.ExecuteTool(context.Background(), "confirm_cancellation", map[string]any{"verification_code": "000000"})
	require.NoError(t, err, "backend rejection is a result, not an error")
	assert.False(t, res.Success)
	assert.Equal(t, "Invalid verification code", res.Error)
}

func TestExecuteToolTransportFailureRecorded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	g := newTestGateway(t, srv.URL)
	_, err := g.ExecuteTool(context.Background(), "anything", nil)
	require.Error(t, err)
	assert.Contains(t, g.LastError(), "503")
	assert.False(t, g.Busy())
}

func TestBusyFlagDuringCall(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		json.NewEncoder(w).Encode(map[string]any{"tools": []any{}})
	}))
	defer srv.Close()

	g := newTestGateway(t, srv.URL)
	done := make(chan struct{})
	go func() {
		g.ListTools(context.Background())
		close(done)
	}()

	require.Eventually(t, g.Busy, 2*time.Second, 5*time.Millisecond)
	close(release)
	<-done
	assert.False(t, g.Busy())
}

func TestListResourcesAndPrompts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/mcp/resources":
			json.NewEncoder(w).Encode(map[string]any{
				"resources": []map[string]any{
					{"uri": "orders://{user_id}", "name": "User Orders", "mime_type": "application/json"},
				},
			})
		case "/api/mcp/prompts":
			json.NewEncoder(w).Encode(map[string]any{
				"prompts": []map[string]any{
					{"name": "check_status_prompt", "description": "Status prompt"},
				},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	g := newTestGateway(t, srv.URL)

	resources, err := g.ListResources(context.Background())
	require.NoError(t, err)
	require.Len(t, resources, 1)
	assert.Equal(t, "application/json", resources[0].MIMEType)

	prompts, err := g.ListPrompts(context.Background())
	require.NoError(t, err)
	require.Len(t, prompts, 1)
	assert.Equal(t, "check_status_prompt", prompts[0].Name)
}

func TestGetPrompt(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/mcp/prompts/check_status_prompt", r.URL.Path)
		var params map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&params))
		assert.Equal(t, "ORD-001", params["order_id"])
		json.NewEncoder(w).Encode(map[string]any{"success": true, "prompt": "Check order ORD-001."})
	}))
	defer srv.Close()

	g := newTestGateway(t, srv.URL)
	data, err := g.GetPrompt(context.Background(), "check_status_prompt", map[string]any{"order_id": "ORD-001"})
	require.NoError(t, err)
	assert.True(t, data.Success)
	assert.Contains(t, data.Prompt, "ORD-001")
}

func TestCheckHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"status": "ok", "message": "4 tools"})
	}))
	defer srv.Close()

	g := newTestGateway(t, srv.URL)
	h, err := g.CheckHealth(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", h.Status)
}

func TestListOrdersShaping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ToolName string         `json:"tool_name"`
			Params   map[string]any `json:"params"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "list_user_orders", req.ToolName)
		assert.Equal(t, float64(10), req.Params["limit"])
		assert.Equal(t, "processing", req.Params["status_filter"])

		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"result": map[string]any{
				"success": true,
				"orders": []map[string]any{
					{"order_id": "ORD-001", "status": "processing", "total": 1299.99, "item_count": 1},
				},
				"count": 1,
			},
		})
	}))
	defer srv.Close()

	g := newTestGateway(t, srv.URL)
	list, err := g.ListOrders(context.Background(), 10, "processing")
	require.NoError(t, err)
	assert.True(t, list.Success)
	require.Len(t, list.Orders, 1)
	assert.Equal(t, "ORD-001", list.Orders[0].OrderID)
	assert.GreaterOrEqual(t, list.Orders[0].Total, 0.0)
	assert.Equal(t, 1, list.Count)
}

func TestConfirmCancellationBackendFailureShaped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"result":  map[string]any{"success": false, "error": "Invalid verification code"},
		})
	}))
	defer srv.Close()

	g := newTestGateway(t, srv.URL)
	res, err := g.ConfirmCancellation(context.Background(), "appr-1", "000000")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "Invalid verification code", res.Error)
}
