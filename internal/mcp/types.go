// ABOUTME: Wire types for the MCP tool gateway: catalog entries and invocation results.
// ABOUTME: Shared by the client gateway and the stub backend so both sides agree on shapes.

package mcp

import "encoding/json"

// Tool describes one invocable backend operation.
type Tool struct {
	Name        string               `json:"name"`
	Description string               `json:"description"`
	Parameters  map[string]ToolParam `json:"parameters"`
}

// ToolParam describes one named tool parameter.
type ToolParam struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
	Default     any    `json:"default,omitempty"`
}

// ToolResult is the uniform invocation result: success flag plus either a
// raw result payload or an error message. Backend rejections are carried
// here as data, never as Go errors.
type ToolResult struct {
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Resource is a read-only catalog entry addressable by URI.
type Resource struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description"`
	MIMEType    string `json:"mime_type"`
}

// ResourceData is the result of fetching one resource.
type ResourceData struct {
	Success bool   `json:"success"`
	Data    string `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Prompt is a parameterized prompt template in the catalog.
type Prompt struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Arguments   []PromptArg `json:"arguments"`
}

// PromptArg describes one prompt argument.
type PromptArg struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Required    bool   `json:"required"`
	Description string `json:"description"`
}

// PromptData is the result of rendering one prompt.
type PromptData struct {
	Success bool   `json:"success"`
	Prompt  string `json:"prompt,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Health summarizes the gateway-side service status.
type Health struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}
