// ABOUTME: Package doc for mcp.
// ABOUTME: Generic tool discovery/invocation gateway plus typed order wrappers.

// Package mcp implements the client side of the backend tool surface:
// catalog reads (tools, resources, prompts, health), a generic invocation
// call, and thin typed wrappers for the order operations layered on top.
//
// The gateway operates independently of the conversational event stream; no
// ordering is guaranteed between the two.
package mcp
