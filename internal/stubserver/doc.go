// ABOUTME: Package documentation for stubserver
// ABOUTME: Describes the self-contained development backend

// Package stubserver implements the backend side of the console's wire
// contract for local development and end-to-end tests: the chat and
// approval endpoints, the per-session SSE event stream, and the tool
// gateway endpoints backed by a SQLite order store.
//
// The agent is scripted rather than model-driven: it answers order
// questions from the store and runs the cancellation approval flow with
// six-digit verification codes.
package stubserver
