// ABOUTME: Package doc for stream.
// ABOUTME: Reconnecting SSE subscription with per-type single-slot handlers.

// Package stream implements the client side of the server-push event channel.
//
// One Client owns one subscription, keyed by session identity. The lifecycle
// is Idle -> Connecting -> Open -> (Error -> ReconnectPending -> Connecting)*
// -> Closed; Closed is reached only through Disconnect, never through
// transport errors, which instead trigger a single fixed-delay reconnect.
package stream
