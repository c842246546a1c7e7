// ABOUTME: Bearer credential handling for the agent console and stub backend.
// ABOUTME: TokenProvider supplies outgoing credentials; JWTVerifier mints and checks HS256 tokens.

// Package auth provides the credential plumbing shared by the console client
// and the stub backend.
//
// The client side speaks through TokenProvider: an injected source of the
// current bearer token, consulted fresh on every outgoing call so that token
// rotation takes effect immediately. The stub server side uses JWTVerifier to
// mint short-lived HS256 tokens for development and to validate the
// Authorization header on incoming requests.
package auth
