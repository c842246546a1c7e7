// ABOUTME: Package doc for chat.
// ABOUTME: Approval-gated conversation state machine driven by user actions and stream events.

// Package chat owns the conversational session: the message log, the typing
// flag, the pending approval, and the connectivity flag.
//
// The approval gate is the invariant that new user input is withheld while a
// human decision or an agent turn is outstanding. Approval decisions are
// correlated by session identity rather than approval id; the backend is
// assumed to track at most one outstanding approval per session.
package chat
