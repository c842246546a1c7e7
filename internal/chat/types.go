// ABOUTME: Conversation data model: messages, approval requests, and observable state.
// ABOUTME: Messages are immutable once appended; insertion order is display order.

package chat

import "time"

// Role identifies the author of a message.
type Role string

// Message roles
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is one entry in the conversation log. IDs are generated client-side
// for locally authored messages and taken from the server for streamed ones.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ApprovalKind classifies what the human is being asked for.
type ApprovalKind string

// Approval kinds
const (
	KindConfirmation ApprovalKind = "confirmation"
	KindCancellation ApprovalKind = "cancellation"
	KindInput        ApprovalKind = "input"
)

// Approval is a pending human decision. At most one exists per session; a
// new approval event replaces any previous one.
type Approval struct {
	ID          string       `json:"id"`
	Message     string       `json:"message"`
	Kind        ApprovalKind `json:"type"`
	Placeholder string       `json:"placeholder,omitempty"`
}

// State is a snapshot of the conversation, safe for the caller to keep.
// User input must be refused whenever IsTyping is true or PendingApproval is
// non-nil; that check is the approval gate.
type State struct {
	Messages        []Message
	IsTyping        bool
	PendingApproval *Approval
	IsConnected     bool
}

// InputBlocked reports whether the approval gate currently refuses new user
// input.
func (s State) InputBlocked() bool {
	return s.IsTyping || s.PendingApproval != nil
}
