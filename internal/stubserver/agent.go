// ABOUTME: Keyword-driven scripted agent for the stub backend
// ABOUTME: Emits message, approval, error, and done events; no LLM involved

package stubserver

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

var orderIDPattern = regexp.MustCompile(`ORD-\d+`)

type assistantMessage struct {
	ID        string `json:"id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

// Agent turns chat messages into tool calls and stream events.
type Agent struct {
	tools    *Tools
	sessions *SessionManager
	logger   *slog.Logger
}

// NewAgent creates the scripted agent.
func NewAgent(tools *Tools, sessions *SessionManager, logger *slog.Logger) *Agent {
	if logger == nil {
		logger = slog.Default()
	}
	return &Agent{
		tools:    tools,
		sessions: sessions,
		logger:   logger.With("component", "agent"),
	}
}

// HandleMessage processes one user message and emits the reply events.
// A cancellation request leaves the session waiting on an approval and
// emits no done event until the decision arrives.
func (a *Agent) HandleMessage(sess *Session, text string) {
	sess.record("user: " + text)
	lower := strings.ToLower(text)
	orderID := orderIDPattern.FindString(text)

	switch {
	case strings.Contains(lower, "cancel") && orderID != "":
		a.startCancellation(sess, orderID)
	case orderID != "":
		a.reply(sess, a.orderStatusReply(sess.UserID, orderID))
	case strings.Contains(lower, "order"):
		a.reply(sess, a.ordersReply(sess.UserID))
	case strings.Contains(lower, "hello") || strings.Contains(lower, "hi"):
		a.reply(sess, "Hello! I can help you check on your orders or cancel one. Try asking about ORD-001.")
	default:
		a.reply(sess, fmt.Sprintf("I heard: %q. Ask me about your orders, or say \"cancel ORD-001\" to start a cancellation.", text))
	}
}

// HandleApproval resolves the session's pending cancellation with the
// user's decision. userInput carries the verification code.
func (a *Agent) HandleApproval(sess *Session, approved bool, userInput string) {
	pending := sess.takePending()
	if pending == nil {
		a.sessions.Emit(sess.ID, "error", map[string]any{"message": "No pending approval"})
		return
	}

	if !approved {
		a.reply(sess, fmt.Sprintf("Okay, I won't cancel order %s. Is there anything else I can help with?", pending.OrderID))
		return
	}

	result := a.tools.ConfirmCancellation(sess.UserID, pending.ApprovalID, userInput)
	if !result.Success {
		// Put the approval back so the user can retry with another code.
		sess.setPending(pending)
		a.reply(sess, fmt.Sprintf("That didn't work: %s. Say \"cancel %s\" to request a new code.", result.Error, pending.OrderID))
		return
	}
	a.reply(sess, fmt.Sprintf("%s. A refund of $%.2f will be issued to your original payment method.", result.Message, result.RefundAmount))
}

func (a *Agent) startCancellation(sess *Session, orderID string) {
	req := a.tools.RequestCancellation(sess.UserID, orderID, "")
	if !req.Success {
		a.reply(sess, fmt.Sprintf("I couldn't start that cancellation: %s", req.Error))
		return
	}

	sess.setPending(&pendingCancellation{OrderID: orderID, ApprovalID: req.ApprovalID})
	a.sessions.Emit(sess.ID, "approval", map[string]any{
		"id": sess.ID,
		"message": fmt.Sprintf("A verification code has been sent to your email address for order %s. "+
			"Please check your email (including spam/junk folder) and enter the 6-digit code below to confirm the cancellation.", orderID),
		"type":        "input",
		"placeholder": verificationPlaceholder,
	})
	// No done event: the conversation waits on the approval decision.
}

func (a *Agent) orderStatusReply(userID, orderID string) string {
	details := a.tools.GetOrderDetails(userID, orderID)
	if !details.Success {
		return fmt.Sprintf("I couldn't look up %s: %s", orderID, details.Error)
	}
	o := details.Order
	return fmt.Sprintf("Order %s (%s) is currently %s. Total: $%.2f, ordered on %s.",
		o.OrderID, strings.Join(o.Items, ", "), o.Status, o.Total, o.Date)
}

func (a *Agent) ordersReply(userID string) string {
	list := a.tools.ListUserOrders(userID, "", 10)
	if !list.Success {
		return "I couldn't fetch your orders right now."
	}
	if list.Count == 0 {
		return "You don't have any orders yet."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "You have %d orders:\n", list.Count)
	for _, o := range list.Orders {
		fmt.Fprintf(&b, "- %s: %s ($%.2f, %d item(s))\n", o.OrderID, o.Status, o.Total, o.ItemCount)
	}
	return strings.TrimRight(b.String(), "\n")
}

func (a *Agent) reply(sess *Session, content string) {
	sess.record("assistant: " + content)
	a.sessions.Emit(sess.ID, "message", assistantMessage{
		ID:        uuid.New().String(),
		Role:      "assistant",
		Content:   content,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	a.sessions.Emit(sess.ID, "done", map[string]any{})
}
