// ABOUTME: Order tools, resources, and prompts served by the stub backend
// ABOUTME: Implements the cancellation approval flow with one-shot verification codes

package stubserver

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/kunjal/agent-console/internal/mcp"
)

const verificationPlaceholder = "Enter verification code from email"

type approvalState struct {
	OrderID string
	Code    string
	UserID  string
	Status  string // pending, approved
}

// Tools executes the order tools against the store and tracks pending
// cancellation approvals.
type Tools struct {
	mu        sync.Mutex
	store     *OrderStore
	approvals map[string]*approvalState
	logger    *slog.Logger
}

// NewTools creates the tool executor backed by the given store.
func NewTools(store *OrderStore, logger *slog.Logger) *Tools {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tools{
		store:     store,
		approvals: make(map[string]*approvalState),
		logger:    logger.With("component", "tools"),
	}
}

// PendingApprovals returns the number of approvals awaiting confirmation.
func (t *Tools) PendingApprovals() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, a := range t.approvals {
		if a.Status == "pending" {
			n++
		}
	}
	return n
}

// Execute dispatches a named tool for the given user. Unknown tool names
// return an error; tool-level rejections come back inside the result.
func (t *Tools) Execute(userID, toolName string, params map[string]any) (any, error) {
	switch toolName {
	case "list_user_orders":
		limit := 10
		if v, ok := params["limit"].(float64); ok {
			limit = int(v)
		}
		filter, _ := params["status_filter"].(string)
		return t.ListUserOrders(userID, filter, limit), nil
	case "get_order_details":
		orderID, _ := params["order_id"].(string)
		return t.GetOrderDetails(userID, orderID), nil
	case "request_order_cancellation":
		orderID, _ := params["order_id"].(string)
		reason, _ := params["reason"].(string)
		return t.RequestCancellation(userID, orderID, reason), nil
	case "confirm_cancellation":
		approvalID, _ := params["approval_id"].(string)
		code, _ := params["verification_code"].(string)
		return t.ConfirmCancellation(userID, approvalID, code), nil
	default:
		return nil, fmt.Errorf("tool %s not found", toolName)
	}
}

// ListUserOrders returns up to limit order summaries for the user.
func (t *Tools) ListUserOrders(userID, statusFilter string, limit int) mcp.OrdersList {
	orders, err := t.store.List(userID, statusFilter, limit)
	if err != nil {
		t.logger.Error("listing orders failed", "error", err)
		return mcp.OrdersList{Error: "Failed to list orders"}
	}

	out := mcp.OrdersList{Success: true, Orders: []mcp.OrderSummary{}, Count: len(orders)}
	for _, o := range orders {
		out.Orders = append(out.Orders, mcp.OrderSummary{
			OrderID:      o.OrderID,
			Status:       o.Status,
			Total:        o.Total,
			Date:         o.Date.Format("2006-01-02T15:04:05"),
			CustomerName: o.CustomerName,
			ItemCount:    len(o.Items),
		})
	}
	return out
}

// GetOrderDetails returns the full order record for the user.
func (t *Tools) GetOrderDetails(userID, orderID string) mcp.OrderDetails {
	o, err := t.store.Get(userID, orderID)
	if errors.Is(err, ErrOrderNotFound) {
		return mcp.OrderDetails{Error: "Order not found"}
	}
	if err != nil {
		t.logger.Error("fetching order failed", "error", err)
		return mcp.OrderDetails{Error: "Failed to fetch order"}
	}
	return mcp.OrderDetails{Success: true, Order: toWireOrder(o)}
}

// RequestCancellation starts the approval flow: a six-digit verification
// code is issued for the order and an approval id is returned. Only
// processing and shipped orders can be cancelled.
func (t *Tools) RequestCancellation(userID, orderID, reason string) mcp.CancellationRequest {
	o, err := t.store.Get(userID, orderID)
	if errors.Is(err, ErrOrderNotFound) {
		return mcp.CancellationRequest{Error: "Order not found"}
	}
	if err != nil {
		t.logger.Error("fetching order failed", "error", err)
		return mcp.CancellationRequest{Error: "Failed to fetch order"}
	}

	if o.Status == mcp.StatusCancelled {
		return mcp.CancellationRequest{Error: "Order already cancelled"}
	}
	if o.Status != mcp.StatusProcessing && o.Status != mcp.StatusShipped {
		return mcp.CancellationRequest{Error: fmt.Sprintf("Cannot cancel order with status '%s'", o.Status)}
	}

	code := generateCode()
	if err := t.store.AddVerificationCode(userID, orderID, code); err != nil {
		t.logger.Error("storing verification code failed", "error", err)
		return mcp.CancellationRequest{Error: "Failed to issue verification code"}
	}

	approvalID := uuid.New().String()
	t.mu.Lock()
	t.approvals[approvalID] = &approvalState{
		OrderID: orderID,
		Code:    code,
		UserID:  userID,
		Status:  "pending",
	}
	t.mu.Unlock()

	t.logger.Info("cancellation requested", "order_id", orderID, "approval_id", approvalID)
	return mcp.CancellationRequest{
		Success:          true,
		RequiresApproval: true,
		ApprovalID:       approvalID,
		Message:          "Verification code sent to your email. Please use the confirm_cancellation tool with the code.",
		OrderID:          orderID,
	}
}

// ConfirmCancellation redeems a verification code against a pending
// approval and cancels the order. Each approval completes at most once.
func (t *Tools) ConfirmCancellation(userID, approvalID, code string) mcp.CancellationConfirm {
	t.mu.Lock()
	approval, ok := t.approvals[approvalID]
	if !ok {
		t.mu.Unlock()
		return mcp.CancellationConfirm{Error: "Invalid approval ID"}
	}
	if approval.Status != "pending" {
		t.mu.Unlock()
		return mcp.CancellationConfirm{Error: "Approval already processed"}
	}
	if approval.UserID != userID {
		t.mu.Unlock()
		return mcp.CancellationConfirm{Error: "Unauthorized"}
	}
	orderID := approval.OrderID
	t.mu.Unlock()

	o, err := t.store.Cancel(userID, orderID, code)
	if errors.Is(err, ErrInvalidCode) {
		return mcp.CancellationConfirm{Error: "Invalid verification code"}
	}
	if errors.Is(err, ErrOrderNotFound) {
		return mcp.CancellationConfirm{Error: "Order not found"}
	}
	if err != nil {
		t.logger.Error("cancelling order failed", "error", err)
		return mcp.CancellationConfirm{Error: "Failed to cancel order"}
	}

	t.mu.Lock()
	approval.Status = "approved"
	t.mu.Unlock()

	return mcp.CancellationConfirm{
		Success:      true,
		Message:      fmt.Sprintf("Order %s cancelled successfully", orderID),
		RefundAmount: o.Total,
		OrderID:      orderID,
	}
}

func toWireOrder(o StoredOrder) mcp.Order {
	return mcp.Order{
		OrderID:           o.OrderID,
		CustomerName:      o.CustomerName,
		Status:            o.Status,
		Items:             o.Items,
		Total:             o.Total,
		Date:              o.Date.Format("2006-01-02T15:04:05"),
		VerificationCodes: o.VerificationCodes,
	}
}

// generateCode returns six random digits.
func generateCode() string {
	buf := make([]byte, 6)
	rand.Read(buf)
	digits := make([]byte, 6)
	for i, b := range buf {
		digits[i] = '0' + b%10
	}
	return string(digits)
}

// Catalog returns the tool metadata served at /api/mcp/tools.
func (t *Tools) Catalog() []mcp.Tool {
	return []mcp.Tool{
		{
			Name:        "list_user_orders",
			Description: "List all orders for the current user with optional filtering",
			Parameters: map[string]mcp.ToolParam{
				"status_filter": {Type: "string", Description: "Optional filter by status (e.g., 'processing', 'shipped', 'cancelled')"},
				"limit":         {Type: "integer", Description: "Maximum number of orders to return", Default: 10},
			},
		},
		{
			Name:        "get_order_details",
			Description: "Get complete details of an order including items, shipping info, and history",
			Parameters: map[string]mcp.ToolParam{
				"order_id": {Type: "string", Description: "Order ID (e.g., ORD-001)", Required: true},
			},
		},
		{
			Name:        "request_order_cancellation",
			Description: "Request order cancellation (generates verification code and requires approval)",
			Parameters: map[string]mcp.ToolParam{
				"order_id": {Type: "string", Description: "Order ID", Required: true},
				"reason":   {Type: "string", Description: "Optional reason for cancellation"},
			},
		},
		{
			Name:        "confirm_cancellation",
			Description: "Confirm cancellation with verification code",
			Parameters: map[string]mcp.ToolParam{
				"approval_id":       {Type: "string", Description: "Approval ID from request_order_cancellation", Required: true},
				"verification_code": {Type: "string", Description: "The 6-digit verification code", Required: true},
			},
		},
	}
}

// Resources returns the resource metadata served at /api/mcp/resources.
func (t *Tools) Resources() []mcp.Resource {
	return []mcp.Resource{
		{URI: "orders://{user_id}", Name: "User Orders", Description: "All orders for a specific user", MIMEType: "application/json"},
		{URI: "order://{order_id}", Name: "Order Details", Description: "Detailed information about a specific order", MIMEType: "application/json"},
	}
}

// ReadResource resolves a resource URI and returns its JSON payload.
func (t *Tools) ReadResource(uri string) (string, error) {
	switch {
	case strings.HasPrefix(uri, "orders://"):
		userID := strings.TrimPrefix(uri, "orders://")
		orders, err := t.store.List(userID, "", 100)
		if err != nil {
			return "", fmt.Errorf("listing orders: %w", err)
		}
		type summary struct {
			OrderID string  `json:"order_id"`
			Status  string  `json:"status"`
			Total   float64 `json:"total"`
			Date    string  `json:"date"`
		}
		payload := struct {
			UserID string    `json:"user_id"`
			Orders []summary `json:"orders"`
		}{UserID: userID, Orders: []summary{}}
		for _, o := range orders {
			payload.Orders = append(payload.Orders, summary{
				OrderID: o.OrderID, Status: o.Status, Total: o.Total,
				Date: o.Date.Format("2006-01-02T15:04:05"),
			})
		}
		data, err := json.MarshalIndent(payload, "", "  ")
		if err != nil {
			return "", err
		}
		return string(data), nil
	case strings.HasPrefix(uri, "order://"):
		orderID := strings.TrimPrefix(uri, "order://")
		o, err := t.store.GetAny(orderID)
		if errors.Is(err, ErrOrderNotFound) {
			return `{"error": "Order not found"}`, nil
		}
		if err != nil {
			return "", err
		}
		data, err := json.MarshalIndent(toWireOrder(o), "", "  ")
		if err != nil {
			return "", err
		}
		return string(data), nil
	default:
		return "", fmt.Errorf("resource not found: %s", uri)
	}
}

// Prompts returns the prompt metadata served at /api/mcp/prompts.
func (t *Tools) Prompts() []mcp.Prompt {
	return []mcp.Prompt{
		{
			Name:        "check_status_prompt",
			Description: "Generate a prompt for checking order status",
			Arguments: []mcp.PromptArg{
				{Name: "order_id", Type: "string", Required: true, Description: "Order ID to check"},
			},
		},
		{
			Name:        "cancel_workflow_prompt",
			Description: "Generate a prompt for the cancellation workflow",
			Arguments: []mcp.PromptArg{
				{Name: "order_id", Type: "string", Required: true, Description: "Order ID to cancel"},
				{Name: "reason", Type: "string", Required: false, Description: "Optional reason for cancellation"},
			},
		},
	}
}

// RenderPrompt expands a named prompt template with its parameters.
func (t *Tools) RenderPrompt(name string, params map[string]any) (string, error) {
	orderID, _ := params["order_id"].(string)
	switch name {
	case "check_status_prompt":
		return fmt.Sprintf("The user wants to check the status of order %s.\n\n"+
			"Please use the get_order_details tool to:\n"+
			"1. Retrieve the order information\n"+
			"2. Summarize the current status\n"+
			"3. List the items in the order\n"+
			"4. Provide the total amount\n"+
			"5. Mention any relevant delivery information\n\n"+
			"Be friendly and professional in your response.", orderID), nil
	case "cancel_workflow_prompt":
		reasonText := ""
		if reason, _ := params["reason"].(string); reason != "" {
			reasonText = " Reason: " + reason
		}
		return fmt.Sprintf("The user wants to cancel order %s.%s\n\n"+
			"Follow this workflow:\n"+
			"1. Use get_order_details to verify the order exists and can be cancelled\n"+
			"2. Use request_order_cancellation to initiate the cancellation process\n"+
			"3. Inform the user that a verification code has been sent to their email\n"+
			"4. Wait for the user to provide the verification code\n"+
			"5. Use confirm_cancellation with the approval_id and verification_code\n\n"+
			"Be empathetic and helpful throughout the process.", orderID, reasonText), nil
	default:
		return "", fmt.Errorf("prompt %s not found", name)
	}
}
