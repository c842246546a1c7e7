// ABOUTME: Typed convenience wrappers over ExecuteTool for the order operations.
// ABOUTME: Includes the two-phase cancellation flow: request issues a code, confirm redeems it.

package mcp

import (
	"context"
	"encoding/json"
)

// Order statuses
const (
	StatusProcessing = "processing"
	StatusShipped    = "shipped"
	StatusDelivered  = "delivered"
	StatusCancelled  = "cancelled"
)

// OrderSummary is one row of a ListOrders result.
type OrderSummary struct {
	OrderID      string  `json:"order_id"`
	Status       string  `json:"status"`
	Total        float64 `json:"total"`
	Date         string  `json:"date"`
	CustomerName string  `json:"customer_name"`
	ItemCount    int     `json:"item_count"`
}

// OrdersList is the result of the list_user_orders tool.
type OrdersList struct {
	Success bool           `json:"success"`
	Orders  []OrderSummary `json:"orders"`
	Count   int            `json:"count"`
	Error   string         `json:"error,omitempty"`
}

// Order carries full order details, including outstanding verification codes.
type Order struct {
	OrderID           string   `json:"order_id"`
	CustomerName      string   `json:"customer_name"`
	Status            string   `json:"status"`
	Items             []string `json:"items"`
	Total             float64  `json:"total"`
	Date              string   `json:"date"`
	VerificationCodes []string `json:"verification_codes"`
}

// OrderDetails is the result of the get_order_details tool.
type OrderDetails struct {
	Success bool   `json:"success"`
	Order   Order  `json:"order"`
	Error   string `json:"error,omitempty"`
}

// CancellationRequest is the first-phase result: a verification artifact was
// issued, nothing has been cancelled yet.
type CancellationRequest struct {
	Success          bool   `json:"success"`
	RequiresApproval bool   `json:"requires_approval"`
	ApprovalID       string `json:"approval_id"`
	Message          string `json:"message"`
	OrderID          string `json:"order_id"`
	Error            string `json:"error,omitempty"`
}

// CancellationConfirm is the second-phase result: the code was redeemed and
// the order cancelled, or the attempt was rejected.
type CancellationConfirm struct {
	Success      bool    `json:"success"`
	Message      string  `json:"message"`
	RefundAmount float64 `json:"refund_amount"`
	OrderID      string  `json:"order_id"`
	Error        string  `json:"error,omitempty"`
}

// ListOrders fetches up to limit order summaries, optionally filtered by
// status.
func (g *Gateway) ListOrders(ctx context.Context, limit int, statusFilter string) (OrdersList, error) {
	params := map[string]any{"limit": limit}
	if statusFilter != "" {
		params["status_filter"] = statusFilter
	}
	var out OrdersList
	err := g.executeInto(ctx, "list_user_orders", params, &out)
	return out, err
}

// GetOrderDetails fetches full details for one order.
func (g *Gateway) GetOrderDetails(ctx context.Context, orderID string) (OrderDetails, error) {
	var out OrderDetails
	err := g.executeInto(ctx, "get_order_details", map[string]any{"order_id": orderID}, &out)
	return out, err
}

// RequestCancellation starts the two-phase cancellation flow. The backend
// issues a verification code and returns an approval id; no order state
// changes until ConfirmCancellation redeems the code.
func (g *Gateway) RequestCancellation(ctx context.Context, orderID, reason string) (CancellationRequest, error) {
	params := map[string]any{"order_id": orderID}
	if reason != "" {
		params["reason"] = reason
	}
	var out CancellationRequest
	err := g.executeInto(ctx, "request_order_cancellation", params, &out)
	return out, err
}

// ConfirmCancellation completes the flow. A mismatched or expired code is
// surfaced as Success=false with a populated Error, never as a Go error.
func (g *Gateway) ConfirmCancellation(ctx context.Context, approvalID, verificationCode string) (CancellationConfirm, error) {
	params := map[string]any{
		"approval_id":       approvalID,
		"verification_code": verificationCode,
	}
	var out CancellationConfirm
	err := g.executeInto(ctx, "confirm_cancellation", params, &out)
	return out, err
}

// executeInto runs a tool and decodes its result payload into out, which must
// carry Success/Error fields mirroring the tool's own result shape. Backend
// rejections land in those fields; only transport and protocol failures are
// returned as errors.
func (g *Gateway) executeInto(ctx context.Context, toolName string, params map[string]any, out any) error {
	res, err := g.ExecuteTool(ctx, toolName, params)
	if err != nil {
		return err
	}
	if !res.Success {
		// Shape the rejection into the typed result.
		payload, _ := json.Marshal(map[string]any{"success": false, "error": res.Error})
		return json.Unmarshal(payload, out)
	}
	if len(res.Result) == 0 {
		return nil
	}
	return json.Unmarshal(res.Result, out)
}
