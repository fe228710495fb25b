package payments

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Status enumerates the normalised gateway order states.
type Status string

const (
	// StatusCreated indicates the gateway order exists but the buyer has not approved it.
	StatusCreated Status = "created"
	// StatusApproved indicates the buyer approved the order and it can be captured.
	StatusApproved Status = "approved"
	// StatusCompleted indicates funds were captured successfully.
	StatusCompleted Status = "completed"
	// StatusVoided indicates the gateway order was cancelled or expired.
	StatusVoided Status = "voided"
)

// ErrAuthenticityFailed is returned when a webhook signature cannot be verified.
var ErrAuthenticityFailed = errors.New("payments: webhook authenticity verification failed")

// GatewayError describes a failure reported by the payment gateway. Callers
// treat any GatewayError as a dependency failure rather than invalid input.
type GatewayError struct {
	Operation  string
	StatusCode int
	Code       string
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *GatewayError) Error() string {
	if e == nil {
		return "payments: gateway error"
	}
	if e.Code != "" {
		return fmt.Sprintf("payments: %s failed: %s (%s)", e.Operation, e.Message, e.Code)
	}
	if e.Err != nil {
		return fmt.Sprintf("payments: %s failed: %v", e.Operation, e.Err)
	}
	return fmt.Sprintf("payments: %s failed with status %d", e.Operation, e.StatusCode)
}

// Unwrap exposes the underlying transport error, if any.
func (e *GatewayError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// CreateOrderRequest captures the payload required to create a gateway order.
type CreateOrderRequest struct {
	ReferenceID string
	AmountCents int64
	Currency    string
	Description string
}

// GatewayOrder represents the gateway-side order returned to the client.
type GatewayOrder struct {
	ID          string
	Status      Status
	ApprovalURL string
	Raw         map[string]any
}

// CaptureResult normalises the outcome of a capture attempt.
type CaptureResult struct {
	OrderID     string
	CaptureID   string
	Status      Status
	AmountCents int64
	Currency    string
	CapturedAt  *time.Time
	Raw         map[string]any
}

// WebhookHeaders carries the transmission metadata attached to webhook deliveries.
type WebhookHeaders struct {
	TransmissionID   string
	TransmissionTime string
	TransmissionSig  string
	CertURL          string
	AuthAlgo         string
}

// Gateway defines the contract payment gateway adapters implement.
type Gateway interface {
	CreateOrder(ctx context.Context, req CreateOrderRequest) (GatewayOrder, error)
	Capture(ctx context.Context, gatewayOrderID string) (CaptureResult, error)
	GetOrder(ctx context.Context, gatewayOrderID string) (GatewayOrder, error)
	VerifyWebhookSignature(ctx context.Context, headers WebhookHeaders, body []byte) error
}
