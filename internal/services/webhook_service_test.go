package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	domain "github.com/clearbrook/storefront/internal/domain"
	"github.com/clearbrook/storefront/internal/payments"
	"github.com/clearbrook/storefront/internal/platform/idempotency"
)

var webhookTestNow = time.Date(2025, time.May, 12, 8, 0, 0, 0, time.UTC)

type webhookFixture struct {
	svc     WebhookService
	orders  *stubOrderRepository
	gateway *stubGateway
	store   *idempotency.MemoryStore
}

func newWebhookFixture(t *testing.T) *webhookFixture {
	t.Helper()
	f := &webhookFixture{
		orders: &stubOrderRepository{},
		gateway: &stubGateway{
			capture: payments.CaptureResult{CaptureID: "CAP-1", Status: payments.StatusCompleted},
		},
		store: idempotency.NewMemoryStore(),
	}

	svc, err := NewWebhookService(WebhookServiceDeps{
		Orders:  f.orders,
		Gateway: f.gateway,
		Events:  f.store,
		Clock:   func() time.Time { return webhookTestNow },
	})
	if err != nil {
		t.Fatalf("NewWebhookService: %v", err)
	}
	f.svc = svc
	return f
}

func (f *webhookFixture) seedOrder(order domain.Order) {
	if f.orders.orders == nil {
		f.orders.orders = map[string]domain.Order{}
	}
	f.orders.orders[order.ID] = order
}

func pendingOrder(id, gatewayOrderID string) domain.Order {
	gw := gatewayOrderID
	return domain.Order{
		ID: id, UserID: "usr-1", ProductID: "p1",
		Status:         domain.OrderStatusPending,
		ShippingStatus: domain.ShippingStatusNotShipped,
		RefundStatus:   domain.RefundStatusNormal,
		AmountCents:    1800, Currency: "USD",
		PayPalOrderID: &gw,
	}
}

func eventBody(t *testing.T, id, eventType, gatewayOrderID string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"id":         id,
		"event_type": eventType,
		"resource": map[string]any{
			"id": "cap-resource",
			"supplementary_data": map[string]any{
				"related_ids": map[string]any{"order_id": gatewayOrderID},
			},
		},
	})
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return body
}

func freshHeaders() WebhookHeaders {
	return WebhookHeaders{
		TransmissionID:   "tx-1",
		TransmissionTime: webhookTestNow.Format(time.RFC3339),
		TransmissionSig:  "sig",
		CertURL:          "https://api.paypal.com/cert",
		AuthAlgo:         "SHA256withRSA",
	}
}

func TestWebhookService_CaptureCompleted_MarksPaid(t *testing.T) {
	f := newWebhookFixture(t)
	f.seedOrder(pendingOrder("ord-1", "PAY-1"))

	outcome, err := f.svc.ProcessEvent(context.Background(), eventBody(t, "WH-1", "PAYMENT.CAPTURE.COMPLETED", "PAY-1"), freshHeaders())
	if err != nil {
		t.Fatalf("ProcessEvent returned error: %v", err)
	}
	if outcome != WebhookOutcomeApplied {
		t.Fatalf("expected applied, got %q", outcome)
	}
	if f.orders.orders["ord-1"].Status != domain.OrderStatusPaid {
		t.Fatalf("order not marked paid: %q", f.orders.orders["ord-1"].Status)
	}
}

func TestWebhookService_DuplicateEventIDIsSkipped(t *testing.T) {
	f := newWebhookFixture(t)
	f.seedOrder(pendingOrder("ord-1", "PAY-1"))
	body := eventBody(t, "WH-1", "PAYMENT.CAPTURE.COMPLETED", "PAY-1")

	if _, err := f.svc.ProcessEvent(context.Background(), body, freshHeaders()); err != nil {
		t.Fatalf("first delivery failed: %v", err)
	}

	outcome, err := f.svc.ProcessEvent(context.Background(), body, freshHeaders())
	if err != nil {
		t.Fatalf("second delivery failed: %v", err)
	}
	if outcome != WebhookOutcomeDuplicate {
		t.Fatalf("expected duplicate, got %q", outcome)
	}
}

func TestWebhookService_SignatureFailureRejectsEvent(t *testing.T) {
	f := newWebhookFixture(t)
	f.gateway.verifyErr = fmt.Errorf("%w: signature mismatch", payments.ErrAuthenticityFailed)

	_, err := f.svc.ProcessEvent(context.Background(), eventBody(t, "WH-1", "PAYMENT.CAPTURE.COMPLETED", "PAY-1"), freshHeaders())
	if !errors.Is(err, payments.ErrAuthenticityFailed) {
		t.Fatalf("expected authenticity failure, got %v", err)
	}
}

func TestWebhookService_StaleTransmissionRejected(t *testing.T) {
	f := newWebhookFixture(t)
	headers := freshHeaders()
	headers.TransmissionTime = webhookTestNow.Add(-time.Hour).Format(time.RFC3339)

	_, err := f.svc.ProcessEvent(context.Background(), eventBody(t, "WH-1", "PAYMENT.CAPTURE.COMPLETED", "PAY-1"), headers)
	if !errors.Is(err, payments.ErrAuthenticityFailed) {
		t.Fatalf("expected authenticity failure for stale transmission, got %v", err)
	}
}

func TestWebhookService_CaptureAfterCancellationIsAbsorbed(t *testing.T) {
	f := newWebhookFixture(t)
	order := pendingOrder("ord-1", "PAY-1")
	order.Status = domain.OrderStatusCancelled
	f.seedOrder(order)
	body := eventBody(t, "WH-9", "PAYMENT.CAPTURE.COMPLETED", "PAY-1")

	outcome, err := f.svc.ProcessEvent(context.Background(), body, freshHeaders())
	if err != nil {
		t.Fatalf("ProcessEvent returned error: %v", err)
	}
	if outcome != WebhookOutcomeIgnored {
		t.Fatalf("expected ignored, got %q", outcome)
	}
	if f.orders.orders["ord-1"].Status != domain.OrderStatusCancelled {
		t.Fatalf("cancelled order must stay cancelled, got %q", f.orders.orders["ord-1"].Status)
	}

	outcome, err = f.svc.ProcessEvent(context.Background(), body, freshHeaders())
	if err != nil {
		t.Fatalf("redelivery returned error: %v", err)
	}
	if outcome != WebhookOutcomeDuplicate {
		t.Fatalf("absorbed event should be marked processed, got %q", outcome)
	}
}

func TestWebhookService_GuardLostAtWriteIsAbsorbed(t *testing.T) {
	f := newWebhookFixture(t)
	f.seedOrder(pendingOrder("ord-1", "PAY-1"))
	f.orders.updateErr = &stubRepoError{conflict: true}

	outcome, err := f.svc.ProcessEvent(context.Background(), eventBody(t, "WH-10", "PAYMENT.CAPTURE.COMPLETED", "PAY-1"), freshHeaders())
	if err != nil {
		t.Fatalf("ProcessEvent returned error: %v", err)
	}
	if outcome != WebhookOutcomeIgnored {
		t.Fatalf("expected ignored, got %q", outcome)
	}
}

func TestWebhookService_MissingCorrelationIsAcknowledged(t *testing.T) {
	f := newWebhookFixture(t)

	body, err := json.Marshal(map[string]any{
		"id":         "WH-11",
		"event_type": "PAYMENT.CAPTURE.COMPLETED",
		"resource":   map[string]any{},
	})
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}

	outcome, err := f.svc.ProcessEvent(context.Background(), body, freshHeaders())
	if err != nil {
		t.Fatalf("ProcessEvent returned error: %v", err)
	}
	if outcome != WebhookOutcomeIgnored {
		t.Fatalf("expected ignored, got %q", outcome)
	}
}

func TestWebhookService_DeniedMarksFailed(t *testing.T) {
	f := newWebhookFixture(t)
	f.seedOrder(pendingOrder("ord-1", "PAY-1"))

	outcome, err := f.svc.ProcessEvent(context.Background(), eventBody(t, "WH-2", "PAYMENT.CAPTURE.DENIED", "PAY-1"), freshHeaders())
	if err != nil {
		t.Fatalf("ProcessEvent returned error: %v", err)
	}
	if outcome != WebhookOutcomeApplied {
		t.Fatalf("expected applied, got %q", outcome)
	}
	if f.orders.orders["ord-1"].Status != domain.OrderStatusFailed {
		t.Fatalf("order not marked failed: %q", f.orders.orders["ord-1"].Status)
	}
}

func TestWebhookService_ApprovedIsInformationalOnly(t *testing.T) {
	f := newWebhookFixture(t)
	f.seedOrder(pendingOrder("ord-1", "PAY-1"))

	outcome, err := f.svc.ProcessEvent(context.Background(), eventBody(t, "WH-3", "CHECKOUT.ORDER.APPROVED", "PAY-1"), freshHeaders())
	if err != nil {
		t.Fatalf("ProcessEvent returned error: %v", err)
	}
	if outcome != WebhookOutcomeIgnored {
		t.Fatalf("expected ignored, got %q", outcome)
	}
	if len(f.gateway.captureCalls) != 0 {
		t.Fatalf("approval must not trigger a capture, got %v", f.gateway.captureCalls)
	}
	if f.orders.orders["ord-1"].Status != domain.OrderStatusPending {
		t.Fatalf("approval must not change order state, got %q", f.orders.orders["ord-1"].Status)
	}
}

func TestWebhookService_UnknownOrderIsAcknowledged(t *testing.T) {
	f := newWebhookFixture(t)

	outcome, err := f.svc.ProcessEvent(context.Background(), eventBody(t, "WH-4", "PAYMENT.CAPTURE.COMPLETED", "PAY-MISSING"), freshHeaders())
	if err != nil {
		t.Fatalf("ProcessEvent returned error: %v", err)
	}
	if outcome != WebhookOutcomeIgnored {
		t.Fatalf("expected ignored, got %q", outcome)
	}
}

func TestWebhookService_UnhandledTypeIsIgnored(t *testing.T) {
	f := newWebhookFixture(t)

	outcome, err := f.svc.ProcessEvent(context.Background(), eventBody(t, "WH-5", "BILLING.PLAN.CREATED", "PAY-1"), freshHeaders())
	if err != nil {
		t.Fatalf("ProcessEvent returned error: %v", err)
	}
	if outcome != WebhookOutcomeIgnored {
		t.Fatalf("expected ignored, got %q", outcome)
	}
}

func TestWebhookService_MalformedBodyIsAbsorbed(t *testing.T) {
	f := newWebhookFixture(t)

	outcome, err := f.svc.ProcessEvent(context.Background(), []byte("{not json"), freshHeaders())
	if err != nil {
		t.Fatalf("ProcessEvent returned error: %v", err)
	}
	if outcome != WebhookOutcomeIgnored {
		t.Fatalf("expected ignored, got %q", outcome)
	}
}

func TestWebhookService_EventWithoutIDIsAbsorbed(t *testing.T) {
	f := newWebhookFixture(t)

	outcome, err := f.svc.ProcessEvent(context.Background(), []byte(`{"event_type":"PAYMENT.CAPTURE.COMPLETED"}`), freshHeaders())
	if err != nil {
		t.Fatalf("ProcessEvent returned error: %v", err)
	}
	if outcome != WebhookOutcomeIgnored {
		t.Fatalf("expected ignored, got %q", outcome)
	}
}
