package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	domain "github.com/clearbrook/storefront/internal/domain"
	"github.com/clearbrook/storefront/internal/payments"
	"github.com/clearbrook/storefront/internal/platform/idempotency"
	"github.com/clearbrook/storefront/internal/platform/observability"
	"github.com/clearbrook/storefront/internal/repositories"
)

// WebhookHeaders aliases the gateway transmission headers.
type WebhookHeaders = payments.WebhookHeaders

// WebhookOutcome summarises how an inbound event was handled.
type WebhookOutcome string

const (
	// WebhookOutcomeApplied means the event changed order state.
	WebhookOutcomeApplied WebhookOutcome = "applied"
	// WebhookOutcomeDuplicate means the event id was seen before and skipped.
	WebhookOutcomeDuplicate WebhookOutcome = "duplicate"
	// WebhookOutcomeIgnored means the event carried nothing actionable.
	WebhookOutcomeIgnored WebhookOutcome = "ignored"
)

// Gateway event types the service reacts to.
const (
	eventCheckoutOrderApproved = "CHECKOUT.ORDER.APPROVED"
	eventCheckoutOrderVoided   = "CHECKOUT.ORDER.VOIDED"
	eventCaptureCompleted      = "PAYMENT.CAPTURE.COMPLETED"
	eventCaptureDenied         = "PAYMENT.CAPTURE.DENIED"
)

// WebhookServiceDeps bundles the dependencies required to construct a webhook service.
type WebhookServiceDeps struct {
	Orders    repositories.OrderRepository
	Gateway   payments.Gateway
	Events    idempotency.Store
	Log       observability.EventLogger
	Clock     func() time.Time
	ClockSkew time.Duration
	EventTTL  time.Duration
}

type webhookService struct {
	orders    repositories.OrderRepository
	gateway   payments.Gateway
	store     idempotency.Store
	log       observability.EventLogger
	clock     func() time.Time
	clockSkew time.Duration
	eventTTL  time.Duration
}

var _ WebhookService = (*webhookService)(nil)

// NewWebhookService wires dependencies into a concrete WebhookService implementation.
func NewWebhookService(deps WebhookServiceDeps) (WebhookService, error) {
	if deps.Orders == nil {
		return nil, errors.New("webhook service: order repository is required")
	}
	if deps.Gateway == nil {
		return nil, errors.New("webhook service: payment gateway is required")
	}
	if deps.Events == nil {
		return nil, errors.New("webhook service: event store is required")
	}

	log := deps.Log
	if log == nil {
		log = func(context.Context, string, map[string]any) {}
	}
	skew := deps.ClockSkew
	if skew <= 0 {
		skew = 5 * time.Minute
	}
	ttl := deps.EventTTL
	if ttl <= 0 {
		ttl = idempotency.DefaultTTL
	}

	return &webhookService{
		orders:    deps.Orders,
		gateway:   deps.Gateway,
		store:     deps.Events,
		log:       log,
		clock:     defaultClock(deps.Clock),
		clockSkew: skew,
		eventTTL:  ttl,
	}, nil
}

// gatewayEvent is the envelope common to all gateway notifications.
type gatewayEvent struct {
	ID         string          `json:"id"`
	EventType  string          `json:"event_type"`
	CreateTime string          `json:"create_time"`
	Resource   json.RawMessage `json:"resource"`
}

type eventResource struct {
	ID                string `json:"id"`
	SupplementaryData struct {
		RelatedIDs struct {
			OrderID string `json:"order_id"`
		} `json:"related_ids"`
	} `json:"supplementary_data"`
}

// ProcessEvent authenticates, deduplicates, and applies a single gateway
// notification. Replayed event ids and stale transmissions never reach the
// order state machine.
func (s *webhookService) ProcessEvent(ctx context.Context, body []byte, headers WebhookHeaders) (WebhookOutcome, error) {
	if err := s.gateway.VerifyWebhookSignature(ctx, headers, body); err != nil {
		return "", err
	}
	if err := s.checkTransmissionTime(headers.TransmissionTime); err != nil {
		return "", err
	}

	// Past this point the transmission is authentic, so a body the gateway
	// signed but we cannot use will never parse better on redelivery.
	// Acknowledge instead of making the gateway retry.
	var event gatewayEvent
	if err := json.Unmarshal(body, &event); err != nil {
		s.log(ctx, "webhook.malformed_event", map[string]any{"error": err.Error()})
		return WebhookOutcomeIgnored, nil
	}
	if event.ID == "" || event.EventType == "" {
		s.log(ctx, "webhook.incomplete_event", map[string]any{"event_id": event.ID, "event_type": event.EventType})
		return WebhookOutcomeIgnored, nil
	}

	now := s.clock().UTC()
	reservation, err := s.store.Reserve(ctx, event.ID, event.EventType, now, s.eventTTL)
	if err != nil {
		return "", fmt.Errorf("webhook service: reserving event: %w", err)
	}
	if reservation.State != idempotency.ReservationStateNew {
		s.log(ctx, "webhook.duplicate", map[string]any{"event_id": event.ID, "event_type": event.EventType})
		return WebhookOutcomeDuplicate, nil
	}

	outcome, err := s.dispatch(ctx, event)
	if err != nil {
		// Release so a later delivery can re-evaluate once the anomaly is resolved.
		if relErr := s.store.Release(ctx, event.ID); relErr != nil {
			s.log(ctx, "webhook.release_failed", map[string]any{"event_id": event.ID, "error": relErr.Error()})
		}
		return "", err
	}

	if err := s.store.MarkProcessed(ctx, event.ID, s.clock().UTC(), s.eventTTL); err != nil {
		s.log(ctx, "webhook.mark_failed", map[string]any{"event_id": event.ID, "error": err.Error()})
	}
	return outcome, nil
}

// CleanupExpired drops event reservations past their retention window.
func (s *webhookService) CleanupExpired(ctx context.Context, batchSize int) (int, error) {
	return s.store.CleanupExpired(ctx, s.clock().UTC(), batchSize)
}

func (s *webhookService) checkTransmissionTime(value string) error {
	transmitted, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return fmt.Errorf("%w: malformed transmission time", payments.ErrAuthenticityFailed)
	}
	drift := s.clock().UTC().Sub(transmitted.UTC())
	if drift < 0 {
		drift = -drift
	}
	if drift > s.clockSkew {
		return fmt.Errorf("%w: transmission time outside acceptance window", payments.ErrAuthenticityFailed)
	}
	return nil
}

func (s *webhookService) dispatch(ctx context.Context, event gatewayEvent) (WebhookOutcome, error) {
	switch event.EventType {
	case eventCheckoutOrderApproved:
		// Informational; no funds have moved yet. Payment lands through
		// PAYMENT.CAPTURE.COMPLETED or the buyer's synchronous capture.
		s.log(ctx, "webhook.order_approved", map[string]any{"event_id": event.ID})
		return WebhookOutcomeIgnored, nil
	case eventCaptureCompleted, eventCaptureDenied, eventCheckoutOrderVoided:
	default:
		s.log(ctx, "webhook.unhandled_type", map[string]any{"event_id": event.ID, "event_type": event.EventType})
		return WebhookOutcomeIgnored, nil
	}

	gatewayOrderID, ok := correlationID(event)
	if !ok {
		// An event we can never resolve locally. Acknowledge it rather than
		// making the gateway redeliver forever.
		s.log(ctx, "webhook.no_correlation", map[string]any{"event_id": event.ID, "event_type": event.EventType})
		return WebhookOutcomeIgnored, nil
	}

	order, err := s.orders.FindByGatewayOrderID(ctx, gatewayOrderID)
	if err != nil {
		translated := translateRepositoryError(err)
		if errors.Is(translated, domain.ErrNotFound) {
			// Not ours. Acknowledge so the gateway stops redelivering.
			s.log(ctx, "webhook.unknown_order", map[string]any{"event_id": event.ID, "gateway_order_id": gatewayOrderID})
			return WebhookOutcomeIgnored, nil
		}
		return "", translated
	}

	switch event.EventType {
	case eventCaptureCompleted:
		return s.applyCapture(ctx, order)
	case eventCaptureDenied:
		return s.applyTransition(ctx, order, "order.payment_failed", domain.MarkPaymentFailed)
	case eventCheckoutOrderVoided:
		return s.applyTransition(ctx, order, "order.buyer_cancelled", domain.MarkBuyerCancelled)
	}
	return WebhookOutcomeIgnored, nil
}

func (s *webhookService) applyCapture(ctx context.Context, order Order) (WebhookOutcome, error) {
	updated, changed, err := domain.ConfirmCapture(order, s.clock().UTC())
	if err != nil {
		return s.absorbGuardRejection(ctx, order, err)
	}
	if !changed {
		return WebhookOutcomeIgnored, nil
	}
	if err := s.orders.UpdateGuarded(ctx, updated, guardFor(order)); err != nil {
		return s.absorbGuardRejection(ctx, order, translateRepositoryError(err))
	}
	s.log(ctx, "order.paid", map[string]any{"order_id": updated.ID})
	return WebhookOutcomeApplied, nil
}

func (s *webhookService) applyTransition(ctx context.Context, order Order, logEvent string, fn func(domain.Order, time.Time) (domain.Order, error)) (WebhookOutcome, error) {
	updated, err := fn(order, s.clock().UTC())
	if err != nil {
		return s.absorbGuardRejection(ctx, order, err)
	}
	if err := s.orders.UpdateGuarded(ctx, updated, guardFor(order)); err != nil {
		return s.absorbGuardRejection(ctx, order, translateRepositoryError(err))
	}
	s.log(ctx, logEvent, map[string]any{"order_id": updated.ID, "status": string(updated.Status)})
	return WebhookOutcomeApplied, nil
}

// absorbGuardRejection downgrades state-guard violations to logged no-ops.
// A capture arriving after the buyer cancelled must not make the gateway
// redeliver; anything else (repository outage and the like) still propagates.
func (s *webhookService) absorbGuardRejection(ctx context.Context, order Order, err error) (WebhookOutcome, error) {
	if errors.Is(err, domain.ErrInvalidState) {
		s.log(ctx, "webhook.guard_rejected", map[string]any{"order_id": order.ID, "status": string(order.Status), "error": err.Error()})
		return WebhookOutcomeIgnored, nil
	}
	return "", err
}

func correlationID(event gatewayEvent) (string, bool) {
	var resource eventResource
	if len(event.Resource) > 0 {
		if err := json.Unmarshal(event.Resource, &resource); err != nil {
			return "", false
		}
	}
	if id := resource.SupplementaryData.RelatedIDs.OrderID; id != "" {
		return id, true
	}
	if resource.ID != "" {
		return resource.ID, true
	}
	return "", false
}
