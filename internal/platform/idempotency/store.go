package idempotency

import (
	"context"
	"errors"
	"time"
)

// Status represents the lifecycle state of a webhook event record.
type Status string

const (
	// DefaultTTL is the default duration that processed event records are retained.
	DefaultTTL = 72 * time.Hour
	// StatusPending indicates that an event has been reserved but processing has not finished.
	StatusPending Status = "pending"
	// StatusProcessed indicates that the event was fully handled and must not be replayed.
	StatusProcessed Status = "processed"
)

// ReservationState describes the outcome of attempting to reserve an event ID.
type ReservationState int

const (
	// ReservationStateNew means the event has not been seen and the caller may process it.
	ReservationStateNew ReservationState = iota
	// ReservationStateProcessed means the event was already handled and should be acknowledged without effect.
	ReservationStateProcessed
	// ReservationStatePending means another delivery of the same event is currently being processed.
	ReservationStatePending
)

// Reservation encapsulates the result of reserving an event ID.
type Reservation struct {
	State  ReservationState
	Record Record
}

// Record captures the persisted metadata for a webhook event ID.
type Record struct {
	EventID   string
	EventType string
	Status    Status
	CreatedAt time.Time
	UpdatedAt time.Time
	ExpiresAt time.Time
}

// Store persists webhook event reservations for replay protection.
type Store interface {
	Reserve(ctx context.Context, eventID, eventType string, now time.Time, ttl time.Duration) (Reservation, error)
	MarkProcessed(ctx context.Context, eventID string, now time.Time, ttl time.Duration) error
	Release(ctx context.Context, eventID string) error
	CleanupExpired(ctx context.Context, now time.Time, limit int) (int, error)
}

// ErrEventNotReserved is returned when marking or releasing an event that has no reservation.
var ErrEventNotReserved = errors.New("idempotency: event not reserved")
