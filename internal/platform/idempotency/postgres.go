package idempotency

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// PostgresStore persists webhook event reservations in the webhook_events table.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore constructs a store backed by the provided database handle.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Reserve implements the Store interface. Concurrent deliveries of the same
// event race on the primary key insert and only one wins the reservation.
func (s *PostgresStore) Reserve(ctx context.Context, eventID, eventType string, now time.Time, ttl time.Duration) (Reservation, error) {
	now = now.UTC()
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	expires := now.Add(ttl)

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO webhook_events (event_id, event_type, status, created_at, updated_at, expires_at)
		VALUES ($1, $2, $3, $4, $4, $5)
		ON CONFLICT (event_id) DO NOTHING`,
		eventID, eventType, StatusPending, now, expires)
	if err != nil {
		return Reservation{}, fmt.Errorf("idempotency: reserve event: %w", err)
	}

	inserted, err := res.RowsAffected()
	if err != nil {
		return Reservation{}, fmt.Errorf("idempotency: reserve event: %w", err)
	}
	if inserted == 1 {
		return Reservation{State: ReservationStateNew, Record: Record{
			EventID:   eventID,
			EventType: eventType,
			Status:    StatusPending,
			CreatedAt: now,
			UpdatedAt: now,
			ExpiresAt: expires,
		}}, nil
	}

	record, err := s.find(ctx, eventID)
	if err != nil {
		return Reservation{}, err
	}

	// An expired row can be re-reserved in place.
	if !record.ExpiresAt.IsZero() && !now.Before(record.ExpiresAt) {
		res, err := s.db.ExecContext(ctx, `
			UPDATE webhook_events
			SET event_type = $2, status = $3, created_at = $4, updated_at = $4, expires_at = $5
			WHERE event_id = $1 AND expires_at <= $4`,
			eventID, eventType, StatusPending, now, expires)
		if err != nil {
			return Reservation{}, fmt.Errorf("idempotency: re-reserve event: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return Reservation{}, fmt.Errorf("idempotency: re-reserve event: %w", err)
		}
		if affected == 1 {
			return Reservation{State: ReservationStateNew, Record: Record{
				EventID:   eventID,
				EventType: eventType,
				Status:    StatusPending,
				CreatedAt: now,
				UpdatedAt: now,
				ExpiresAt: expires,
			}}, nil
		}
		// Another delivery re-reserved first.
		record, err = s.find(ctx, eventID)
		if err != nil {
			return Reservation{}, err
		}
	}

	if record.Status == StatusProcessed {
		return Reservation{State: ReservationStateProcessed, Record: record}, nil
	}
	return Reservation{State: ReservationStatePending, Record: record}, nil
}

// MarkProcessed implements the Store interface.
func (s *PostgresStore) MarkProcessed(ctx context.Context, eventID string, now time.Time, ttl time.Duration) error {
	now = now.UTC()
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE webhook_events
		SET status = $2, updated_at = $3, expires_at = $4
		WHERE event_id = $1`,
		eventID, StatusProcessed, now, now.Add(ttl))
	if err != nil {
		return fmt.Errorf("idempotency: mark processed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("idempotency: mark processed: %w", err)
	}
	if affected == 0 {
		return ErrEventNotReserved
	}
	return nil
}

// Release deletes the reservation so that a redelivery may retry processing.
func (s *PostgresStore) Release(ctx context.Context, eventID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM webhook_events WHERE event_id = $1`, eventID); err != nil {
		return fmt.Errorf("idempotency: release event: %w", err)
	}
	return nil
}

// CleanupExpired implements the Store interface.
func (s *PostgresStore) CleanupExpired(ctx context.Context, now time.Time, limit int) (int, error) {
	now = now.UTC()
	if limit <= 0 {
		limit = 200
	}

	res, err := s.db.ExecContext(ctx, `
		DELETE FROM webhook_events
		WHERE event_id IN (
			SELECT event_id FROM webhook_events
			WHERE expires_at <= $1
			LIMIT $2
		)`, now, limit)
	if err != nil {
		return 0, fmt.Errorf("idempotency: cleanup expired: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("idempotency: cleanup expired: %w", err)
	}
	return int(affected), nil
}

func (s *PostgresStore) find(ctx context.Context, eventID string) (Record, error) {
	var record Record
	err := s.db.QueryRowContext(ctx, `
		SELECT event_id, event_type, status, created_at, updated_at, expires_at
		FROM webhook_events
		WHERE event_id = $1`, eventID).
		Scan(&record.EventID, &record.EventType, &record.Status, &record.CreatedAt, &record.UpdatedAt, &record.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrEventNotReserved
	}
	if err != nil {
		return Record{}, fmt.Errorf("idempotency: load event: %w", err)
	}
	return record, nil
}
