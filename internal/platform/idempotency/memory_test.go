package idempotency

import (
	"context"
	"testing"
	"time"
)

func TestMemoryStoreReserveNewEvent(t *testing.T) {
	store := NewMemoryStore()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	res, err := store.Reserve(context.Background(), "WH-1", "PAYMENT.CAPTURE.COMPLETED", now, time.Hour)
	if err != nil {
		t.Fatalf("Reserve returned error: %v", err)
	}
	if res.State != ReservationStateNew {
		t.Fatalf("expected new reservation, got %v", res.State)
	}
	if res.Record.Status != StatusPending {
		t.Errorf("expected pending status, got %q", res.Record.Status)
	}
	if res.Record.EventType != "PAYMENT.CAPTURE.COMPLETED" {
		t.Errorf("unexpected event type: %q", res.Record.EventType)
	}
}

func TestMemoryStoreDuplicatePendingEvent(t *testing.T) {
	store := NewMemoryStore()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	if _, err := store.Reserve(ctx, "WH-1", "PAYMENT.CAPTURE.COMPLETED", now, time.Hour); err != nil {
		t.Fatalf("first Reserve returned error: %v", err)
	}

	res, err := store.Reserve(ctx, "WH-1", "PAYMENT.CAPTURE.COMPLETED", now.Add(time.Minute), time.Hour)
	if err != nil {
		t.Fatalf("second Reserve returned error: %v", err)
	}
	if res.State != ReservationStatePending {
		t.Fatalf("expected pending reservation, got %v", res.State)
	}
}

func TestMemoryStoreProcessedEventIsNotReplayed(t *testing.T) {
	store := NewMemoryStore()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	if _, err := store.Reserve(ctx, "WH-1", "PAYMENT.CAPTURE.COMPLETED", now, time.Hour); err != nil {
		t.Fatalf("Reserve returned error: %v", err)
	}
	if err := store.MarkProcessed(ctx, "WH-1", now.Add(time.Second), time.Hour); err != nil {
		t.Fatalf("MarkProcessed returned error: %v", err)
	}

	res, err := store.Reserve(ctx, "WH-1", "PAYMENT.CAPTURE.COMPLETED", now.Add(time.Minute), time.Hour)
	if err != nil {
		t.Fatalf("Reserve returned error: %v", err)
	}
	if res.State != ReservationStateProcessed {
		t.Fatalf("expected processed reservation, got %v", res.State)
	}
}

func TestMemoryStoreMarkProcessedWithoutReservation(t *testing.T) {
	store := NewMemoryStore()
	now := time.Now()

	if err := store.MarkProcessed(context.Background(), "WH-missing", now, time.Hour); err != ErrEventNotReserved {
		t.Fatalf("expected ErrEventNotReserved, got %v", err)
	}
}

func TestMemoryStoreReleaseAllowsRetry(t *testing.T) {
	store := NewMemoryStore()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	if _, err := store.Reserve(ctx, "WH-1", "PAYMENT.CAPTURE.COMPLETED", now, time.Hour); err != nil {
		t.Fatalf("Reserve returned error: %v", err)
	}
	if err := store.Release(ctx, "WH-1"); err != nil {
		t.Fatalf("Release returned error: %v", err)
	}

	res, err := store.Reserve(ctx, "WH-1", "PAYMENT.CAPTURE.COMPLETED", now.Add(time.Second), time.Hour)
	if err != nil {
		t.Fatalf("Reserve returned error: %v", err)
	}
	if res.State != ReservationStateNew {
		t.Fatalf("expected new reservation after release, got %v", res.State)
	}
}

func TestMemoryStoreExpiredEventCanBeReserved(t *testing.T) {
	store := NewMemoryStore()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	if _, err := store.Reserve(ctx, "WH-1", "PAYMENT.CAPTURE.COMPLETED", now, time.Minute); err != nil {
		t.Fatalf("Reserve returned error: %v", err)
	}
	if err := store.MarkProcessed(ctx, "WH-1", now, time.Minute); err != nil {
		t.Fatalf("MarkProcessed returned error: %v", err)
	}

	res, err := store.Reserve(ctx, "WH-1", "PAYMENT.CAPTURE.COMPLETED", now.Add(2*time.Minute), time.Hour)
	if err != nil {
		t.Fatalf("Reserve returned error: %v", err)
	}
	if res.State != ReservationStateNew {
		t.Fatalf("expected new reservation after expiry, got %v", res.State)
	}
}

func TestMemoryStoreCleanupExpired(t *testing.T) {
	store := NewMemoryStore()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	for _, id := range []string{"WH-1", "WH-2", "WH-3"} {
		if _, err := store.Reserve(ctx, id, "PAYMENT.CAPTURE.COMPLETED", now, time.Minute); err != nil {
			t.Fatalf("Reserve returned error: %v", err)
		}
	}
	if _, err := store.Reserve(ctx, "WH-live", "PAYMENT.CAPTURE.COMPLETED", now, time.Hour); err != nil {
		t.Fatalf("Reserve returned error: %v", err)
	}

	removed, err := store.CleanupExpired(ctx, now.Add(10*time.Minute), 10)
	if err != nil {
		t.Fatalf("CleanupExpired returned error: %v", err)
	}
	if removed != 3 {
		t.Errorf("expected 3 removed, got %d", removed)
	}

	res, err := store.Reserve(ctx, "WH-live", "PAYMENT.CAPTURE.COMPLETED", now.Add(10*time.Minute), time.Hour)
	if err != nil {
		t.Fatalf("Reserve returned error: %v", err)
	}
	if res.State != ReservationStatePending {
		t.Errorf("live reservation should survive cleanup, got state %v", res.State)
	}
}
