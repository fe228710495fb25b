package domain

import (
	"errors"
	"testing"
	"time"
)

var stateNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func pendingOrder() Order {
	return Order{
		ID:             "ord_1",
		UserID:         "usr_owner",
		Status:         OrderStatusPending,
		ShippingStatus: ShippingStatusNotShipped,
		RefundStatus:   RefundStatusNormal,
		AmountCents:    99999,
		Currency:       "USD",
	}
}

func paidOrder() Order {
	order := pendingOrder()
	order.Status = OrderStatusPaid
	return order
}

func TestCancelOrder(t *testing.T) {
	owner := Actor{UserID: "usr_owner", Role: RoleCustomer}

	tests := []struct {
		name    string
		order   Order
		actor   Actor
		wantErr error
	}{
		{name: "owner cancels pending", order: pendingOrder(), actor: owner},
		{name: "stranger rejected", order: pendingOrder(), actor: Actor{UserID: "usr_other", Role: RoleCustomer}, wantErr: ErrForbidden},
		{name: "paid order rejected", order: paidOrder(), actor: owner, wantErr: ErrInvalidState},
		{name: "cancelled order rejected", order: func() Order { o := pendingOrder(); o.Status = OrderStatusCancelled; return o }(), actor: owner, wantErr: ErrInvalidState},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := CancelOrder(tc.order, tc.actor, stateNow)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected %v, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("cancel: %v", err)
			}
			if got.Status != OrderStatusCancelled {
				t.Fatalf("status = %q, want cancelled", got.Status)
			}
		})
	}
}

func TestConfirmCaptureIdempotent(t *testing.T) {
	first, changed, err := ConfirmCapture(pendingOrder(), stateNow)
	if err != nil {
		t.Fatalf("first capture: %v", err)
	}
	if !changed {
		t.Fatal("first capture should report a change")
	}
	if first.Status != OrderStatusPaid || first.ShippingStatus != ShippingStatusNotShipped || first.RefundStatus != RefundStatusNormal {
		t.Fatalf("unexpected snapshot after capture: %+v", first)
	}

	second, changed, err := ConfirmCapture(first, stateNow.Add(time.Minute))
	if err != nil {
		t.Fatalf("second capture: %v", err)
	}
	if changed {
		t.Fatal("second capture should be a no-op")
	}
	if second.Status != OrderStatusPaid {
		t.Fatalf("status = %q, want paid", second.Status)
	}
}

func TestConfirmCaptureAfterCancellation(t *testing.T) {
	cancelled := pendingOrder()
	cancelled.Status = OrderStatusCancelled

	if _, _, err := ConfirmCapture(cancelled, stateNow); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

func TestGatewayFailureTransitions(t *testing.T) {
	if got, err := MarkPaymentFailed(pendingOrder(), stateNow); err != nil || got.Status != OrderStatusFailed {
		t.Fatalf("failed transition: %v, status %q", err, got.Status)
	}
	if _, err := MarkPaymentFailed(paidOrder(), stateNow); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState for paid order, got %v", err)
	}
	if got, err := MarkBuyerCancelled(pendingOrder(), stateNow); err != nil || got.Status != OrderStatusCancelled {
		t.Fatalf("buyer cancel: %v, status %q", err, got.Status)
	}
	if _, err := MarkBuyerCancelled(paidOrder(), stateNow); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState for paid order, got %v", err)
	}
}

func TestSetShipping(t *testing.T) {
	admin := Actor{UserID: "usr_admin", Role: RoleAdmin}

	shipped, err := SetShipping(paidOrder(), admin, ShippingStatusShipped, "JP-POST 1234", stateNow)
	if err != nil {
		t.Fatalf("ship: %v", err)
	}
	if shipped.ShippingStatus != ShippingStatusShipped || shipped.ShippingInfo != "JP-POST 1234" {
		t.Fatalf("unexpected shipping state: %+v", shipped)
	}

	reverted, err := SetShipping(shipped, admin, ShippingStatusNotShipped, "", stateNow)
	if err != nil {
		t.Fatalf("revert: %v", err)
	}
	if reverted.ShippingStatus != ShippingStatusNotShipped || reverted.ShippingInfo != "" {
		t.Fatalf("shipping info should be cleared on revert: %+v", reverted)
	}

	if _, err := SetShipping(pendingOrder(), admin, ShippingStatusShipped, "", stateNow); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState for non-paid order, got %v", err)
	}
	if _, err := SetShipping(paidOrder(), Actor{UserID: "usr_owner", Role: RoleCustomer}, ShippingStatusShipped, "", stateNow); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for customer, got %v", err)
	}
}

func TestRefundLifecycle(t *testing.T) {
	owner := Actor{UserID: "usr_owner", Role: RoleCustomer}
	admin := Actor{UserID: "usr_admin", Role: RoleAdmin}

	requested, err := RequestRefund(paidOrder(), owner, "please refund, contact: a@b.com", stateNow)
	if err != nil {
		t.Fatalf("request refund: %v", err)
	}
	if requested.RefundStatus != RefundStatusPending {
		t.Fatalf("refund status = %q, want pending", requested.RefundStatus)
	}
	if requested.RefundRequestInfo != "please refund, contact: a@b.com" {
		t.Fatalf("justification not stored verbatim: %q", requested.RefundRequestInfo)
	}

	rejected, err := DecideRefund(requested, admin, RefundStatusRejected, stateNow)
	if err != nil {
		t.Fatalf("reject refund: %v", err)
	}
	if rejected.RefundStatus != RefundStatusRejected {
		t.Fatalf("refund status = %q, want rejected", rejected.RefundStatus)
	}
	if rejected.RefundRequestInfo == "" {
		t.Fatal("request info must be retained for audit")
	}
}

func TestRequestRefundGuards(t *testing.T) {
	owner := Actor{UserID: "usr_owner", Role: RoleCustomer}

	tests := []struct {
		name          string
		order         Order
		actor         Actor
		justification string
		wantErr       error
	}{
		{name: "missing contact", order: paidOrder(), actor: owner, justification: "broken item", wantErr: ErrValidationFailed},
		{name: "empty justification", order: paidOrder(), actor: owner, justification: "   ", wantErr: ErrValidationFailed},
		{name: "not paid", order: pendingOrder(), actor: owner, justification: "x@y.z", wantErr: ErrInvalidState},
		{name: "already pending", order: func() Order { o := paidOrder(); o.RefundStatus = RefundStatusPending; return o }(), actor: owner, justification: "x@y.z", wantErr: ErrInvalidState},
		{name: "wrong owner", order: paidOrder(), actor: Actor{UserID: "usr_other"}, justification: "x@y.z", wantErr: ErrForbidden},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			before := tc.order
			if _, err := RequestRefund(tc.order, tc.actor, tc.justification, stateNow); !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
			if tc.order.RefundStatus != before.RefundStatus {
				t.Fatal("rejected request must leave the snapshot unchanged")
			}
		})
	}
}

func TestCancelRefundRequest(t *testing.T) {
	owner := Actor{UserID: "usr_owner", Role: RoleCustomer}

	pendingRefund := paidOrder()
	pendingRefund.RefundStatus = RefundStatusPending
	pendingRefund.RefundRequestInfo = "contact a@b.com"

	back, err := CancelRefundRequest(pendingRefund, owner, stateNow)
	if err != nil {
		t.Fatalf("cancel refund request: %v", err)
	}
	if back.RefundStatus != RefundStatusNormal || back.RefundRequestInfo != "" {
		t.Fatalf("refund request not cleared: %+v", back)
	}

	if _, err := CancelRefundRequest(paidOrder(), owner, stateNow); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState when nothing pending, got %v", err)
	}
}

func TestDecideRefundGuards(t *testing.T) {
	admin := Actor{UserID: "usr_admin", Role: RoleAdmin}
	pendingRefund := paidOrder()
	pendingRefund.RefundStatus = RefundStatusPending

	if _, err := DecideRefund(pendingRefund, Actor{UserID: "usr_owner"}, RefundStatusApproved, stateNow); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if _, err := DecideRefund(pendingRefund, admin, RefundStatusNormal, stateNow); !errors.Is(err, ErrValidationFailed) {
		t.Fatalf("expected ErrValidationFailed, got %v", err)
	}
	if _, err := DecideRefund(paidOrder(), admin, RefundStatusApproved, stateNow); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}
