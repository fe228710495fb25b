package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNotFound indicates the referenced entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrForbidden indicates the actor may not perform the requested transition.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidState indicates a transition guard rejected the request.
	ErrInvalidState = errors.New("invalid state")
	// ErrValidationFailed indicates malformed transition input.
	ErrValidationFailed = errors.New("validation failed")
)

// Actor identifies who is requesting an order transition. Gateway-originated
// transitions carry no user identity; trust is established upstream by
// webhook signature verification.
type Actor struct {
	UserID  string
	Role    Role
	Gateway bool
}

// orderStatusTransitions lists the legal moves along the status dimension.
// paid is terminal for this dimension; only sub-states evolve afterwards.
var orderStatusTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending: {OrderStatusPaid, OrderStatusCancelled, OrderStatusFailed},
}

func canTransitionStatus(current, target OrderStatus) bool {
	for _, next := range orderStatusTransitions[current] {
		if next == target {
			return true
		}
	}
	return false
}

// CancelOrder performs the customer-initiated pending → cancelled transition.
func CancelOrder(order Order, actor Actor, now time.Time) (Order, error) {
	if !actor.Gateway && actor.UserID != order.UserID {
		return Order{}, fmt.Errorf("%w: order belongs to another user", ErrForbidden)
	}
	if order.Status != OrderStatusPending {
		return Order{}, fmt.Errorf("%w: cannot cancel order in status %q", ErrInvalidState, order.Status)
	}
	order.Status = OrderStatusCancelled
	order.UpdatedAt = now
	return order, nil
}

// ConfirmCapture applies a gateway capture confirmation. Re-applying it to an
// already paid order is an idempotent no-op; the returned bool reports whether
// the snapshot changed. A capture arriving after cancellation or failure is a
// guard violation, never a silent overwrite.
func ConfirmCapture(order Order, now time.Time) (Order, bool, error) {
	if order.Status == OrderStatusPaid {
		return order, false, nil
	}
	if !canTransitionStatus(order.Status, OrderStatusPaid) {
		return Order{}, false, fmt.Errorf("%w: capture not applicable in status %q", ErrInvalidState, order.Status)
	}
	order.Status = OrderStatusPaid
	order.ShippingStatus = ShippingStatusNotShipped
	order.RefundStatus = RefundStatusNormal
	order.UpdatedAt = now
	return order, true, nil
}

// MarkPaymentFailed applies a gateway denial, pending → failed.
func MarkPaymentFailed(order Order, now time.Time) (Order, error) {
	if !canTransitionStatus(order.Status, OrderStatusFailed) {
		return Order{}, fmt.Errorf("%w: failure not applicable in status %q", ErrInvalidState, order.Status)
	}
	order.Status = OrderStatusFailed
	order.UpdatedAt = now
	return order, nil
}

// MarkBuyerCancelled applies a gateway buyer-cancellation, pending → cancelled.
func MarkBuyerCancelled(order Order, now time.Time) (Order, error) {
	if !canTransitionStatus(order.Status, OrderStatusCancelled) {
		return Order{}, fmt.Errorf("%w: cancellation not applicable in status %q", ErrInvalidState, order.Status)
	}
	order.Status = OrderStatusCancelled
	order.UpdatedAt = now
	return order, nil
}

// SetShipping moves the shipping sub-state. Admin only, paid orders only.
// Transitioning to shipped attaches the carrier note; reverting clears it.
func SetShipping(order Order, actor Actor, target ShippingStatus, info string, now time.Time) (Order, error) {
	if actor.Role != RoleAdmin {
		return Order{}, fmt.Errorf("%w: shipping updates require the admin role", ErrForbidden)
	}
	if order.Status != OrderStatusPaid {
		return Order{}, fmt.Errorf("%w: shipping only applies to paid orders, status is %q", ErrInvalidState, order.Status)
	}
	switch target {
	case ShippingStatusShipped:
		order.ShippingStatus = ShippingStatusShipped
		order.ShippingInfo = strings.TrimSpace(info)
	case ShippingStatusNotShipped:
		order.ShippingStatus = ShippingStatusNotShipped
		order.ShippingInfo = ""
	default:
		return Order{}, fmt.Errorf("%w: unknown shipping status %q", ErrValidationFailed, target)
	}
	order.UpdatedAt = now
	return order, nil
}

// RequestRefund moves the refund sub-state normal → pending for the owning
// customer. The justification must carry an @-bearing contact so support can
// reach the buyer.
func RequestRefund(order Order, actor Actor, justification string, now time.Time) (Order, error) {
	if actor.UserID != order.UserID {
		return Order{}, fmt.Errorf("%w: order belongs to another user", ErrForbidden)
	}
	if order.Status != OrderStatusPaid {
		return Order{}, fmt.Errorf("%w: refunds only apply to paid orders, status is %q", ErrInvalidState, order.Status)
	}
	if order.RefundStatus != RefundStatusNormal {
		return Order{}, fmt.Errorf("%w: refund already %q", ErrInvalidState, order.RefundStatus)
	}
	justification = strings.TrimSpace(justification)
	if justification == "" || !strings.Contains(justification, "@") {
		return Order{}, fmt.Errorf("%w: refund justification must include a reachable contact", ErrValidationFailed)
	}
	order.RefundStatus = RefundStatusPending
	order.RefundRequestInfo = justification
	order.UpdatedAt = now
	return order, nil
}

// CancelRefundRequest returns a pending refund request to normal, clearing the
// stored justification. Customer action on their own order.
func CancelRefundRequest(order Order, actor Actor, now time.Time) (Order, error) {
	if actor.UserID != order.UserID {
		return Order{}, fmt.Errorf("%w: order belongs to another user", ErrForbidden)
	}
	if order.Status != OrderStatusPaid {
		return Order{}, fmt.Errorf("%w: refunds only apply to paid orders, status is %q", ErrInvalidState, order.Status)
	}
	if order.RefundStatus != RefundStatusPending {
		return Order{}, fmt.Errorf("%w: no refund request pending", ErrInvalidState)
	}
	order.RefundStatus = RefundStatusNormal
	order.RefundRequestInfo = ""
	order.UpdatedAt = now
	return order, nil
}

// DecideRefund resolves a pending refund request. Admin only; approved and
// rejected are terminal for the refund dimension. The request justification is
// retained for audit.
func DecideRefund(order Order, actor Actor, decision RefundStatus, now time.Time) (Order, error) {
	if actor.Role != RoleAdmin {
		return Order{}, fmt.Errorf("%w: refund decisions require the admin role", ErrForbidden)
	}
	if order.Status != OrderStatusPaid {
		return Order{}, fmt.Errorf("%w: refunds only apply to paid orders, status is %q", ErrInvalidState, order.Status)
	}
	if order.RefundStatus != RefundStatusPending {
		return Order{}, fmt.Errorf("%w: no refund request pending", ErrInvalidState)
	}
	if decision != RefundStatusApproved && decision != RefundStatusRejected {
		return Order{}, fmt.Errorf("%w: refund decision must be approved or rejected", ErrValidationFailed)
	}
	order.RefundStatus = decision
	order.UpdatedAt = now
	return order, nil
}

// SetNotes replaces the admin-authored status note. Independent of the state
// machines but gated on the admin role like every back-office mutation.
func SetNotes(order Order, actor Actor, notes string, now time.Time) (Order, error) {
	if actor.Role != RoleAdmin {
		return Order{}, fmt.Errorf("%w: notes updates require the admin role", ErrForbidden)
	}
	order.Notes = strings.TrimSpace(notes)
	order.UpdatedAt = now
	return order, nil
}
