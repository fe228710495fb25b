package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/clearbrook/storefront/internal/domain"
	"github.com/clearbrook/storefront/internal/payments"
	"github.com/clearbrook/storefront/internal/platform/observability"
	"github.com/clearbrook/storefront/internal/platform/textutil"
	"github.com/clearbrook/storefront/internal/repositories"
)

// CreateOrderCommand starts a purchase attempt for a single catalog item.
type CreateOrderCommand struct {
	UserID    string
	ProductID string
	VariantID *string
}

// CheckoutOrder pairs a freshly created order with the gateway approval link
// the buyer is redirected to.
type CheckoutOrder struct {
	Order       Order
	ApprovalURL string
}

// OrderServiceDeps bundles the dependencies required to construct an order service.
type OrderServiceDeps struct {
	Orders      repositories.OrderRepository
	Catalog     repositories.CatalogRepository
	Gateway     payments.Gateway
	Events      observability.EventLogger
	Clock       func() time.Time
	IDGenerator func() string
}

type orderService struct {
	orders  repositories.OrderRepository
	catalog repositories.CatalogRepository
	gateway payments.Gateway
	events  observability.EventLogger
	clock   func() time.Time
	idGen   func() string
}

var _ OrderService = (*orderService)(nil)

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Catalog == nil {
		return nil, errors.New("order service: catalog repository is required")
	}
	if deps.Gateway == nil {
		return nil, errors.New("order service: payment gateway is required")
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	events := deps.Events
	if events == nil {
		events = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		orders:  deps.Orders,
		catalog: deps.Catalog,
		gateway: deps.Gateway,
		events:  events,
		clock:   defaultClock(deps.Clock),
		idGen:   idGen,
	}, nil
}

// CreateOrder snapshots the item price, persists the pending order, and opens
// the corresponding gateway order. The amount stored here is the amount
// charged; later catalog edits never affect it.
func (s *orderService) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (CheckoutOrder, error) {
	if cmd.UserID == "" {
		return CheckoutOrder{}, fmt.Errorf("%w: user id is required", domain.ErrValidationFailed)
	}
	if cmd.ProductID == "" {
		return CheckoutOrder{}, fmt.Errorf("%w: product id is required", domain.ErrValidationFailed)
	}

	product, err := s.catalog.FindProductByID(ctx, cmd.ProductID)
	if err != nil {
		return CheckoutOrder{}, translateRepositoryError(err)
	}

	amount, description, err := s.priceSnapshot(ctx, product, cmd.VariantID)
	if err != nil {
		return CheckoutOrder{}, err
	}

	now := s.clock().UTC()
	order := Order{
		ID:             s.idGen(),
		UserID:         cmd.UserID,
		ProductID:      product.ID,
		VariantID:      cmd.VariantID,
		Status:         domain.OrderStatusPending,
		ShippingStatus: domain.ShippingStatusNotShipped,
		RefundStatus:   domain.RefundStatusNormal,
		AmountCents:    amount,
		Currency:       product.Currency,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.orders.Insert(ctx, order); err != nil {
		return CheckoutOrder{}, translateRepositoryError(err)
	}

	gatewayOrder, err := s.gateway.CreateOrder(ctx, payments.CreateOrderRequest{
		ReferenceID: order.ID,
		AmountCents: order.AmountCents,
		Currency:    order.Currency,
		Description: description,
	})
	if err != nil {
		// The pending row stays behind with no correlation id; only a gateway
		// denial report moves an order to failed.
		s.events(ctx, "order.gateway_open_failed", map[string]any{"order_id": order.ID})
		return CheckoutOrder{}, fmt.Errorf("order service: opening gateway order: %w", err)
	}

	if err := s.orders.SetGatewayOrderID(ctx, order.ID, gatewayOrder.ID, s.clock().UTC()); err != nil {
		return CheckoutOrder{}, translateRepositoryError(err)
	}
	order.PayPalOrderID = &gatewayOrder.ID

	s.events(ctx, "order.created", map[string]any{
		"order_id":     order.ID,
		"product_id":   order.ProductID,
		"amount_cents": order.AmountCents,
		"currency":     order.Currency,
	})

	return CheckoutOrder{Order: order, ApprovalURL: gatewayOrder.ApprovalURL}, nil
}

func (s *orderService) GetOrder(ctx context.Context, actor domain.Actor, orderID string) (Order, error) {
	return s.load(ctx, actor, orderID)
}

func (s *orderService) ListOrders(ctx context.Context, actor domain.Actor, filter OrderListFilter) (domain.CursorPage[Order], error) {
	var (
		page domain.CursorPage[Order]
		err  error
	)
	if actor.Role == domain.RoleAdmin {
		page, err = s.orders.List(ctx, filter)
	} else {
		page, err = s.orders.ListByUser(ctx, actor.UserID, filter)
	}
	if err != nil {
		return domain.CursorPage[Order]{}, translateRepositoryError(err)
	}
	return page, nil
}

func (s *orderService) CancelOrder(ctx context.Context, actor domain.Actor, orderID string) (Order, error) {
	return s.transition(ctx, actor, orderID, "order.cancelled", func(order Order, now time.Time) (Order, error) {
		return domain.CancelOrder(order, actor, now)
	})
}

// CaptureOrder asks the gateway to capture an approved order and applies the
// confirmation. Capturing an already paid order is a no-op so buyers can
// safely retry the return leg of the approval redirect.
func (s *orderService) CaptureOrder(ctx context.Context, actor domain.Actor, orderID string) (Order, error) {
	order, err := s.load(ctx, actor, orderID)
	if err != nil {
		return Order{}, err
	}
	if order.Status == domain.OrderStatusPaid {
		return order, nil
	}
	if order.PayPalOrderID == nil {
		return Order{}, fmt.Errorf("%w: order has no gateway correlation", domain.ErrInvalidState)
	}

	result, err := s.gateway.Capture(ctx, *order.PayPalOrderID)
	if err != nil {
		return Order{}, fmt.Errorf("order service: capturing gateway order: %w", err)
	}
	if result.Status != payments.StatusCompleted {
		// Only a completed capture moves money; anything else leaves the
		// order pending for a later attempt.
		return Order{}, fmt.Errorf("%w: capture returned status %q", domain.ErrInvalidState, result.Status)
	}

	updated, changed, err := domain.ConfirmCapture(order, s.clock().UTC())
	if err != nil {
		return Order{}, err
	}
	if changed {
		if err := s.orders.UpdateGuarded(ctx, updated, guardFor(order)); err != nil {
			return Order{}, translateRepositoryError(err)
		}
		s.events(ctx, "order.paid", map[string]any{
			"order_id":   updated.ID,
			"capture_id": result.CaptureID,
		})
	}
	return updated, nil
}

func (s *orderService) RequestRefund(ctx context.Context, actor domain.Actor, orderID, justification string) (Order, error) {
	cleaned := textutil.CleanText(justification)
	return s.transition(ctx, actor, orderID, "order.refund_requested", func(order Order, now time.Time) (Order, error) {
		return domain.RequestRefund(order, actor, cleaned, now)
	})
}

func (s *orderService) CancelRefundRequest(ctx context.Context, actor domain.Actor, orderID string) (Order, error) {
	return s.transition(ctx, actor, orderID, "order.refund_request_cancelled", func(order Order, now time.Time) (Order, error) {
		return domain.CancelRefundRequest(order, actor, now)
	})
}

func (s *orderService) SetShipping(ctx context.Context, actor domain.Actor, orderID string, target ShippingStatus, info string) (Order, error) {
	cleaned := textutil.CleanText(info)
	return s.transition(ctx, actor, orderID, "order.shipping_updated", func(order Order, now time.Time) (Order, error) {
		return domain.SetShipping(order, actor, target, cleaned, now)
	})
}

func (s *orderService) DecideRefund(ctx context.Context, actor domain.Actor, orderID string, decision RefundStatus) (Order, error) {
	return s.transition(ctx, actor, orderID, "order.refund_decided", func(order Order, now time.Time) (Order, error) {
		return domain.DecideRefund(order, actor, decision, now)
	})
}

func (s *orderService) SetNotes(ctx context.Context, actor domain.Actor, orderID, notes string) (Order, error) {
	cleaned := textutil.CleanMultiline(notes)
	return s.transition(ctx, actor, orderID, "order.notes_updated", func(order Order, now time.Time) (Order, error) {
		return domain.SetNotes(order, actor, cleaned, now)
	})
}

// load fetches the order and enforces read visibility. Admins see every
// order; customers only their own.
func (s *orderService) load(ctx context.Context, actor domain.Actor, orderID string) (Order, error) {
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", domain.ErrValidationFailed)
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, translateRepositoryError(err)
	}
	if !actor.Gateway && actor.Role != domain.RoleAdmin && order.UserID != actor.UserID {
		return Order{}, fmt.Errorf("%w: order belongs to another user", domain.ErrForbidden)
	}
	return order, nil
}

// transition applies a pure state-machine step and persists it with a guard on
// the state that was read. Losing the guard reports invalid state so the
// caller re-reads and retries against current reality.
func (s *orderService) transition(ctx context.Context, actor domain.Actor, orderID, event string, fn func(Order, time.Time) (Order, error)) (Order, error) {
	order, err := s.load(ctx, actor, orderID)
	if err != nil {
		return Order{}, err
	}

	updated, err := fn(order, s.clock().UTC())
	if err != nil {
		return Order{}, err
	}

	if err := s.orders.UpdateGuarded(ctx, updated, guardFor(order)); err != nil {
		return Order{}, translateRepositoryError(err)
	}

	s.events(ctx, event, map[string]any{"order_id": updated.ID, "status": string(updated.Status)})
	return updated, nil
}

func guardFor(observed Order) repositories.OrderGuard {
	shipping := observed.ShippingStatus
	refund := observed.RefundStatus
	return repositories.OrderGuard{
		Status:         observed.Status,
		ShippingStatus: &shipping,
		RefundStatus:   &refund,
	}
}

// priceSnapshot resolves the amount to charge: the chosen variant's price, the
// default variant's price, or the product base price when no variants exist.
func (s *orderService) priceSnapshot(ctx context.Context, product Product, variantID *string) (int64, string, error) {
	if variantID != nil {
		variant, err := s.catalog.FindVariantByID(ctx, product.ID, *variantID)
		if err != nil {
			return 0, "", translateRepositoryError(err)
		}
		return variant.PriceCents, product.Name + " - " + variant.Name, nil
	}

	variants, err := s.catalog.ListVariantsByProduct(ctx, product.ID)
	if err != nil {
		return 0, "", translateRepositoryError(err)
	}
	for _, variant := range variants {
		if variant.IsDefault {
			return variant.PriceCents, product.Name + " - " + variant.Name, nil
		}
	}
	return product.BasePriceCents, product.Name, nil
}
