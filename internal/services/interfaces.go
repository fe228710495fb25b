package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	domain "github.com/clearbrook/storefront/internal/domain"
	"github.com/clearbrook/storefront/internal/platform/auth"
	"github.com/clearbrook/storefront/internal/repositories"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	User               = domain.User
	Product            = domain.Product
	ProductVariant     = domain.ProductVariant
	Order              = domain.Order
	OrderStatus        = domain.OrderStatus
	ShippingStatus     = domain.ShippingStatus
	RefundStatus       = domain.RefundStatus
	ImagePayload       = domain.ImagePayload
	SystemHealthReport = domain.SystemHealthReport
)

// ErrDependencyUnavailable indicates a backing store or upstream dependency is
// temporarily unreachable and the request may be retried.
var ErrDependencyUnavailable = errors.New("dependency unavailable")

// IdentityService resolves verified bearer identities into local user records,
// creating the record on first sight.
type IdentityService interface {
	Resolve(ctx context.Context, identity auth.Identity) (User, error)
}

// CatalogService owns product and variant lifecycle operations.
type CatalogService interface {
	ListProducts(ctx context.Context, filter ProductListFilter) (domain.CursorPage[Product], error)
	GetProduct(ctx context.Context, productID string) (Product, error)
	GetProductVariants(ctx context.Context, productID string) ([]ProductVariant, error)

	CreateProduct(ctx context.Context, cmd ProductCommand) (Product, error)
	UpdateProduct(ctx context.Context, productID string, cmd ProductCommand) (Product, error)
	DeleteProduct(ctx context.Context, productID string) error

	CreateVariant(ctx context.Context, productID string, cmd VariantCommand) (ProductVariant, error)
	UpdateVariant(ctx context.Context, productID, variantID string, cmd VariantCommand) (ProductVariant, error)
	DeleteVariant(ctx context.Context, productID, variantID string) error
	SetDefaultVariant(ctx context.Context, productID, variantID string) (ProductVariant, error)
}

// OrderService orchestrates order creation, payment capture, and the
// customer- and admin-facing state transitions.
type OrderService interface {
	CreateOrder(ctx context.Context, cmd CreateOrderCommand) (CheckoutOrder, error)
	GetOrder(ctx context.Context, actor domain.Actor, orderID string) (Order, error)
	ListOrders(ctx context.Context, actor domain.Actor, filter OrderListFilter) (domain.CursorPage[Order], error)

	CancelOrder(ctx context.Context, actor domain.Actor, orderID string) (Order, error)
	CaptureOrder(ctx context.Context, actor domain.Actor, orderID string) (Order, error)
	RequestRefund(ctx context.Context, actor domain.Actor, orderID, justification string) (Order, error)
	CancelRefundRequest(ctx context.Context, actor domain.Actor, orderID string) (Order, error)

	SetShipping(ctx context.Context, actor domain.Actor, orderID string, target ShippingStatus, info string) (Order, error)
	DecideRefund(ctx context.Context, actor domain.Actor, orderID string, decision RefundStatus) (Order, error)
	SetNotes(ctx context.Context, actor domain.Actor, orderID, notes string) (Order, error)
}

// WebhookService verifies and applies gateway event notifications exactly once.
type WebhookService interface {
	ProcessEvent(ctx context.Context, body []byte, headers WebhookHeaders) (WebhookOutcome, error)
	CleanupExpired(ctx context.Context, batchSize int) (int, error)
}

// SystemService provides operational health reporting.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// ProductListFilter mirrors the repository catalogue filter.
type ProductListFilter = repositories.ProductListFilter

// OrderListFilter mirrors the repository order filter.
type OrderListFilter = repositories.OrderListFilter

// translateRepositoryError converts categorised persistence failures into the
// service error taxonomy. Guard conflicts surface as invalid-state because the
// stored row no longer matches what the transition assumed.
func translateRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", domain.ErrNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", domain.ErrInvalidState, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrDependencyUnavailable, err)
		}
	}
	return err
}

func defaultClock(clock func() time.Time) func() time.Time {
	if clock == nil {
		return time.Now
	}
	return clock
}
