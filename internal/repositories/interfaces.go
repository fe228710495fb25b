package repositories

import (
	"context"
	"time"

	domain "github.com/clearbrook/storefront/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Users() UserRepository
	Catalog() CatalogRepository
	Orders() OrderRepository
	Health() HealthRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork allows grouping repository operations in a transactional boundary when supported.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// UserRepository persists local user records keyed by the identity provider subject.
type UserRepository interface {
	Insert(ctx context.Context, user domain.User) error
	FindByID(ctx context.Context, userID string) (domain.User, error)
	FindByExternalID(ctx context.Context, externalID string) (domain.User, error)
}

// ProductListFilter controls catalogue pagination.
type ProductListFilter struct {
	PageSize  int
	PageToken string
}

// CatalogRepository owns product and variant persistence.
type CatalogRepository interface {
	InsertProduct(ctx context.Context, product domain.Product) error
	UpdateProduct(ctx context.Context, product domain.Product) error
	DeleteProduct(ctx context.Context, productID string) error
	FindProductByID(ctx context.Context, productID string) (domain.Product, error)
	ListProducts(ctx context.Context, filter ProductListFilter) (domain.CursorPage[domain.Product], error)

	InsertVariant(ctx context.Context, variant domain.ProductVariant) error
	UpdateVariant(ctx context.Context, variant domain.ProductVariant) error
	// DeleteVariant removes the variant and, when it was the default, promotes
	// another variant of the product within the same transaction. Deleting the
	// product's last variant yields a conflict RepositoryError.
	DeleteVariant(ctx context.Context, productID, variantID string) error
	FindVariantByID(ctx context.Context, productID, variantID string) (domain.ProductVariant, error)
	ListVariantsByProduct(ctx context.Context, productID string) ([]domain.ProductVariant, error)
	// SetDefaultVariant clears the previous default and marks the new one in a
	// single transaction so the product never observes zero or two defaults.
	SetDefaultVariant(ctx context.Context, productID, variantID string, updatedAt time.Time) error
}

// OrderGuard constrains a conditional order update to previously observed state.
// Nil sub-state fields are not checked.
type OrderGuard struct {
	Status         domain.OrderStatus
	ShippingStatus *domain.ShippingStatus
	RefundStatus   *domain.RefundStatus
}

// OrderListFilter controls order list queries.
type OrderListFilter struct {
	Status    *domain.OrderStatus
	PageSize  int
	PageToken string
}

// OrderRepository persists orders and enforces guarded state transitions.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (domain.Order, error)
	ListByUser(ctx context.Context, userID string, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
	SetGatewayOrderID(ctx context.Context, orderID, gatewayOrderID string, updatedAt time.Time) error
	// UpdateGuarded persists the order's mutable state only while the stored row
	// still matches the guard. A lost race yields a conflict RepositoryError.
	UpdateGuarded(ctx context.Context, order domain.Order, guard OrderGuard) error
}

// HealthRepository aggregates dependency probes for readiness reporting.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
