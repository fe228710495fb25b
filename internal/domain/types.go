package domain

import "time"

// Role identifies the authorisation level of a local user record.
type Role string

const (
	// RoleCustomer is the default role assigned on first sight.
	RoleCustomer Role = "customer"
	// RoleAdmin marks back-office staff allowed to mutate catalog and orders.
	RoleAdmin Role = "admin"
)

// OrderStatus enumerates the primary order lifecycle dimension.
type OrderStatus string

const (
	// OrderStatusPending is the initial status of every order.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusPaid indicates the gateway confirmed a capture; sub-states keep evolving.
	OrderStatusPaid OrderStatus = "paid"
	// OrderStatusCancelled is terminal: the buyer or the gateway cancelled the attempt.
	OrderStatusCancelled OrderStatus = "cancelled"
	// OrderStatusFailed is terminal: the gateway declined the payment.
	OrderStatusFailed OrderStatus = "failed"
)

// ShippingStatus enumerates the shipping sub-state, meaningful only once paid.
type ShippingStatus string

const (
	ShippingStatusNotShipped ShippingStatus = "not_shipped"
	ShippingStatusShipped    ShippingStatus = "shipped"
)

// RefundStatus enumerates the refund sub-state, meaningful only once paid.
type RefundStatus string

const (
	RefundStatusNormal   RefundStatus = "normal"
	RefundStatusPending  RefundStatus = "pending"
	RefundStatusApproved RefundStatus = "approved"
	RefundStatusRejected RefundStatus = "rejected"
)

// User is the local identity anchor mapped from the external identity provider.
type User struct {
	ID          string
	ExternalID  string
	DisplayName string
	Role        Role
	Email       string
	CreatedAt   time.Time
}

// IsAdmin reports whether the user holds the admin role.
func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// ImagePayload is a tagged image value validated at the boundary.
type ImagePayload struct {
	Data     []byte
	MIMEType string
}

// Product is a catalog item with zero or more purchasable variants.
type Product struct {
	ID             string
	Name           string
	Description    string
	Category       string
	BasePriceCents int64
	Currency       string
	Image          *ImagePayload
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ProductVariant is a purchasable configuration of a product.
// Exactly one variant per product carries IsDefault at any time.
type ProductVariant struct {
	ID           string
	ProductID    string
	Name         string
	PriceCents   int64
	Image        *ImagePayload
	DetailImages []ImagePayload
	IsDefault    bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Order is the persistent record of a single purchase attempt.
// Amount and currency are snapshotted at creation and never recomputed.
// PayPalOrderID is the gateway correlation id; once set it is the sole key
// used to match inbound webhook and capture events to this row.
type Order struct {
	ID                string
	UserID            string
	ProductID         string
	VariantID         *string
	Status            OrderStatus
	ShippingStatus    ShippingStatus
	ShippingInfo      string
	RefundStatus      RefundStatus
	RefundRequestInfo string
	AmountCents       int64
	Currency          string
	PayPalOrderID     *string
	Notes             string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// CorrelationID returns the gateway order id or an empty string when unset.
func (o Order) CorrelationID() string {
	if o.PayPalOrderID == nil {
		return ""
	}
	return *o.PayPalOrderID
}

// Terminal reports whether the status dimension admits no further transition.
func (o Order) Terminal() bool {
	return o.Status == OrderStatusCancelled || o.Status == OrderStatusFailed
}

// CursorPage wraps a page of results with the token for the next page.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}
