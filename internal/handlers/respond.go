package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	domain "github.com/clearbrook/storefront/internal/domain"
	"github.com/clearbrook/storefront/internal/payments"
	"github.com/clearbrook/storefront/internal/platform/auth"
	"github.com/clearbrook/storefront/internal/platform/httpx"
	"github.com/clearbrook/storefront/internal/platform/pagination"
	"github.com/clearbrook/storefront/internal/services"
)

// writeServiceError maps the service error taxonomy onto HTTP responses.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	var gwErr *payments.GatewayError
	switch {
	case errors.Is(err, payments.ErrAuthenticityFailed):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_signature", "event authenticity could not be established", http.StatusBadRequest))
	case errors.Is(err, domain.ErrValidationFailed), errors.Is(err, pagination.ErrInvalidPageToken):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, domain.ErrForbidden):
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "the requested operation is not permitted", http.StatusForbidden))
	case errors.Is(err, domain.ErrNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("not_found", "the requested resource does not exist", http.StatusNotFound))
	case errors.Is(err, domain.ErrInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("conflict", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrDependencyUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("dependency_unavailable", "a backing dependency is unavailable", http.StatusServiceUnavailable))
	case errors.As(err, &gwErr):
		httpx.WriteError(ctx, w, httpx.NewError("payment_gateway_error", "the payment gateway rejected the request", http.StatusBadGateway))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_server_error", "an unexpected error occurred", http.StatusInternalServerError))
	}
}

// actorFromRequest resolves the verified bearer identity into a domain actor,
// creating the local user record on first sight. The role comes from the token
// claims so a freshly promoted admin is effective immediately.
func actorFromRequest(r *http.Request, identities services.IdentityService) (domain.Actor, bool, error) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok || identity == nil {
		return domain.Actor{}, false, nil
	}
	user, err := identities.Resolve(r.Context(), *identity)
	if err != nil {
		return domain.Actor{}, true, err
	}
	role := domain.RoleCustomer
	if identity.HasRole(auth.RoleAdmin) {
		role = domain.RoleAdmin
	}
	return domain.Actor{UserID: user.ID, Role: role}, true, nil
}

type imagePayload struct {
	MIMEType string `json:"mime_type"`
	Data     []byte `json:"data"`
}

type productPayload struct {
	ID             string        `json:"id"`
	Name           string        `json:"name"`
	Description    string        `json:"description,omitempty"`
	Category       string        `json:"category,omitempty"`
	BasePriceCents int64         `json:"base_price_cents"`
	Currency       string        `json:"currency"`
	Image          *imagePayload `json:"image,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

type variantPayload struct {
	ID           string         `json:"id"`
	ProductID    string         `json:"product_id"`
	Name         string         `json:"name"`
	PriceCents   int64          `json:"price_cents"`
	Image        *imagePayload  `json:"image,omitempty"`
	DetailImages []imagePayload `json:"detail_images,omitempty"`
	IsDefault    bool           `json:"is_default"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

type orderPayload struct {
	ID                string    `json:"id"`
	UserID            string    `json:"user_id"`
	ProductID         string    `json:"product_id"`
	VariantID         *string   `json:"variant_id,omitempty"`
	Status            string    `json:"status"`
	ShippingStatus    string    `json:"shipping_status"`
	ShippingInfo      string    `json:"shipping_info,omitempty"`
	RefundStatus      string    `json:"refund_status"`
	RefundRequestInfo string    `json:"refund_request_info,omitempty"`
	AmountCents       int64     `json:"amount_cents"`
	Currency          string    `json:"currency"`
	PayPalOrderID     *string   `json:"paypal_order_id,omitempty"`
	Notes             string    `json:"notes,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func buildImage(image *domain.ImagePayload) *imagePayload {
	if image == nil {
		return nil
	}
	return &imagePayload{MIMEType: image.MIMEType, Data: image.Data}
}

func buildProduct(product domain.Product) productPayload {
	return productPayload{
		ID:             product.ID,
		Name:           product.Name,
		Description:    product.Description,
		Category:       product.Category,
		BasePriceCents: product.BasePriceCents,
		Currency:       product.Currency,
		Image:          buildImage(product.Image),
		CreatedAt:      product.CreatedAt,
		UpdatedAt:      product.UpdatedAt,
	}
}

func buildVariant(variant domain.ProductVariant) variantPayload {
	payload := variantPayload{
		ID:         variant.ID,
		ProductID:  variant.ProductID,
		Name:       variant.Name,
		PriceCents: variant.PriceCents,
		Image:      buildImage(variant.Image),
		IsDefault:  variant.IsDefault,
		CreatedAt:  variant.CreatedAt,
		UpdatedAt:  variant.UpdatedAt,
	}
	for i := range variant.DetailImages {
		payload.DetailImages = append(payload.DetailImages, *buildImage(&variant.DetailImages[i]))
	}
	return payload
}

// buildOrder serialises an order. The admin-authored status note is part of
// the customer-visible record.
func buildOrder(order domain.Order) orderPayload {
	return orderPayload{
		ID:                order.ID,
		UserID:            order.UserID,
		ProductID:         order.ProductID,
		VariantID:         order.VariantID,
		Status:            string(order.Status),
		ShippingStatus:    string(order.ShippingStatus),
		ShippingInfo:      order.ShippingInfo,
		RefundStatus:      string(order.RefundStatus),
		RefundRequestInfo: order.RefundRequestInfo,
		AmountCents:       order.AmountCents,
		Currency:          order.Currency,
		PayPalOrderID:     order.PayPalOrderID,
		Notes:             order.Notes,
		CreatedAt:         order.CreatedAt,
		UpdatedAt:         order.UpdatedAt,
	}
}
