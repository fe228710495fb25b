package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	domain "github.com/clearbrook/storefront/internal/domain"
	"github.com/clearbrook/storefront/internal/platform/auth"
	"github.com/clearbrook/storefront/internal/platform/httpx"
	"github.com/clearbrook/storefront/internal/platform/pagination"
	"github.com/clearbrook/storefront/internal/services"
)

const maxOrderBodySize = 16 * 1024

// OrderHandlers exposes the customer-facing order endpoints.
type OrderHandlers struct {
	authn      *auth.Authenticator
	identities services.IdentityService
	orders     services.OrderService
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(authn *auth.Authenticator, identities services.IdentityService, orders services.OrderService) *OrderHandlers {
	return &OrderHandlers{authn: authn, identities: identities, orders: orders}
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth(auth.RoleCustomer, auth.RoleAdmin))
	}
	r.Post("/", h.createOrder)
	r.Get("/", h.listOrders)
	r.Get("/{orderID}", h.getOrder)
	r.Post("/{orderID}:cancel", h.cancelOrder)
	r.Post("/{orderID}:capture", h.captureOrder)
	r.Post("/{orderID}:request-refund", h.requestRefund)
	r.Post("/{orderID}:cancel-refund", h.cancelRefund)
}

func (h *OrderHandlers) actor(w http.ResponseWriter, r *http.Request) (domain.Actor, bool) {
	actor, authenticated, err := actorFromRequest(r, h.identities)
	if !authenticated {
		httpx.WriteError(r.Context(), w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return domain.Actor{}, false
	}
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return domain.Actor{}, false
	}
	return actor, true
}

type createOrderRequest struct {
	ProductID string  `json:"product_id"`
	VariantID *string `json:"variant_id,omitempty"`
}

type checkoutResponse struct {
	Order       orderPayload `json:"order"`
	ApprovalURL string       `json:"approval_url,omitempty"`
}

func (h *OrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req createOrderRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	checkout, err := h.orders.CreateOrder(ctx, services.CreateOrderCommand{
		UserID:    actor.UserID,
		ProductID: req.ProductID,
		VariantID: req.VariantID,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, checkoutResponse{
		Order:       buildOrder(checkout.Order),
		ApprovalURL: checkout.ApprovalURL,
	})
}

type orderListResponse struct {
	Items         []orderPayload `json:"items"`
	NextPageToken string         `json:"next_page_token,omitempty"`
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	filter, err := orderFilterFromRequest(r)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	page, err := h.orders.ListOrders(ctx, actor, filter)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	items := make([]orderPayload, 0, len(page.Items))
	for _, order := range page.Items {
		items = append(items, buildOrder(order))
	}
	httpx.WriteJSON(w, http.StatusOK, orderListResponse{Items: items, NextPageToken: page.NextPageToken})
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	h.respondOrder(w, r, func(actor domain.Actor, orderID string) (domain.Order, error) {
		return h.orders.GetOrder(r.Context(), actor, orderID)
	}, http.StatusOK)
}

func (h *OrderHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	h.respondOrder(w, r, func(actor domain.Actor, orderID string) (domain.Order, error) {
		return h.orders.CancelOrder(r.Context(), actor, orderID)
	}, http.StatusOK)
}

func (h *OrderHandlers) captureOrder(w http.ResponseWriter, r *http.Request) {
	h.respondOrder(w, r, func(actor domain.Actor, orderID string) (domain.Order, error) {
		return h.orders.CaptureOrder(r.Context(), actor, orderID)
	}, http.StatusOK)
}

type refundRequestBody struct {
	Justification string `json:"justification"`
}

func (h *OrderHandlers) requestRefund(w http.ResponseWriter, r *http.Request) {
	var req refundRequestBody
	if !decodeJSONBody(w, r, &req) {
		return
	}
	h.respondOrder(w, r, func(actor domain.Actor, orderID string) (domain.Order, error) {
		return h.orders.RequestRefund(r.Context(), actor, orderID, req.Justification)
	}, http.StatusOK)
}

func (h *OrderHandlers) cancelRefund(w http.ResponseWriter, r *http.Request) {
	h.respondOrder(w, r, func(actor domain.Actor, orderID string) (domain.Order, error) {
		return h.orders.CancelRefundRequest(r.Context(), actor, orderID)
	}, http.StatusOK)
}

func (h *OrderHandlers) respondOrder(w http.ResponseWriter, r *http.Request, fn func(domain.Actor, string) (domain.Order, error), status int) {
	ctx := r.Context()
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	order, err := fn(actor, chi.URLParam(r, "orderID"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, status, buildOrder(order))
}

// decodeJSONBody reads a bounded JSON request body, writing a 400 on failure.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxOrderBodySize))
	if err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "request body could not be read", http.StatusBadRequest))
		return false
	}
	if len(body) == 0 {
		return true
	}
	if err := json.Unmarshal(body, dst); err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "request body is not valid JSON", http.StatusBadRequest))
		return false
	}
	return true
}

func orderFilterFromRequest(r *http.Request) (services.OrderListFilter, error) {
	params, err := pagination.FromRequest(r)
	if err != nil {
		return services.OrderListFilter{}, fmt.Errorf("%w: %v", domain.ErrValidationFailed, err)
	}

	filter := services.OrderListFilter{
		PageSize:  params.PageSize,
		PageToken: params.PageToken,
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		status := domain.OrderStatus(raw)
		switch status {
		case domain.OrderStatusPending, domain.OrderStatusPaid, domain.OrderStatusCancelled, domain.OrderStatusFailed:
			filter.Status = &status
		default:
			return services.OrderListFilter{}, fmt.Errorf("%w: unknown status filter %q", domain.ErrValidationFailed, raw)
		}
	}
	return filter, nil
}
