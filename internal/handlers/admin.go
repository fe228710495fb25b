package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	domain "github.com/clearbrook/storefront/internal/domain"
	"github.com/clearbrook/storefront/internal/platform/auth"
	"github.com/clearbrook/storefront/internal/platform/httpx"
	"github.com/clearbrook/storefront/internal/services"
)

// AdminHandlers exposes the back-office catalogue and order endpoints.
type AdminHandlers struct {
	authn      *auth.Authenticator
	identities services.IdentityService
	catalog    services.CatalogService
	orders     services.OrderService
}

// NewAdminHandlers constructs a new AdminHandlers instance.
func NewAdminHandlers(authn *auth.Authenticator, identities services.IdentityService, catalog services.CatalogService, orders services.OrderService) *AdminHandlers {
	return &AdminHandlers{authn: authn, identities: identities, catalog: catalog, orders: orders}
}

// Routes registers the /admin endpoints.
func (h *AdminHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth(auth.RoleAdmin))
	}

	r.Post("/products", h.createProduct)
	r.Put("/products/{productID}", h.updateProduct)
	r.Delete("/products/{productID}", h.deleteProduct)

	r.Post("/products/{productID}/variants", h.createVariant)
	r.Put("/products/{productID}/variants/{variantID}", h.updateVariant)
	r.Delete("/products/{productID}/variants/{variantID}", h.deleteVariant)
	r.Post("/products/{productID}/variants/{variantID}:set-default", h.setDefaultVariant)

	r.Get("/orders", h.listOrders)
	r.Get("/orders/{orderID}", h.getOrder)
	r.Put("/orders/{orderID}/shipping", h.setShipping)
	r.Post("/orders/{orderID}/refund:decide", h.decideRefund)
	r.Put("/orders/{orderID}/notes", h.setNotes)
}

func (h *AdminHandlers) actor(w http.ResponseWriter, r *http.Request) (domain.Actor, bool) {
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

type productRequest struct {
	Name           string        `json:"name"`
	Description    string        `json:"description"`
	Category       string        `json:"category"`
	BasePriceCents int64         `json:"base_price_cents"`
	Currency       string        `json:"currency"`
	Image          *imagePayload `json:"image,omitempty"`
}

func (req productRequest) command() services.ProductCommand {
	cmd := services.ProductCommand{
		Name:           req.Name,
		Description:    req.Description,
		Category:       req.Category,
		BasePriceCents: req.BasePriceCents,
		Currency:       req.Currency,
	}
	if req.Image != nil {
		cmd.Image = &services.ImageInput{Data: req.Image.Data, MIMEType: req.Image.MIMEType}
	}
	return cmd
}

func (h *AdminHandlers) createProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := h.actor(w, r); !ok {
		return
	}

	var req productRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	product, err := h.catalog.CreateProduct(ctx, req.command())
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, buildProduct(product))
}

func (h *AdminHandlers) updateProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := h.actor(w, r); !ok {
		return
	}

	var req productRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	product, err := h.catalog.UpdateProduct(ctx, chi.URLParam(r, "productID"), req.command())
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildProduct(product))
}

func (h *AdminHandlers) deleteProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := h.actor(w, r); !ok {
		return
	}

	if err := h.catalog.DeleteProduct(ctx, chi.URLParam(r, "productID")); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type variantRequest struct {
	Name         string         `json:"name"`
	PriceCents   int64          `json:"price_cents"`
	Image        *imagePayload  `json:"image,omitempty"`
	DetailImages []imagePayload `json:"detail_images,omitempty"`
	IsDefault    bool           `json:"is_default"`
}

func (req variantRequest) command() services.VariantCommand {
	cmd := services.VariantCommand{
		Name:       req.Name,
		PriceCents: req.PriceCents,
		IsDefault:  req.IsDefault,
	}
	if req.Image != nil {
		cmd.Image = &services.ImageInput{Data: req.Image.Data, MIMEType: req.Image.MIMEType}
	}
	for _, detail := range req.DetailImages {
		cmd.DetailImages = append(cmd.DetailImages, services.ImageInput{Data: detail.Data, MIMEType: detail.MIMEType})
	}
	return cmd
}

func (h *AdminHandlers) createVariant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := h.actor(w, r); !ok {
		return
	}

	var req variantRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	variant, err := h.catalog.CreateVariant(ctx, chi.URLParam(r, "productID"), req.command())
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, buildVariant(variant))
}

func (h *AdminHandlers) updateVariant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := h.actor(w, r); !ok {
		return
	}

	var req variantRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	variant, err := h.catalog.UpdateVariant(ctx, chi.URLParam(r, "productID"), chi.URLParam(r, "variantID"), req.command())
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildVariant(variant))
}

func (h *AdminHandlers) deleteVariant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := h.actor(w, r); !ok {
		return
	}

	if err := h.catalog.DeleteVariant(ctx, chi.URLParam(r, "productID"), chi.URLParam(r, "variantID")); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandlers) setDefaultVariant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := h.actor(w, r); !ok {
		return
	}

	variant, err := h.catalog.SetDefaultVariant(ctx, chi.URLParam(r, "productID"), chi.URLParam(r, "variantID"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildVariant(variant))
}

func (h *AdminHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
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

func (h *AdminHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	h.respondOrder(w, r, func(actor domain.Actor, orderID string) (domain.Order, error) {
		return h.orders.GetOrder(r.Context(), actor, orderID)
	})
}

type shippingRequest struct {
	Status string `json:"status"`
	Info   string `json:"info"`
}

func (h *AdminHandlers) setShipping(w http.ResponseWriter, r *http.Request) {
	var req shippingRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	h.respondOrder(w, r, func(actor domain.Actor, orderID string) (domain.Order, error) {
		return h.orders.SetShipping(r.Context(), actor, orderID, domain.ShippingStatus(req.Status), req.Info)
	})
}

type refundDecisionRequest struct {
	Decision string `json:"decision"`
}

func (h *AdminHandlers) decideRefund(w http.ResponseWriter, r *http.Request) {
	var req refundDecisionRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	h.respondOrder(w, r, func(actor domain.Actor, orderID string) (domain.Order, error) {
		return h.orders.DecideRefund(r.Context(), actor, orderID, domain.RefundStatus(req.Decision))
	})
}

type notesRequest struct {
	Notes string `json:"notes"`
}

func (h *AdminHandlers) setNotes(w http.ResponseWriter, r *http.Request) {
	var req notesRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	h.respondOrder(w, r, func(actor domain.Actor, orderID string) (domain.Order, error) {
		return h.orders.SetNotes(r.Context(), actor, orderID, req.Notes)
	})
}

func (h *AdminHandlers) respondOrder(w http.ResponseWriter, r *http.Request, fn func(domain.Actor, string) (domain.Order, error)) {
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
	httpx.WriteJSON(w, http.StatusOK, buildOrder(order))
}
