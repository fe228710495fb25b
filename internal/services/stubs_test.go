package services

import (
	"context"
	"time"

	domain "github.com/clearbrook/storefront/internal/domain"
	"github.com/clearbrook/storefront/internal/payments"
	"github.com/clearbrook/storefront/internal/repositories"
)

// stubRepoError satisfies repositories.RepositoryError for test doubles.
type stubRepoError struct {
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e *stubRepoError) Error() string       { return "stub repository error" }
func (e *stubRepoError) IsNotFound() bool    { return e.notFound }
func (e *stubRepoError) IsConflict() bool    { return e.conflict }
func (e *stubRepoError) IsUnavailable() bool { return e.unavailable }

type stubUserRepository struct {
	byExternal map[string]domain.User
	inserted   []domain.User
	insertErr  error
}

func (r *stubUserRepository) Insert(_ context.Context, user domain.User) error {
	if r.insertErr != nil {
		return r.insertErr
	}
	if r.byExternal == nil {
		r.byExternal = map[string]domain.User{}
	}
	r.byExternal[user.ExternalID] = user
	r.inserted = append(r.inserted, user)
	return nil
}

func (r *stubUserRepository) FindByID(_ context.Context, userID string) (domain.User, error) {
	for _, user := range r.byExternal {
		if user.ID == userID {
			return user, nil
		}
	}
	return domain.User{}, &stubRepoError{notFound: true}
}

func (r *stubUserRepository) FindByExternalID(_ context.Context, externalID string) (domain.User, error) {
	if user, ok := r.byExternal[externalID]; ok {
		return user, nil
	}
	return domain.User{}, &stubRepoError{notFound: true}
}

type stubCatalogRepository struct {
	products map[string]domain.Product
	variants map[string][]domain.ProductVariant

	insertedProducts []domain.Product
	updatedProducts  []domain.Product
	deletedProducts  []string
	insertedVariants []domain.ProductVariant
	updatedVariants  []domain.ProductVariant
	defaultCalls     []string
	deleteVariantErr error
	defaultErr       error
}

func (r *stubCatalogRepository) InsertProduct(_ context.Context, product domain.Product) error {
	if r.products == nil {
		r.products = map[string]domain.Product{}
	}
	r.products[product.ID] = product
	r.insertedProducts = append(r.insertedProducts, product)
	return nil
}

func (r *stubCatalogRepository) UpdateProduct(_ context.Context, product domain.Product) error {
	if _, ok := r.products[product.ID]; !ok {
		return &stubRepoError{notFound: true}
	}
	r.products[product.ID] = product
	r.updatedProducts = append(r.updatedProducts, product)
	return nil
}

func (r *stubCatalogRepository) DeleteProduct(_ context.Context, productID string) error {
	if _, ok := r.products[productID]; !ok {
		return &stubRepoError{notFound: true}
	}
	delete(r.products, productID)
	r.deletedProducts = append(r.deletedProducts, productID)
	return nil
}

func (r *stubCatalogRepository) FindProductByID(_ context.Context, productID string) (domain.Product, error) {
	if product, ok := r.products[productID]; ok {
		return product, nil
	}
	return domain.Product{}, &stubRepoError{notFound: true}
}

func (r *stubCatalogRepository) ListProducts(_ context.Context, _ repositories.ProductListFilter) (domain.CursorPage[domain.Product], error) {
	page := domain.CursorPage[domain.Product]{}
	for _, product := range r.products {
		page.Items = append(page.Items, product)
	}
	return page, nil
}

func (r *stubCatalogRepository) InsertVariant(_ context.Context, variant domain.ProductVariant) error {
	if r.variants == nil {
		r.variants = map[string][]domain.ProductVariant{}
	}
	r.variants[variant.ProductID] = append(r.variants[variant.ProductID], variant)
	r.insertedVariants = append(r.insertedVariants, variant)
	return nil
}

func (r *stubCatalogRepository) UpdateVariant(_ context.Context, variant domain.ProductVariant) error {
	for i, existing := range r.variants[variant.ProductID] {
		if existing.ID == variant.ID {
			r.variants[variant.ProductID][i] = variant
			r.updatedVariants = append(r.updatedVariants, variant)
			return nil
		}
	}
	return &stubRepoError{notFound: true}
}

func (r *stubCatalogRepository) DeleteVariant(_ context.Context, productID, variantID string) error {
	if r.deleteVariantErr != nil {
		return r.deleteVariantErr
	}
	variants := r.variants[productID]
	for i, existing := range variants {
		if existing.ID == variantID {
			r.variants[productID] = append(variants[:i], variants[i+1:]...)
			return nil
		}
	}
	return &stubRepoError{notFound: true}
}

func (r *stubCatalogRepository) FindVariantByID(_ context.Context, productID, variantID string) (domain.ProductVariant, error) {
	for _, variant := range r.variants[productID] {
		if variant.ID == variantID {
			return variant, nil
		}
	}
	return domain.ProductVariant{}, &stubRepoError{notFound: true}
}

func (r *stubCatalogRepository) ListVariantsByProduct(_ context.Context, productID string) ([]domain.ProductVariant, error) {
	return r.variants[productID], nil
}

func (r *stubCatalogRepository) SetDefaultVariant(_ context.Context, productID, variantID string, updatedAt time.Time) error {
	if r.defaultErr != nil {
		return r.defaultErr
	}
	r.defaultCalls = append(r.defaultCalls, productID+"/"+variantID)
	for i := range r.variants[productID] {
		r.variants[productID][i].IsDefault = r.variants[productID][i].ID == variantID
		if r.variants[productID][i].IsDefault {
			r.variants[productID][i].UpdatedAt = updatedAt
		}
	}
	return nil
}

type stubOrderRepository struct {
	orders map[string]domain.Order

	inserted    []domain.Order
	guards      []repositories.OrderGuard
	updateErr   error
	setGWErr    error
	findGWCalls []string
}

func (r *stubOrderRepository) Insert(_ context.Context, order domain.Order) error {
	if r.orders == nil {
		r.orders = map[string]domain.Order{}
	}
	r.orders[order.ID] = order
	r.inserted = append(r.inserted, order)
	return nil
}

func (r *stubOrderRepository) FindByID(_ context.Context, orderID string) (domain.Order, error) {
	if order, ok := r.orders[orderID]; ok {
		return order, nil
	}
	return domain.Order{}, &stubRepoError{notFound: true}
}

func (r *stubOrderRepository) FindByGatewayOrderID(_ context.Context, gatewayOrderID string) (domain.Order, error) {
	r.findGWCalls = append(r.findGWCalls, gatewayOrderID)
	for _, order := range r.orders {
		if order.PayPalOrderID != nil && *order.PayPalOrderID == gatewayOrderID {
			return order, nil
		}
	}
	return domain.Order{}, &stubRepoError{notFound: true}
}

func (r *stubOrderRepository) ListByUser(_ context.Context, userID string, _ repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	page := domain.CursorPage[domain.Order]{}
	for _, order := range r.orders {
		if order.UserID == userID {
			page.Items = append(page.Items, order)
		}
	}
	return page, nil
}

func (r *stubOrderRepository) List(_ context.Context, _ repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	page := domain.CursorPage[domain.Order]{}
	for _, order := range r.orders {
		page.Items = append(page.Items, order)
	}
	return page, nil
}

func (r *stubOrderRepository) SetGatewayOrderID(_ context.Context, orderID, gatewayOrderID string, updatedAt time.Time) error {
	if r.setGWErr != nil {
		return r.setGWErr
	}
	order, ok := r.orders[orderID]
	if !ok {
		return &stubRepoError{notFound: true}
	}
	if order.PayPalOrderID != nil {
		return &stubRepoError{conflict: true}
	}
	order.PayPalOrderID = &gatewayOrderID
	order.UpdatedAt = updatedAt
	r.orders[orderID] = order
	return nil
}

func (r *stubOrderRepository) UpdateGuarded(_ context.Context, order domain.Order, guard repositories.OrderGuard) error {
	r.guards = append(r.guards, guard)
	if r.updateErr != nil {
		return r.updateErr
	}
	stored, ok := r.orders[order.ID]
	if !ok {
		return &stubRepoError{notFound: true}
	}
	if stored.Status != guard.Status {
		return &stubRepoError{conflict: true}
	}
	if guard.ShippingStatus != nil && stored.ShippingStatus != *guard.ShippingStatus {
		return &stubRepoError{conflict: true}
	}
	if guard.RefundStatus != nil && stored.RefundStatus != *guard.RefundStatus {
		return &stubRepoError{conflict: true}
	}
	r.orders[order.ID] = order
	return nil
}

type stubGateway struct {
	createResult payments.GatewayOrder
	createErr    error
	captureErr   error
	verifyErr    error

	createCalls  []payments.CreateOrderRequest
	captureCalls []string
	verifyCalls  int
	capture      payments.CaptureResult
}

func (g *stubGateway) CreateOrder(_ context.Context, req payments.CreateOrderRequest) (payments.GatewayOrder, error) {
	g.createCalls = append(g.createCalls, req)
	if g.createErr != nil {
		return payments.GatewayOrder{}, g.createErr
	}
	return g.createResult, nil
}

func (g *stubGateway) Capture(_ context.Context, gatewayOrderID string) (payments.CaptureResult, error) {
	g.captureCalls = append(g.captureCalls, gatewayOrderID)
	if g.captureErr != nil {
		return payments.CaptureResult{}, g.captureErr
	}
	return g.capture, nil
}

func (g *stubGateway) GetOrder(_ context.Context, gatewayOrderID string) (payments.GatewayOrder, error) {
	return payments.GatewayOrder{ID: gatewayOrderID}, nil
}

func (g *stubGateway) VerifyWebhookSignature(_ context.Context, _ payments.WebhookHeaders, _ []byte) error {
	g.verifyCalls++
	return g.verifyErr
}
