package services

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode"

	"github.com/oklog/ulid/v2"

	domain "github.com/clearbrook/storefront/internal/domain"
	"github.com/clearbrook/storefront/internal/platform/textutil"
	"github.com/clearbrook/storefront/internal/repositories"
)

const (
	maxProductNameLength = 200
	maxCategoryLength    = 100
	maxDescriptionLength = 4000
	maxImageBytes        = 5 << 20
	maxDetailImages      = 8
)

var allowedImageMIMETypes = map[string]struct{}{
	"image/png":  {},
	"image/jpeg": {},
	"image/webp": {},
	"image/gif":  {},
}

// ImageInput carries an uploaded image with its declared media type.
type ImageInput struct {
	Data     []byte
	MIMEType string
}

// ProductCommand carries the writable fields of a product.
type ProductCommand struct {
	Name           string
	Description    string
	Category       string
	BasePriceCents int64
	Currency       string
	Image          *ImageInput
}

// VariantCommand carries the writable fields of a product variant.
type VariantCommand struct {
	Name         string
	PriceCents   int64
	Image        *ImageInput
	DetailImages []ImageInput
	IsDefault    bool
}

// CatalogServiceDeps bundles the dependencies required to construct a catalog service.
type CatalogServiceDeps struct {
	Catalog     repositories.CatalogRepository
	UnitOfWork  repositories.UnitOfWork
	Clock       func() time.Time
	IDGenerator func() string
}

type catalogService struct {
	catalog repositories.CatalogRepository
	uow     repositories.UnitOfWork
	clock   func() time.Time
	idGen   func() string
}

var _ CatalogService = (*catalogService)(nil)

// NewCatalogService wires dependencies into a concrete CatalogService implementation.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Catalog == nil {
		return nil, errors.New("catalog service: catalog repository is required")
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}

	return &catalogService{
		catalog: deps.Catalog,
		uow:     deps.UnitOfWork,
		clock:   defaultClock(deps.Clock),
		idGen:   idGen,
	}, nil
}

func (s *catalogService) ListProducts(ctx context.Context, filter ProductListFilter) (domain.CursorPage[Product], error) {
	page, err := s.catalog.ListProducts(ctx, filter)
	if err != nil {
		return domain.CursorPage[Product]{}, translateRepositoryError(err)
	}
	return page, nil
}

func (s *catalogService) GetProduct(ctx context.Context, productID string) (Product, error) {
	product, err := s.catalog.FindProductByID(ctx, productID)
	if err != nil {
		return Product{}, translateRepositoryError(err)
	}
	return product, nil
}

func (s *catalogService) GetProductVariants(ctx context.Context, productID string) ([]ProductVariant, error) {
	if _, err := s.catalog.FindProductByID(ctx, productID); err != nil {
		return nil, translateRepositoryError(err)
	}
	variants, err := s.catalog.ListVariantsByProduct(ctx, productID)
	if err != nil {
		return nil, translateRepositoryError(err)
	}
	return variants, nil
}

func (s *catalogService) CreateProduct(ctx context.Context, cmd ProductCommand) (Product, error) {
	product, err := s.productFromCommand(cmd)
	if err != nil {
		return Product{}, err
	}

	now := s.clock().UTC()
	product.ID = s.idGen()
	product.CreatedAt = now
	product.UpdatedAt = now

	if err := s.catalog.InsertProduct(ctx, product); err != nil {
		return Product{}, translateRepositoryError(err)
	}
	return product, nil
}

func (s *catalogService) UpdateProduct(ctx context.Context, productID string, cmd ProductCommand) (Product, error) {
	existing, err := s.catalog.FindProductByID(ctx, productID)
	if err != nil {
		return Product{}, translateRepositoryError(err)
	}

	product, err := s.productFromCommand(cmd)
	if err != nil {
		return Product{}, err
	}
	product.ID = existing.ID
	product.CreatedAt = existing.CreatedAt
	product.UpdatedAt = s.clock().UTC()
	if product.Image == nil {
		product.Image = existing.Image
	}

	if err := s.catalog.UpdateProduct(ctx, product); err != nil {
		return Product{}, translateRepositoryError(err)
	}
	return product, nil
}

func (s *catalogService) DeleteProduct(ctx context.Context, productID string) error {
	if err := s.catalog.DeleteProduct(ctx, productID); err != nil {
		return translateRepositoryError(err)
	}
	return nil
}

func (s *catalogService) CreateVariant(ctx context.Context, productID string, cmd VariantCommand) (ProductVariant, error) {
	if _, err := s.catalog.FindProductByID(ctx, productID); err != nil {
		return ProductVariant{}, translateRepositoryError(err)
	}

	variant, err := s.variantFromCommand(cmd)
	if err != nil {
		return ProductVariant{}, err
	}

	existing, err := s.catalog.ListVariantsByProduct(ctx, productID)
	if err != nil {
		return ProductVariant{}, translateRepositoryError(err)
	}

	now := s.clock().UTC()
	variant.ID = s.idGen()
	variant.ProductID = productID
	variant.CreatedAt = now
	variant.UpdatedAt = now

	// The first variant of a product is always the default. A later variant
	// requesting the flag is inserted plain and promoted atomically so the
	// product never carries two defaults.
	promote := cmd.IsDefault && len(existing) > 0
	variant.IsDefault = len(existing) == 0

	err = s.inTx(ctx, func(ctx context.Context) error {
		if err := s.catalog.InsertVariant(ctx, variant); err != nil {
			return err
		}
		if promote {
			return s.catalog.SetDefaultVariant(ctx, productID, variant.ID, now)
		}
		return nil
	})
	if err != nil {
		return ProductVariant{}, translateRepositoryError(err)
	}
	if promote {
		variant.IsDefault = true
	}
	return variant, nil
}

func (s *catalogService) UpdateVariant(ctx context.Context, productID, variantID string, cmd VariantCommand) (ProductVariant, error) {
	existing, err := s.catalog.FindVariantByID(ctx, productID, variantID)
	if err != nil {
		return ProductVariant{}, translateRepositoryError(err)
	}

	variant, err := s.variantFromCommand(cmd)
	if err != nil {
		return ProductVariant{}, err
	}

	now := s.clock().UTC()
	variant.ID = existing.ID
	variant.ProductID = existing.ProductID
	variant.IsDefault = existing.IsDefault
	variant.CreatedAt = existing.CreatedAt
	variant.UpdatedAt = now
	if variant.Image == nil {
		variant.Image = existing.Image
	}

	promote := cmd.IsDefault && !existing.IsDefault
	err = s.inTx(ctx, func(ctx context.Context) error {
		if err := s.catalog.UpdateVariant(ctx, variant); err != nil {
			return err
		}
		if promote {
			return s.catalog.SetDefaultVariant(ctx, productID, variant.ID, now)
		}
		return nil
	})
	if err != nil {
		return ProductVariant{}, translateRepositoryError(err)
	}
	if promote {
		variant.IsDefault = true
	}
	return variant, nil
}

func (s *catalogService) DeleteVariant(ctx context.Context, productID, variantID string) error {
	if err := s.catalog.DeleteVariant(ctx, productID, variantID); err != nil {
		return translateRepositoryError(err)
	}
	return nil
}

func (s *catalogService) SetDefaultVariant(ctx context.Context, productID, variantID string) (ProductVariant, error) {
	variant, err := s.catalog.FindVariantByID(ctx, productID, variantID)
	if err != nil {
		return ProductVariant{}, translateRepositoryError(err)
	}

	now := s.clock().UTC()
	if err := s.catalog.SetDefaultVariant(ctx, productID, variantID, now); err != nil {
		return ProductVariant{}, translateRepositoryError(err)
	}
	variant.IsDefault = true
	variant.UpdatedAt = now
	return variant, nil
}

func (s *catalogService) inTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.uow == nil {
		return fn(ctx)
	}
	return s.uow.RunInTx(ctx, fn)
}

func (s *catalogService) productFromCommand(cmd ProductCommand) (Product, error) {
	name := textutil.CleanText(cmd.Name)
	if name == "" || len(name) > maxProductNameLength {
		return Product{}, fmt.Errorf("%w: product name must be 1-%d characters", domain.ErrValidationFailed, maxProductNameLength)
	}
	category := textutil.CleanText(cmd.Category)
	if len(category) > maxCategoryLength {
		return Product{}, fmt.Errorf("%w: category exceeds %d characters", domain.ErrValidationFailed, maxCategoryLength)
	}
	description := textutil.CleanMultiline(cmd.Description)
	if len(description) > maxDescriptionLength {
		return Product{}, fmt.Errorf("%w: description exceeds %d characters", domain.ErrValidationFailed, maxDescriptionLength)
	}
	currency, err := normalizeCurrency(cmd.Currency)
	if err != nil {
		return Product{}, err
	}
	if cmd.BasePriceCents <= 0 {
		return Product{}, fmt.Errorf("%w: base price must be positive", domain.ErrValidationFailed)
	}
	image, err := imageFromInput(cmd.Image)
	if err != nil {
		return Product{}, err
	}

	return Product{
		Name:           name,
		Description:    description,
		Category:       category,
		BasePriceCents: cmd.BasePriceCents,
		Currency:       currency,
		Image:          image,
	}, nil
}

func (s *catalogService) variantFromCommand(cmd VariantCommand) (ProductVariant, error) {
	name := textutil.CleanText(cmd.Name)
	if name == "" || len(name) > maxProductNameLength {
		return ProductVariant{}, fmt.Errorf("%w: variant name must be 1-%d characters", domain.ErrValidationFailed, maxProductNameLength)
	}
	if cmd.PriceCents <= 0 {
		return ProductVariant{}, fmt.Errorf("%w: variant price must be positive", domain.ErrValidationFailed)
	}
	if len(cmd.DetailImages) > maxDetailImages {
		return ProductVariant{}, fmt.Errorf("%w: at most %d detail images are allowed", domain.ErrValidationFailed, maxDetailImages)
	}

	image, err := imageFromInput(cmd.Image)
	if err != nil {
		return ProductVariant{}, err
	}

	var details []ImagePayload
	for i := range cmd.DetailImages {
		detail, err := imageFromInput(&cmd.DetailImages[i])
		if err != nil {
			return ProductVariant{}, err
		}
		details = append(details, *detail)
	}

	return ProductVariant{
		Name:         name,
		PriceCents:   cmd.PriceCents,
		Image:        image,
		DetailImages: details,
	}, nil
}

func imageFromInput(input *ImageInput) (*ImagePayload, error) {
	if input == nil {
		return nil, nil
	}
	if len(input.Data) == 0 {
		return nil, fmt.Errorf("%w: image payload is empty", domain.ErrValidationFailed)
	}
	if len(input.Data) > maxImageBytes {
		return nil, fmt.Errorf("%w: image exceeds %d bytes", domain.ErrValidationFailed, maxImageBytes)
	}
	if _, ok := allowedImageMIMETypes[input.MIMEType]; !ok {
		return nil, fmt.Errorf("%w: unsupported image type %q", domain.ErrValidationFailed, input.MIMEType)
	}
	return &ImagePayload{Data: input.Data, MIMEType: input.MIMEType}, nil
}

func normalizeCurrency(code string) (string, error) {
	if len(code) != 3 {
		return "", fmt.Errorf("%w: currency must be a three-letter code", domain.ErrValidationFailed)
	}
	upper := make([]rune, 0, 3)
	for _, r := range code {
		if !unicode.IsLetter(r) || r > unicode.MaxASCII {
			return "", fmt.Errorf("%w: currency must be a three-letter code", domain.ErrValidationFailed)
		}
		upper = append(upper, unicode.ToUpper(r))
	}
	return string(upper), nil
}
