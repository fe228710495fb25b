package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	domain "github.com/clearbrook/storefront/internal/domain"
	"github.com/clearbrook/storefront/internal/platform/pagination"
	"github.com/clearbrook/storefront/internal/repositories"
)

// CatalogRepository persists products and their purchasable variants.
type CatalogRepository struct {
	registry *Registry
}

var _ repositories.CatalogRepository = (*CatalogRepository)(nil)

// ErrLastVariant signals an attempt to delete the only variant of a product.
var ErrLastVariant = errors.New("catalog repository: cannot delete the last variant of a product")

// InsertProduct stores a new product row.
func (r *CatalogRepository) InsertProduct(ctx context.Context, product domain.Product) error {
	imageData, imageMIME := imageColumns(product.Image)
	_, err := r.registry.q(ctx).ExecContext(ctx, `
		INSERT INTO products (id, name, description, category, base_price_cents, currency, image_data, image_mime, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		product.ID, product.Name, product.Description, product.Category,
		product.BasePriceCents, product.Currency, imageData, imageMIME,
		product.CreatedAt.UTC(), product.UpdatedAt.UTC())
	if err != nil {
		return WrapError("catalog repository: insert product", err)
	}
	return nil
}

// UpdateProduct rewrites the mutable fields of a product row.
func (r *CatalogRepository) UpdateProduct(ctx context.Context, product domain.Product) error {
	imageData, imageMIME := imageColumns(product.Image)
	res, err := r.registry.q(ctx).ExecContext(ctx, `
		UPDATE products
		SET name = $2, description = $3, category = $4, base_price_cents = $5,
		    currency = $6, image_data = $7, image_mime = $8, updated_at = $9
		WHERE id = $1`,
		product.ID, product.Name, product.Description, product.Category,
		product.BasePriceCents, product.Currency, imageData, imageMIME,
		product.UpdatedAt.UTC())
	if err != nil {
		return WrapError("catalog repository: update product", err)
	}
	return requireAffected(res, "catalog repository: update product")
}

// DeleteProduct removes the product along with its variants and their images.
func (r *CatalogRepository) DeleteProduct(ctx context.Context, productID string) error {
	return r.registry.RunInTx(ctx, func(ctx context.Context) error {
		q := r.registry.q(ctx)

		if _, err := q.ExecContext(ctx, `
			DELETE FROM variant_detail_images
			WHERE variant_id IN (SELECT id FROM product_variants WHERE product_id = $1)`, productID); err != nil {
			return WrapError("catalog repository: delete variant images", err)
		}
		if _, err := q.ExecContext(ctx, `DELETE FROM product_variants WHERE product_id = $1`, productID); err != nil {
			return WrapError("catalog repository: delete variants", err)
		}

		res, err := q.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, productID)
		if err != nil {
			return WrapError("catalog repository: delete product", err)
		}
		return requireAffected(res, "catalog repository: delete product")
	})
}

// FindProductByID loads a single product.
func (r *CatalogRepository) FindProductByID(ctx context.Context, productID string) (domain.Product, error) {
	row := r.registry.q(ctx).QueryRowContext(ctx, `
		SELECT id, name, description, category, base_price_cents, currency, image_data, image_mime, created_at, updated_at
		FROM products WHERE id = $1`, productID)

	product, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Product{}, notFoundError("catalog repository: find product")
	}
	if err != nil {
		return domain.Product{}, WrapError("catalog repository: find product", err)
	}
	return product, nil
}

// ListProducts returns a descending-ID keyset page of products.
func (r *CatalogRepository) ListProducts(ctx context.Context, filter repositories.ProductListFilter) (domain.CursorPage[domain.Product], error) {
	cursor, err := pagination.DecodeToken(filter.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Product]{}, conflictError("catalog repository: list products", err)
	}

	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = pagination.DefaultPageSize
	}

	rows, err := r.registry.q(ctx).QueryContext(ctx, `
		SELECT id, name, description, category, base_price_cents, currency, image_data, image_mime, created_at, updated_at
		FROM products
		WHERE ($1 = '' OR id < $1)
		ORDER BY id DESC
		LIMIT $2`, cursor.LastID, pageSize+1)
	if err != nil {
		return domain.CursorPage[domain.Product]{}, WrapError("catalog repository: list products", err)
	}
	defer rows.Close()

	items := make([]domain.Product, 0, pageSize)
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return domain.CursorPage[domain.Product]{}, WrapError("catalog repository: list products", err)
		}
		items = append(items, product)
	}
	if err := rows.Err(); err != nil {
		return domain.CursorPage[domain.Product]{}, WrapError("catalog repository: list products", err)
	}

	page := domain.CursorPage[domain.Product]{Items: items}
	if len(items) > pageSize {
		page.Items = items[:pageSize]
		token, err := pagination.EncodeToken(pagination.Cursor{LastID: page.Items[pageSize-1].ID})
		if err != nil {
			return domain.CursorPage[domain.Product]{}, WrapError("catalog repository: list products", err)
		}
		page.NextPageToken = token
	}
	return page, nil
}

// InsertVariant stores a new variant and its detail images.
func (r *CatalogRepository) InsertVariant(ctx context.Context, variant domain.ProductVariant) error {
	return r.registry.RunInTx(ctx, func(ctx context.Context) error {
		q := r.registry.q(ctx)

		imageData, imageMIME := imageColumns(variant.Image)
		if _, err := q.ExecContext(ctx, `
			INSERT INTO product_variants (id, product_id, name, price_cents, image_data, image_mime, is_default, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			variant.ID, variant.ProductID, variant.Name, variant.PriceCents,
			imageData, imageMIME, variant.IsDefault,
			variant.CreatedAt.UTC(), variant.UpdatedAt.UTC()); err != nil {
			return WrapError("catalog repository: insert variant", err)
		}

		return r.replaceDetailImages(ctx, variant.ID, variant.DetailImages)
	})
}

// UpdateVariant rewrites the mutable fields of a variant and replaces its detail images.
func (r *CatalogRepository) UpdateVariant(ctx context.Context, variant domain.ProductVariant) error {
	return r.registry.RunInTx(ctx, func(ctx context.Context) error {
		q := r.registry.q(ctx)

		imageData, imageMIME := imageColumns(variant.Image)
		res, err := q.ExecContext(ctx, `
			UPDATE product_variants
			SET name = $3, price_cents = $4, image_data = $5, image_mime = $6, updated_at = $7
			WHERE id = $1 AND product_id = $2`,
			variant.ID, variant.ProductID, variant.Name, variant.PriceCents,
			imageData, imageMIME, variant.UpdatedAt.UTC())
		if err != nil {
			return WrapError("catalog repository: update variant", err)
		}
		if err := requireAffected(res, "catalog repository: update variant"); err != nil {
			return err
		}

		return r.replaceDetailImages(ctx, variant.ID, variant.DetailImages)
	})
}

// DeleteVariant removes a variant. Deleting the default variant promotes the
// oldest remaining variant in the same transaction; deleting the last variant
// of a product is rejected.
func (r *CatalogRepository) DeleteVariant(ctx context.Context, productID, variantID string) error {
	return r.registry.RunInTx(ctx, func(ctx context.Context) error {
		q := r.registry.q(ctx)

		var count int
		if err := q.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM product_variants WHERE product_id = $1`, productID).Scan(&count); err != nil {
			return WrapError("catalog repository: count variants", err)
		}
		if count <= 1 {
			return conflictError("catalog repository: delete variant", ErrLastVariant)
		}

		var wasDefault bool
		err := q.QueryRowContext(ctx, `
			SELECT is_default FROM product_variants WHERE id = $1 AND product_id = $2`,
			variantID, productID).Scan(&wasDefault)
		if errors.Is(err, sql.ErrNoRows) {
			return notFoundError("catalog repository: delete variant")
		}
		if err != nil {
			return WrapError("catalog repository: delete variant", err)
		}

		if _, err := q.ExecContext(ctx, `DELETE FROM variant_detail_images WHERE variant_id = $1`, variantID); err != nil {
			return WrapError("catalog repository: delete variant images", err)
		}
		if _, err := q.ExecContext(ctx, `DELETE FROM product_variants WHERE id = $1`, variantID); err != nil {
			return WrapError("catalog repository: delete variant", err)
		}

		if wasDefault {
			if _, err := q.ExecContext(ctx, `
				UPDATE product_variants
				SET is_default = TRUE
				WHERE id = (
					SELECT id FROM product_variants WHERE product_id = $1 ORDER BY id ASC LIMIT 1
				)`, productID); err != nil {
				return WrapError("catalog repository: promote default variant", err)
			}
		}
		return nil
	})
}

// FindVariantByID loads a single variant with its detail images.
func (r *CatalogRepository) FindVariantByID(ctx context.Context, productID, variantID string) (domain.ProductVariant, error) {
	row := r.registry.q(ctx).QueryRowContext(ctx, `
		SELECT id, product_id, name, price_cents, image_data, image_mime, is_default, created_at, updated_at
		FROM product_variants WHERE id = $1 AND product_id = $2`, variantID, productID)

	variant, err := scanVariant(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ProductVariant{}, notFoundError("catalog repository: find variant")
	}
	if err != nil {
		return domain.ProductVariant{}, WrapError("catalog repository: find variant", err)
	}

	images, err := r.detailImages(ctx, variant.ID)
	if err != nil {
		return domain.ProductVariant{}, err
	}
	variant.DetailImages = images
	return variant, nil
}

// ListVariantsByProduct returns all variants of a product ordered by ID.
func (r *CatalogRepository) ListVariantsByProduct(ctx context.Context, productID string) ([]domain.ProductVariant, error) {
	rows, err := r.registry.q(ctx).QueryContext(ctx, `
		SELECT id, product_id, name, price_cents, image_data, image_mime, is_default, created_at, updated_at
		FROM product_variants WHERE product_id = $1 ORDER BY id ASC`, productID)
	if err != nil {
		return nil, WrapError("catalog repository: list variants", err)
	}
	defer rows.Close()

	var variants []domain.ProductVariant
	for rows.Next() {
		variant, err := scanVariant(rows)
		if err != nil {
			return nil, WrapError("catalog repository: list variants", err)
		}
		variants = append(variants, variant)
	}
	if err := rows.Err(); err != nil {
		return nil, WrapError("catalog repository: list variants", err)
	}

	for i := range variants {
		images, err := r.detailImages(ctx, variants[i].ID)
		if err != nil {
			return nil, err
		}
		variants[i].DetailImages = images
	}
	return variants, nil
}

// SetDefaultVariant flips the default flag to the given variant atomically.
// The sibling default is cleared first; the partial unique index on
// (product_id) WHERE is_default would reject setting a second default.
func (r *CatalogRepository) SetDefaultVariant(ctx context.Context, productID, variantID string, updatedAt time.Time) error {
	return r.registry.RunInTx(ctx, func(ctx context.Context) error {
		q := r.registry.q(ctx)

		if _, err := q.ExecContext(ctx, `
			UPDATE product_variants
			SET is_default = FALSE, updated_at = $3
			WHERE product_id = $1 AND id <> $2 AND is_default`,
			productID, variantID, updatedAt.UTC()); err != nil {
			return WrapError("catalog repository: clear default variant", err)
		}

		res, err := q.ExecContext(ctx, `
			UPDATE product_variants
			SET is_default = TRUE, updated_at = $3
			WHERE id = $1 AND product_id = $2`,
			variantID, productID, updatedAt.UTC())
		if err != nil {
			return WrapError("catalog repository: set default variant", err)
		}
		// Zero rows means the variant does not exist; the transaction rolls
		// back so the cleared sibling keeps its flag.
		return requireAffected(res, "catalog repository: set default variant")
	})
}

func (r *CatalogRepository) replaceDetailImages(ctx context.Context, variantID string, images []domain.ImagePayload) error {
	q := r.registry.q(ctx)

	if _, err := q.ExecContext(ctx, `DELETE FROM variant_detail_images WHERE variant_id = $1`, variantID); err != nil {
		return WrapError("catalog repository: replace detail images", err)
	}
	for i, image := range images {
		if _, err := q.ExecContext(ctx, `
			INSERT INTO variant_detail_images (variant_id, position, data, mime_type)
			VALUES ($1, $2, $3, $4)`,
			variantID, i, image.Data, image.MIMEType); err != nil {
			return WrapError("catalog repository: replace detail images", err)
		}
	}
	return nil
}

func (r *CatalogRepository) detailImages(ctx context.Context, variantID string) ([]domain.ImagePayload, error) {
	rows, err := r.registry.q(ctx).QueryContext(ctx, `
		SELECT data, mime_type FROM variant_detail_images
		WHERE variant_id = $1 ORDER BY position ASC`, variantID)
	if err != nil {
		return nil, WrapError("catalog repository: load detail images", err)
	}
	defer rows.Close()

	var images []domain.ImagePayload
	for rows.Next() {
		var image domain.ImagePayload
		if err := rows.Scan(&image.Data, &image.MIMEType); err != nil {
			return nil, WrapError("catalog repository: load detail images", err)
		}
		images = append(images, image)
	}
	if err := rows.Err(); err != nil {
		return nil, WrapError("catalog repository: load detail images", err)
	}
	return images, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (domain.Product, error) {
	var (
		product   domain.Product
		imageData []byte
		imageMIME sql.NullString
	)
	if err := row.Scan(&product.ID, &product.Name, &product.Description, &product.Category,
		&product.BasePriceCents, &product.Currency, &imageData, &imageMIME,
		&product.CreatedAt, &product.UpdatedAt); err != nil {
		return domain.Product{}, err
	}
	product.Image = imageFromColumns(imageData, imageMIME)
	return product, nil
}

func scanVariant(row rowScanner) (domain.ProductVariant, error) {
	var (
		variant   domain.ProductVariant
		imageData []byte
		imageMIME sql.NullString
	)
	if err := row.Scan(&variant.ID, &variant.ProductID, &variant.Name, &variant.PriceCents,
		&imageData, &imageMIME, &variant.IsDefault, &variant.CreatedAt, &variant.UpdatedAt); err != nil {
		return domain.ProductVariant{}, err
	}
	variant.Image = imageFromColumns(imageData, imageMIME)
	return variant, nil
}

func imageColumns(image *domain.ImagePayload) ([]byte, sql.NullString) {
	if image == nil {
		return nil, sql.NullString{}
	}
	return image.Data, sql.NullString{String: image.MIMEType, Valid: true}
}

func imageFromColumns(data []byte, mime sql.NullString) *domain.ImagePayload {
	if len(data) == 0 && !mime.Valid {
		return nil
	}
	return &domain.ImagePayload{Data: data, MIMEType: mime.String}
}

func requireAffected(res sql.Result, op string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return WrapError(op, err)
	}
	if affected == 0 {
		return notFoundError(op)
	}
	return nil
}
