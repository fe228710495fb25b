package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"time"

	domain "github.com/clearbrook/storefront/internal/domain"
	"github.com/clearbrook/storefront/internal/platform/pagination"
	"github.com/clearbrook/storefront/internal/repositories"
)

// OrderRepository persists orders and enforces guarded state transitions.
type OrderRepository struct {
	registry *Registry
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

// ErrGuardLost signals that a conditional update matched no row because the
// stored state moved on since it was read.
var ErrGuardLost = errors.New("order repository: state guard no longer holds")

const orderColumns = `id, user_id, product_id, variant_id, status, shipping_status, shipping_info,
	refund_status, refund_request_info, amount_cents, currency, paypal_order_id, notes, created_at, updated_at`

// Insert stores a new order row.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	_, err := r.registry.q(ctx).ExecContext(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		order.ID, order.UserID, order.ProductID, order.VariantID,
		order.Status, order.ShippingStatus, order.ShippingInfo,
		order.RefundStatus, order.RefundRequestInfo,
		order.AmountCents, order.Currency, order.PayPalOrderID, order.Notes,
		order.CreatedAt.UTC(), order.UpdatedAt.UTC())
	if err != nil {
		return WrapError("order repository: insert", err)
	}
	return nil
}

// FindByID loads an order by its identifier.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	row := r.registry.q(ctx).QueryRowContext(ctx, `
		SELECT `+orderColumns+` FROM orders WHERE id = $1`, orderID)
	return r.scanOne(row, "order repository: find")
}

// FindByGatewayOrderID loads the order correlated with a gateway order.
func (r *OrderRepository) FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (domain.Order, error) {
	row := r.registry.q(ctx).QueryRowContext(ctx, `
		SELECT `+orderColumns+` FROM orders WHERE paypal_order_id = $1`, gatewayOrderID)
	return r.scanOne(row, "order repository: find by gateway order")
}

// ListByUser returns a descending-ID keyset page of the user's orders.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	return r.list(ctx, filter, `user_id = $3`, userID)
}

// List returns a descending-ID keyset page across all orders.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	return r.list(ctx, filter, ``)
}

func (r *OrderRepository) list(ctx context.Context, filter repositories.OrderListFilter, extraWhere string, extraArgs ...any) (domain.CursorPage[domain.Order], error) {
	cursor, err := pagination.DecodeToken(filter.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, conflictError("order repository: list", err)
	}

	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = pagination.DefaultPageSize
	}

	query := `SELECT ` + orderColumns + ` FROM orders WHERE ($1 = '' OR id < $1)`
	args := []any{cursor.LastID, pageSize + 1}
	if extraWhere != "" {
		query += ` AND ` + extraWhere
		args = append(args, extraArgs...)
	}
	if filter.Status != nil {
		query += ` AND status = $` + strconv.Itoa(len(args)+1)
		args = append(args, *filter.Status)
	}
	query += ` ORDER BY id DESC LIMIT $2`

	rows, err := r.registry.q(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, WrapError("order repository: list", err)
	}
	defer rows.Close()

	items := make([]domain.Order, 0, pageSize)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return domain.CursorPage[domain.Order]{}, WrapError("order repository: list", err)
		}
		items = append(items, order)
	}
	if err := rows.Err(); err != nil {
		return domain.CursorPage[domain.Order]{}, WrapError("order repository: list", err)
	}

	page := domain.CursorPage[domain.Order]{Items: items}
	if len(items) > pageSize {
		page.Items = items[:pageSize]
		token, err := pagination.EncodeToken(pagination.Cursor{LastID: page.Items[pageSize-1].ID})
		if err != nil {
			return domain.CursorPage[domain.Order]{}, WrapError("order repository: list", err)
		}
		page.NextPageToken = token
	}
	return page, nil
}

// SetGatewayOrderID records the correlation id once the gateway order is created.
func (r *OrderRepository) SetGatewayOrderID(ctx context.Context, orderID, gatewayOrderID string, updatedAt time.Time) error {
	res, err := r.registry.q(ctx).ExecContext(ctx, `
		UPDATE orders
		SET paypal_order_id = $2, updated_at = $3
		WHERE id = $1 AND paypal_order_id IS NULL`,
		orderID, gatewayOrderID, updatedAt.UTC())
	if err != nil {
		return WrapError("order repository: set gateway order id", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return WrapError("order repository: set gateway order id", err)
	}
	if affected == 0 {
		return conflictError("order repository: set gateway order id", ErrGuardLost)
	}
	return nil
}

// UpdateGuarded persists the order's mutable state while the stored row still
// matches the guard. Matching zero rows reports a conflict so the caller can
// re-read and re-evaluate the transition.
func (r *OrderRepository) UpdateGuarded(ctx context.Context, order domain.Order, guard repositories.OrderGuard) error {
	query := `
		UPDATE orders
		SET status = $2, shipping_status = $3, shipping_info = $4,
		    refund_status = $5, refund_request_info = $6, notes = $7, updated_at = $8
		WHERE id = $1 AND status = $9`
	args := []any{
		order.ID, order.Status, order.ShippingStatus, order.ShippingInfo,
		order.RefundStatus, order.RefundRequestInfo, order.Notes, order.UpdatedAt.UTC(),
		guard.Status,
	}
	if guard.ShippingStatus != nil {
		query += ` AND shipping_status = $` + strconv.Itoa(len(args)+1)
		args = append(args, *guard.ShippingStatus)
	}
	if guard.RefundStatus != nil {
		query += ` AND refund_status = $` + strconv.Itoa(len(args)+1)
		args = append(args, *guard.RefundStatus)
	}

	res, err := r.registry.q(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return WrapError("order repository: guarded update", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return WrapError("order repository: guarded update", err)
	}
	if affected == 0 {
		return conflictError("order repository: guarded update", ErrGuardLost)
	}
	return nil
}

func (r *OrderRepository) scanOne(row rowScanner, op string) (domain.Order, error) {
	order, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Order{}, notFoundError(op)
	}
	if err != nil {
		return domain.Order{}, WrapError(op, err)
	}
	return order, nil
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		order         domain.Order
		variantID     sql.NullString
		paypalOrderID sql.NullString
	)
	if err := row.Scan(&order.ID, &order.UserID, &order.ProductID, &variantID,
		&order.Status, &order.ShippingStatus, &order.ShippingInfo,
		&order.RefundStatus, &order.RefundRequestInfo,
		&order.AmountCents, &order.Currency, &paypalOrderID, &order.Notes,
		&order.CreatedAt, &order.UpdatedAt); err != nil {
		return domain.Order{}, err
	}
	if variantID.Valid {
		order.VariantID = &variantID.String
	}
	if paypalOrderID.Valid {
		order.PayPalOrderID = &paypalOrderID.String
	}
	return order, nil
}

