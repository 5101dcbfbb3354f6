package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dj-pizzaria/storefront/internal/models"
)

type OrderRepo struct {
	db *sql.DB
}

func NewOrderRepo(db *sql.DB) *OrderRepo {
	return &OrderRepo{db: db}
}

func (r *OrderRepo) Create(ctx context.Context, o *models.Order) error {
	query := `
		INSERT INTO orders
			(id, user_id, items, subtotal, discount, total,
			 voucher_code, payment_method, payment_intent_id, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRowContext(ctx, query,
		o.ID, o.UserID, o.Items, o.Subtotal, o.Discount, o.Total,
		o.VoucherCode, o.PaymentMethod, o.PaymentIntentID, o.Status,
	).Scan(&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

// GetByID returns (nil, nil) when the order does not exist.
func (r *OrderRepo) GetByID(ctx context.Context, id string) (*models.Order, error) {
	var o models.Order

	query := `
		SELECT id, user_id, items, subtotal, discount, total,
		       voucher_code, payment_method, payment_intent_id, status,
		       created_at, updated_at
		FROM orders
		WHERE id = $1
	`

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&o.ID, &o.UserID, &o.Items, &o.Subtotal, &o.Discount, &o.Total,
		&o.VoucherCode, &o.PaymentMethod, &o.PaymentIntentID, &o.Status,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query order: %w", err)
	}
	return &o, nil
}

func (r *OrderRepo) ListByUser(ctx context.Context, userID string) ([]models.Order, error) {
	query := `
		SELECT id, user_id, items, subtotal, discount, total,
		       voucher_code, payment_method, payment_intent_id, status,
		       created_at, updated_at
		FROM orders
		WHERE user_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		var o models.Order
		if err := rows.Scan(
			&o.ID, &o.UserID, &o.Items, &o.Subtotal, &o.Discount, &o.Total,
			&o.VoucherCode, &o.PaymentMethod, &o.PaymentIntentID, &o.Status,
			&o.CreatedAt, &o.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// UpdateStatus performs a conditional transition so terminal states stay
// immutable: the row is touched only while it still holds the expected
// status. Returns false when the order was not in that status anymore.
func (r *OrderRepo) UpdateStatus(ctx context.Context, id, userID string, from, to models.OrderStatus) (bool, error) {
	query := `
		UPDATE orders
		SET status = $4, updated_at = now()
		WHERE id = $1 AND user_id = $2 AND status = $3
	`

	result, err := r.db.ExecContext(ctx, query, id, userID, from, to)
	if err != nil {
		return false, fmt.Errorf("update order status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update order status rows: %w", err)
	}
	return rows == 1, nil
}
