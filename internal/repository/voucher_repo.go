package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dj-pizzaria/storefront/internal/models"
)

type VoucherRepo struct {
	db *sql.DB
}

func NewVoucherRepo(db *sql.DB) *VoucherRepo {
	return &VoucherRepo{db: db}
}

// GetByCode returns (nil, nil) when the code is unknown. The caller is
// expected to normalize the code first.
func (r *VoucherRepo) GetByCode(ctx context.Context, code string) (*models.Voucher, error) {
	var v models.Voucher

	query := `
		SELECT id, code, type, value, assigned_to, is_active, used,
		       expires_at, redeemed_at, redeemed_by, created_at
		FROM vouchers
		WHERE code = $1
	`

	err := r.db.QueryRowContext(ctx, query, code).Scan(
		&v.ID,
		&v.Code,
		&v.Type,
		&v.Value,
		&v.AssignedTo,
		&v.IsActive,
		&v.Used,
		&v.ExpiresAt,
		&v.RedeemedAt,
		&v.RedeemedBy,
		&v.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query voucher: %w", err)
	}

	return &v, nil
}

func (r *VoucherRepo) Create(ctx context.Context, v *models.Voucher) error {
	query := `
		INSERT INTO vouchers (code, type, value, assigned_to, is_active, used, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`

	err := r.db.QueryRowContext(ctx, query,
		v.Code, v.Type, v.Value, v.AssignedTo, v.IsActive, v.Used, v.ExpiresAt,
	).Scan(&v.ID, &v.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert voucher: %w", err)
	}
	return nil
}

// HasActiveAssigned reports whether the user already holds an active,
// unused voucher. Used to decide whether a welcome voucher is due.
func (r *VoucherRepo) HasActiveAssigned(ctx context.Context, userID string) (bool, error) {
	var exists bool
	query := `
		SELECT EXISTS (
			SELECT 1 FROM vouchers
			WHERE assigned_to = $1 AND is_active AND NOT used
		)
	`
	if err := r.db.QueryRowContext(ctx, query, userID).Scan(&exists); err != nil {
		return false, fmt.Errorf("query assigned vouchers: %w", err)
	}
	return exists, nil
}

// Redeem is the only write path that marks a voucher used. It is a single
// conditional update issued to the store, never a read-then-write pair:
// the WHERE clause re-checks eligibility so that two concurrent redemptions
// of the same code resolve to exactly one winner. Returns false when zero
// rows matched (lost race, already redeemed, or no longer eligible).
func (r *VoucherRepo) Redeem(ctx context.Context, code, userID string, now time.Time) (bool, error) {
	query := `
		UPDATE vouchers
		SET used = TRUE,
		    is_active = FALSE,
		    redeemed_at = $3,
		    redeemed_by = $2
		WHERE code = $1
		  AND is_active
		  AND NOT used
		  AND (assigned_to = $2 OR assigned_to IS NULL)
		  AND (expires_at IS NULL OR expires_at > $3)
	`

	result, err := r.db.ExecContext(ctx, query, code, userID, now)
	if err != nil {
		return false, fmt.Errorf("redeem voucher: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("redeem voucher rows: %w", err)
	}
	return rows == 1, nil
}
