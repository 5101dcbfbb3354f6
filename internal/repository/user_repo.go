package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dj-pizzaria/storefront/internal/models"
)

type UserRepo struct {
	db *sql.DB
}

func NewUserRepo(db *sql.DB) *UserRepo {
	return &UserRepo{db: db}
}

func (r *UserRepo) Create(ctx context.Context, u *models.User) error {
	query := `
		INSERT INTO users (id, name, email, phone, password_hash, address, city, zip_code)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRowContext(ctx, query,
		u.ID, u.Name, u.Email, u.Phone, u.PasswordHash, u.Address, u.City, u.ZipCode,
	).Scan(&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetByEmail returns (nil, nil) when no account uses the email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.getBy(ctx, "email", email)
}

// GetByID returns (nil, nil) when the user does not exist.
func (r *UserRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	return r.getBy(ctx, "id", id)
}

func (r *UserRepo) getBy(ctx context.Context, column, value string) (*models.User, error) {
	var u models.User

	query := fmt.Sprintf(`
		SELECT id, name, email, phone, password_hash, address, city, zip_code,
		       created_at, updated_at
		FROM users
		WHERE %s = $1
	`, column)

	err := r.db.QueryRowContext(ctx, query, value).Scan(
		&u.ID, &u.Name, &u.Email, &u.Phone, &u.PasswordHash,
		&u.Address, &u.City, &u.ZipCode, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	return &u, nil
}

func (r *UserRepo) UpdateProfile(ctx context.Context, u *models.User) error {
	query := `
		UPDATE users
		SET name = $2, phone = $3, address = $4, city = $5, zip_code = $6,
		    updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`

	err := r.db.QueryRowContext(ctx, query,
		u.ID, u.Name, u.Phone, u.Address, u.City, u.ZipCode,
	).Scan(&u.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update user profile: %w", err)
	}
	return nil
}

func (r *UserRepo) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET password_hash = $2, updated_at = now() WHERE id = $1`,
		id, passwordHash,
	)
	if err != nil {
		return fmt.Errorf("update user password: %w", err)
	}
	return nil
}
