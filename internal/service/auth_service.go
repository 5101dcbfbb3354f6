package service

import (
	"context"
	"log/slog"
	"net/mail"
	"regexp"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/dj-pizzaria/storefront/internal/auth"
	"github.com/dj-pizzaria/storefront/internal/domain"
	"github.com/dj-pizzaria/storefront/internal/models"
)

type UserStore interface {
	Create(ctx context.Context, u *models.User) error
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
	UpdateProfile(ctx context.Context, u *models.User) error
	UpdatePassword(ctx context.Context, id, passwordHash string) error
}

type WelcomeIssuer interface {
	IssueWelcome(ctx context.Context, userID string) (*models.Voucher, error)
}

type AuthService struct {
	users    UserStore
	vouchers WelcomeIssuer
	tokens   *auth.TokenManager
	timeout  time.Duration
}

func NewAuthService(users UserStore, vouchers WelcomeIssuer, tokens *auth.TokenManager, timeout time.Duration) *AuthService {
	return &AuthService{users: users, vouchers: vouchers, tokens: tokens, timeout: timeout}
}

type RegisterInput struct {
	Name            string
	Email           string
	Phone           string
	Password        string
	ConfirmPassword string
}

type AuthResult struct {
	User  *models.User
	Token string
	// Voucher is the welcome voucher, nil when the user already holds an
	// active unused one.
	Voucher *models.Voucher
}

var phonePattern = regexp.MustCompile(`^\d{10}$`)

func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	if err := validateRegistration(in); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	existing, err := s.users.GetByEmail(ctx, in.Email)
	if err != nil {
		return nil, storeErr("look up user", err)
	}
	if existing != nil {
		return nil, domain.E(domain.KindValidation, "user already exists with this email")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, domain.Wrap(domain.KindInternal, "hash password", err)
	}

	user := &models.User{
		ID:           uuid.NewString(),
		Name:         in.Name,
		Email:        in.Email,
		Phone:        in.Phone,
		PasswordHash: string(hash),
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, storeErr("create user", err)
	}

	return s.authResult(ctx, user)
}

func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, storeErr("look up user", err)
	}
	if user == nil {
		return nil, domain.E(domain.KindUnauthorized, "invalid email or password")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, domain.E(domain.KindUnauthorized, "invalid email or password")
	}

	return s.authResult(ctx, user)
}

// authResult issues the session token and attempts the welcome voucher.
// Voucher issuance failures never fail the auth flow, they are only logged.
func (s *AuthService) authResult(ctx context.Context, user *models.User) (*AuthResult, error) {
	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, domain.Wrap(domain.KindInternal, "issue token", err)
	}

	voucher, err := s.vouchers.IssueWelcome(ctx, user.ID)
	if err != nil {
		slog.Error("welcome voucher assignment failed", "error", err, "user_id", user.ID)
		voucher = nil
	}

	return &AuthResult{User: user, Token: token, Voucher: voucher}, nil
}

func (s *AuthService) CurrentUser(ctx context.Context, userID string) (*models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, storeErr("load user", err)
	}
	if user == nil {
		return nil, domain.E(domain.KindNotFound, "user not found")
	}
	return user, nil
}

type UpdateProfileInput struct {
	Name    string
	Phone   string
	Address string
	City    string
	ZipCode string
}

// UpdateProfile overwrites only the fields the caller supplied.
func (s *AuthService) UpdateProfile(ctx context.Context, userID string, in UpdateProfileInput) (*models.User, error) {
	user, err := s.CurrentUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	if in.Name != "" {
		user.Name = in.Name
	}
	if in.Phone != "" {
		if !phonePattern.MatchString(in.Phone) {
			return nil, domain.E(domain.KindValidation, "phone must be exactly 10 digits")
		}
		user.Phone = in.Phone
	}
	if in.Address != "" {
		user.Address = in.Address
	}
	if in.City != "" {
		user.City = in.City
	}
	if in.ZipCode != "" {
		user.ZipCode = in.ZipCode
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.users.UpdateProfile(ctx, user); err != nil {
		return nil, storeErr("update profile", err)
	}
	return user, nil
}

func (s *AuthService) ChangePassword(ctx context.Context, userID, current, newPassword, confirm string) error {
	if current == "" || newPassword == "" || confirm == "" {
		return domain.E(domain.KindValidation, "all password fields are required")
	}
	if newPassword != confirm {
		return domain.E(domain.KindValidation, "new passwords do not match")
	}
	if len(newPassword) < 8 {
		return domain.E(domain.KindValidation, "new password must be at least 8 characters")
	}

	user, err := s.CurrentUser(ctx, userID)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(current)); err != nil {
		return domain.E(domain.KindUnauthorized, "current password is incorrect")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return domain.Wrap(domain.KindInternal, "hash password", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.users.UpdatePassword(ctx, userID, string(hash)); err != nil {
		return storeErr("update password", err)
	}
	return nil
}

func validateRegistration(in RegisterInput) error {
	switch {
	case len(in.Name) < 2:
		return domain.E(domain.KindValidation, "name must be at least 2 characters")
	case !validEmail(in.Email):
		return domain.E(domain.KindValidation, "please provide a valid email")
	case !phonePattern.MatchString(in.Phone):
		return domain.E(domain.KindValidation, "phone must be exactly 10 digits")
	case len(in.Password) < 8:
		return domain.E(domain.KindValidation, "password must be at least 8 characters")
	case in.Password != in.ConfirmPassword:
		return domain.E(domain.KindValidation, "passwords do not match")
	}
	return nil
}

func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}
