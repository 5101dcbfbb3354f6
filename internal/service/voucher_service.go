package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dj-pizzaria/storefront/internal/domain"
	"github.com/dj-pizzaria/storefront/internal/models"
	"github.com/dj-pizzaria/storefront/pkg/pricing"
)

// VoucherStore is the persistence surface the service needs (interface so
// tests can substitute an in-memory store).
type VoucherStore interface {
	GetByCode(ctx context.Context, code string) (*models.Voucher, error)
	Create(ctx context.Context, v *models.Voucher) error
	HasActiveAssigned(ctx context.Context, userID string) (bool, error)
	Redeem(ctx context.Context, code, userID string, now time.Time) (bool, error)
}

type VoucherService struct {
	vouchers VoucherStore
	timeout  time.Duration
	now      func() time.Time
}

func NewVoucherService(vouchers VoucherStore, timeout time.Duration) *VoucherService {
	return &VoucherService{vouchers: vouchers, timeout: timeout, now: time.Now}
}

// Preview confirms a voucher is currently usable by the user without
// consuming it, and returns the voucher so the caller can price the
// discount against its own cart. Checks run in a fixed order so the
// failure kind is deterministic.
func (s *VoucherService) Preview(ctx context.Context, code, userID string) (*models.Voucher, error) {
	code = models.NormalizeCode(code)
	if code == "" {
		return nil, domain.E(domain.KindValidation, "voucher code is required")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	v, err := s.vouchers.GetByCode(ctx, code)
	if err != nil {
		return nil, storeErr("load voucher", err)
	}
	if err := s.usableBy(v, userID); err != nil {
		return nil, err
	}
	return v, nil
}

func (s *VoucherService) usableBy(v *models.Voucher, userID string) error {
	switch {
	case v == nil:
		return domain.E(domain.KindNotFound, "voucher not found")
	case !v.IsActive || v.Used:
		return domain.E(domain.KindNotUsable, "voucher is not active")
	case v.AssignedTo != nil && *v.AssignedTo != userID:
		return domain.E(domain.KindForbidden, "voucher not assigned to this user")
	case v.ExpiresAt != nil && !s.now().Before(*v.ExpiresAt):
		return domain.E(domain.KindExpired, "voucher has expired")
	}
	return nil
}

// Redeem marks a voucher consumed. Eligibility is previewed first for a
// precise failure kind, then the store performs a single conditional
// update that re-checks everything. A request that loses the race between
// preview and update gets CONFLICT and no side effects.
func (s *VoucherService) Redeem(ctx context.Context, code, userID string) error {
	v, err := s.Preview(ctx, code, userID)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	ok, err := s.vouchers.Redeem(ctx, v.Code, userID, s.now())
	if err != nil {
		return storeErr("redeem voucher", err)
	}
	if !ok {
		return domain.E(domain.KindConflict, "voucher could not be redeemed, it may have been used by another request")
	}
	return nil
}

// IssueWelcome assigns a fresh BOGO voucher to the user unless they already
// hold an active unused one. Returns nil without error when nothing is due.
func (s *VoucherService) IssueWelcome(ctx context.Context, userID string) (*models.Voucher, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	has, err := s.vouchers.HasActiveAssigned(ctx, userID)
	if err != nil {
		return nil, storeErr("check assigned vouchers", err)
	}
	if has {
		return nil, nil
	}

	code, err := welcomeCode()
	if err != nil {
		return nil, domain.Wrap(domain.KindInternal, "generate voucher code", err)
	}

	expires := s.now().Add(models.DefaultVoucherTTL)
	v := &models.Voucher{
		Code:       code,
		Type:       pricing.BOGO,
		Value:      decimal.Zero,
		AssignedTo: &userID,
		IsActive:   true,
		ExpiresAt:  &expires,
	}
	if err := s.vouchers.Create(ctx, v); err != nil {
		return nil, storeErr("create welcome voucher", err)
	}
	return v, nil
}

const welcomeCodeCharset = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

func welcomeCode() (string, error) {
	suffix := make([]byte, 6)
	for i := range suffix {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(welcomeCodeCharset))))
		if err != nil {
			return "", err
		}
		suffix[i] = welcomeCodeCharset[n.Int64()]
	}
	return "BOGO-" + string(suffix), nil
}

// storeErr classifies persistence failures: blown deadlines are TRANSIENT
// and safe to retry, everything else is INTERNAL.
func storeErr(msg string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return domain.Wrap(domain.KindTransient, fmt.Sprintf("%s timed out", msg), err)
	}
	return domain.Wrap(domain.KindInternal, msg, err)
}
