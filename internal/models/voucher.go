package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dj-pizzaria/storefront/pkg/pricing"
)

// Voucher is a single-use discount entitlement. It transitions
// used=false -> true at most once, and only while active and unexpired;
// once used it is permanently inactive. Vouchers are never deleted, they
// stay behind as audit records.
type Voucher struct {
	ID         int64
	Code       string
	Type       pricing.Kind
	Value      decimal.Decimal
	AssignedTo *string // nil = usable by any account
	IsActive   bool
	Used       bool
	ExpiresAt  *time.Time
	RedeemedAt *time.Time
	RedeemedBy *string
	CreatedAt  time.Time
}

// DefaultVoucherTTL matches the welcome voucher lifetime.
const DefaultVoucherTTL = 30 * 24 * time.Hour

// NormalizeCode canonicalizes a voucher code for storage and lookup.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
