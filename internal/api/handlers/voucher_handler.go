package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dj-pizzaria/storefront/internal/api/middleware"
	"github.com/dj-pizzaria/storefront/internal/models"
)

type VoucherService interface {
	Preview(ctx context.Context, code, userID string) (*models.Voucher, error)
	Redeem(ctx context.Context, code, userID string) error
}

type VoucherHandler struct {
	service VoucherService
}

func NewVoucherHandler(service VoucherService) *VoucherHandler {
	return &VoucherHandler{service: service}
}

type voucherCodeRequest struct {
	Code string `json:"code"`
}

type voucherDTO struct {
	Code      string          `json:"code"`
	Type      string          `json:"type"`
	Value     decimal.Decimal `json:"value"`
	ExpiresAt *time.Time      `json:"expiresAt,omitempty"`
}

// Apply handles POST /vouchers/apply: validates the voucher for the
// requesting user without consuming it. The caller prices the discount
// itself against its current cart.
func (h *VoucherHandler) Apply(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserID(r.Context())

	var req voucherCodeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	v, err := h.service.Preview(r.Context(), req.Code, userID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "voucher valid",
		"voucher": voucherDTO{
			Code:      v.Code,
			Type:      string(v.Type),
			Value:     v.Value,
			ExpiresAt: v.ExpiresAt,
		},
	})
}

// Redeem handles POST /vouchers/redeem: marks the voucher used, for flows
// that settle payment outside order creation.
func (h *VoucherHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserID(r.Context())

	var req voucherCodeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	if err := h.service.Redeem(r.Context(), req.Code, userID); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "voucher redeemed",
	})
}
