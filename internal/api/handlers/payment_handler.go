package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dj-pizzaria/storefront/internal/domain"
	"github.com/dj-pizzaria/storefront/internal/payment"
)

// PaymentHandler is the thin boundary to the external payment collaborator.
type PaymentHandler struct {
	intents        payment.IntentClient
	publishableKey string
	currency       string
	timeout        time.Duration
}

func NewPaymentHandler(intents payment.IntentClient, publishableKey, currency string, timeout time.Duration) *PaymentHandler {
	return &PaymentHandler{
		intents:        intents,
		publishableKey: publishableKey,
		currency:       currency,
		timeout:        timeout,
	}
}

type createIntentRequest struct {
	// Amount is in minor currency units.
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// CreateIntent handles POST /payments/create-payment-intent.
func (h *PaymentHandler) CreateIntent(w http.ResponseWriter, r *http.Request) {
	var req createIntentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Amount < 1 {
		writeError(w, domain.E(domain.KindValidation, "a valid amount is required"))
		return
	}

	currency := req.Currency
	if currency == "" {
		currency = h.currency
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	intent, err := h.intents.CreateIntent(ctx, req.Amount, currency, req.Metadata)
	if err != nil {
		if errors.Is(err, payment.ErrUnavailable) {
			writeError(w, domain.Wrap(domain.KindTransient, "payment collaborator unavailable", err))
		} else {
			writeError(w, domain.Wrap(domain.KindInternal, "create payment intent", err))
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"clientSecret":   intent.ClientSecret,
		"publishableKey": h.publishableKey,
	})
}
