// Package client wraps the storefront HTTP API for the browsing/checkout
// front end. Failures carry the server's machine-checkable kind; only
// CONFLICT and TRANSIENT are retryable (re-validate the voucher, resubmit).
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dj-pizzaria/storefront/internal/domain"
	"github.com/dj-pizzaria/storefront/pkg/pricing"
)

const defaultTimeout = 10 * time.Second

type Client struct {
	baseURL string
	http    *http.Client
	token   string
}

func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: defaultTimeout},
	}
}

// SetToken attaches the bearer token sent with authenticated requests.
func (c *Client) SetToken(token string) { c.token = token }

type Voucher struct {
	Code      string          `json:"code"`
	Type      string          `json:"type"`
	Value     decimal.Decimal `json:"value"`
	ExpiresAt *time.Time      `json:"expiresAt"`
}

// VoucherPreview is a validated voucher priced against the local cart with
// the same pricing implementation the server uses, so the displayed totals
// match the server-authoritative ones.
type VoucherPreview struct {
	Voucher  Voucher
	Subtotal decimal.Decimal
	Discount decimal.Decimal
	Total    decimal.Decimal
}

// ApplyVoucher previews a voucher against the cart without consuming it.
func (c *Client) ApplyVoucher(ctx context.Context, code string, items []pricing.LineItem) (*VoucherPreview, error) {
	var resp struct {
		Voucher Voucher `json:"voucher"`
	}
	err := c.do(ctx, http.MethodPost, "/vouchers/apply", map[string]string{"code": code}, &resp)
	if err != nil {
		return nil, err
	}

	subtotal := pricing.Subtotal(items)
	discount := pricing.Discount(pricing.Kind(resp.Voucher.Type), resp.Voucher.Value, items)
	return &VoucherPreview{
		Voucher:  resp.Voucher,
		Subtotal: subtotal,
		Discount: discount,
		Total:    pricing.Total(subtotal, discount),
	}, nil
}

// RedeemVoucher marks a voucher used, for flows that settled payment
// outside order creation.
func (c *Client) RedeemVoucher(ctx context.Context, code string) error {
	return c.do(ctx, http.MethodPost, "/vouchers/redeem", map[string]string{"code": code}, nil)
}

type OrderItem struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Qty       int             `json:"qty"`
}

type CreateOrderRequest struct {
	Items          []OrderItem `json:"items"`
	VoucherCode    string      `json:"voucherCode,omitempty"`
	PaymentMethod  string      `json:"paymentMethod"`
	IdempotencyKey string      `json:"idempotencyKey,omitempty"`
}

type Order struct {
	ID          string          `json:"id"`
	Items       []OrderItem     `json:"items"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	Discount    decimal.Decimal `json:"discount"`
	Total       decimal.Decimal `json:"total"`
	VoucherCode *string         `json:"voucherCode"`
	Status      string          `json:"status"`
}

type PaymentIntent struct {
	ID             string `json:"id"`
	ClientSecret   string `json:"clientSecret"`
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
	PublishableKey string `json:"publishableKey"`
}

type OrderResult struct {
	Order *Order
	// Intent is present for deferred payment methods.
	Intent *PaymentIntent
}

func (c *Client) CreateOrder(ctx context.Context, req CreateOrderRequest) (*OrderResult, error) {
	var resp struct {
		Order         *Order         `json:"order"`
		PaymentIntent *PaymentIntent `json:"paymentIntent"`
	}
	if err := c.do(ctx, http.MethodPost, "/orders", req, &resp); err != nil {
		return nil, err
	}
	return &OrderResult{Order: resp.Order, Intent: resp.PaymentIntent}, nil
}

func (c *Client) ConfirmPayment(ctx context.Context, orderID string) (*Order, error) {
	var resp struct {
		Order *Order `json:"order"`
	}
	path := fmt.Sprintf("/orders/%s/confirm-payment", orderID)
	if err := c.do(ctx, http.MethodPost, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Order, nil
}

// Retryable reports whether the failed call may be resubmitted, after a
// fresh voucher preview. True only for CONFLICT and TRANSIENT.
func Retryable(err error) bool {
	return domain.Retryable(err)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &buf)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// transport trouble and timeouts are safe to retry
		return domain.Wrap(domain.KindTransient, "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return domain.Wrap(domain.KindInternal, "decode response", err)
		}
	}
	return nil
}

// decodeError reconstructs the server's failure kind so callers can make
// the retry decision without inspecting HTTP status codes.
func decodeError(resp *http.Response) error {
	var body struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Kind == "" {
		return domain.E(kindFromStatus(resp.StatusCode), "request rejected")
	}
	return domain.E(domain.Kind(body.Kind), body.Message)
}

func kindFromStatus(status int) domain.Kind {
	switch status {
	case http.StatusBadRequest:
		return domain.KindValidation
	case http.StatusUnauthorized:
		return domain.KindUnauthorized
	case http.StatusForbidden:
		return domain.KindForbidden
	case http.StatusNotFound:
		return domain.KindNotFound
	case http.StatusConflict:
		return domain.KindConflict
	case http.StatusServiceUnavailable:
		return domain.KindTransient
	default:
		return domain.KindInternal
	}
}
