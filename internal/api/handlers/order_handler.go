package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/dj-pizzaria/storefront/internal/api/middleware"
	"github.com/dj-pizzaria/storefront/internal/domain"
	"github.com/dj-pizzaria/storefront/internal/models"
	"github.com/dj-pizzaria/storefront/internal/service"
)

type OrderService interface {
	Create(ctx context.Context, in service.CreateOrderInput) (*service.CreateOrderResult, error)
	ConfirmPayment(ctx context.Context, userID, orderID string) (*models.Order, error)
	Cancel(ctx context.Context, userID, orderID string) (*models.Order, error)
	Get(ctx context.Context, userID, orderID string) (*models.Order, error)
	List(ctx context.Context, userID string) ([]models.Order, error)
}

type OrderHandler struct {
	service        OrderService
	publishableKey string
}

func NewOrderHandler(service OrderService, publishableKey string) *OrderHandler {
	return &OrderHandler{service: service, publishableKey: publishableKey}
}

type orderItemRequest struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Qty       int             `json:"qty"`
}

type createOrderRequest struct {
	Items          []orderItemRequest `json:"items"`
	VoucherCode    string             `json:"voucherCode,omitempty"`
	PaymentMethod  string             `json:"paymentMethod"`
	IdempotencyKey string             `json:"idempotencyKey,omitempty"`
}

type orderDTO struct {
	ID              string             `json:"id"`
	Items           []models.OrderItem `json:"items"`
	Subtotal        decimal.Decimal    `json:"subtotal"`
	Discount        decimal.Decimal    `json:"discount"`
	Total           decimal.Decimal    `json:"total"`
	VoucherCode     *string            `json:"voucherCode"`
	PaymentMethod   string             `json:"paymentMethod"`
	PaymentIntentID *string            `json:"paymentIntentId,omitempty"`
	Status          string             `json:"status"`
	CreatedAt       time.Time          `json:"createdAt"`
	UpdatedAt       time.Time          `json:"updatedAt"`
}

type paymentIntentDTO struct {
	ID             string `json:"id"`
	ClientSecret   string `json:"clientSecret"`
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
	PublishableKey string `json:"publishableKey,omitempty"`
}

func orderToDTO(o *models.Order) orderDTO {
	return orderDTO{
		ID:              o.ID,
		Items:           o.Items,
		Subtotal:        o.Subtotal,
		Discount:        o.Discount,
		Total:           o.Total,
		VoucherCode:     o.VoucherCode,
		PaymentMethod:   o.PaymentMethod,
		PaymentIntentID: o.PaymentIntentID,
		Status:          string(o.Status),
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
}

// Create handles POST /orders.
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserID(r.Context())

	var req createOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if len(req.Items) == 0 {
		writeError(w, domain.E(domain.KindValidation, "cart items are required"))
		return
	}

	items := make(models.OrderItems, len(req.Items))
	for i, it := range req.Items {
		if it.ProductID == "" {
			writeError(w, domain.E(domain.KindValidation, "every item needs a productId"))
			return
		}
		items[i] = models.OrderItem{
			ProductID: it.ProductID,
			Name:      it.Name,
			Price:     it.Price,
			Qty:       it.Qty,
		}
	}

	// No default: an absent method must never settle synchronously and
	// consume a voucher without payment.
	if req.PaymentMethod == "" {
		writeError(w, domain.E(domain.KindValidation, "paymentMethod is required"))
		return
	}

	result, err := h.service.Create(r.Context(), service.CreateOrderInput{
		UserID:         userID,
		Items:          items,
		VoucherCode:    req.VoucherCode,
		PaymentMethod:  req.PaymentMethod,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	resp := map[string]any{
		"success": true,
		"message": "order created and paid",
		"order":   orderToDTO(result.Order),
	}
	if result.Intent != nil {
		resp["message"] = "order created (pending payment)"
		resp["paymentIntent"] = paymentIntentDTO{
			ID:             result.Intent.ID,
			ClientSecret:   result.Intent.ClientSecret,
			Amount:         result.Intent.Amount,
			Currency:       result.Intent.Currency,
			PublishableKey: h.publishableKey,
		}
	}
	writeJSON(w, http.StatusCreated, resp)
}

// List handles GET /orders.
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserID(r.Context())

	orders, err := h.service.List(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}

	dtos := make([]orderDTO, len(orders))
	for i := range orders {
		dtos[i] = orderToDTO(&orders[i])
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"orders":  dtos,
	})
}

// Get handles GET /orders/{orderID}.
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserID(r.Context())

	o, err := h.service.Get(r.Context(), userID, chi.URLParam(r, "orderID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"order":   orderToDTO(o),
	})
}

// Cancel handles POST /orders/{orderID}/cancel.
func (h *OrderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserID(r.Context())

	o, err := h.service.Cancel(r.Context(), userID, chi.URLParam(r, "orderID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "order cancelled",
		"order":   orderToDTO(o),
	})
}

// ConfirmPayment handles POST /orders/{orderID}/confirm-payment: the
// deferred-payment settlement path.
func (h *OrderHandler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserID(r.Context())

	o, err := h.service.ConfirmPayment(r.Context(), userID, chi.URLParam(r, "orderID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "payment confirmed",
		"order":   orderToDTO(o),
	})
}
