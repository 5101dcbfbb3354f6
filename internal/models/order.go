package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dj-pizzaria/storefront/pkg/pricing"
)

type OrderStatus string

const (
	OrderPending   OrderStatus = "PENDING"
	OrderPaid      OrderStatus = "PAID"
	OrderCancelled OrderStatus = "CANCELLED"
)

// PaymentMethodTest settles synchronously: the order is created directly
// as PAID and the voucher (if any) is redeemed in the same request.
const PaymentMethodTest = "test"

type OrderItem struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Qty       int             `json:"qty"`
}

// OrderItems is stored as a JSONB document alongside the order.
type OrderItems []OrderItem

func (its OrderItems) Value() (driver.Value, error) {
	return json.Marshal(its)
}

func (its *OrderItems) Scan(src any) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, its)
	case string:
		return json.Unmarshal([]byte(v), its)
	default:
		return fmt.Errorf("unsupported order items source %T", src)
	}
}

// Lines adapts the items for the shared pricing implementation.
func (its OrderItems) Lines() []pricing.LineItem {
	lines := make([]pricing.LineItem, len(its))
	for i, it := range its {
		lines[i] = pricing.LineItem{Price: it.Price, Qty: it.Qty}
	}
	return lines
}

// Order is a binding checkout record. Subtotal, discount and total are
// always recomputed server-side from items + voucher; client-sent totals
// are never trusted. PENDING -> PAID and PENDING -> CANCELLED are the only
// transitions, both terminal.
type Order struct {
	ID              string
	UserID          string
	Items           OrderItems
	Subtotal        decimal.Decimal
	Discount        decimal.Decimal
	Total           decimal.Decimal
	VoucherCode     *string
	PaymentMethod   string
	PaymentIntentID *string
	Status          OrderStatus
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
