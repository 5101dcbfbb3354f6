// Package pricing is the single implementation of cart pricing shared by the
// server (authoritative totals) and the client (optimistic preview), so the
// two can never diverge.
package pricing

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Kind is a voucher discount kind.
type Kind string

const (
	BOGO    Kind = "BOGO"
	Percent Kind = "PERCENT"
	Amount  Kind = "AMOUNT"
)

// LineItem is the minimal shape pricing needs from a cart line.
type LineItem struct {
	Price decimal.Decimal
	Qty   int
}

// Malformed numeric input (negative price or quantity) is clamped to zero
// before computation. This is a deliberate permissive policy: a bad line
// contributes nothing rather than failing the whole cart, and it guarantees
// subtotal and discount are never negative.
func coerce(it LineItem) (decimal.Decimal, int) {
	price := it.Price
	if price.IsNegative() {
		price = decimal.Zero
	}
	qty := it.Qty
	if qty < 0 {
		qty = 0
	}
	return price, qty
}

// Subtotal sums price x quantity over all items.
func Subtotal(items []LineItem) decimal.Decimal {
	sum := decimal.Zero
	for _, it := range items {
		price, qty := coerce(it)
		sum = sum.Add(price.Mul(decimal.NewFromInt(int64(qty))))
	}
	return sum
}

// Discount computes the discount for a voucher of the given kind and value
// against the cart. It never exceeds Subtotal(items) and is never negative,
// even for adversarial voucher values. Unknown kinds discount nothing.
func Discount(kind Kind, value decimal.Decimal, items []LineItem) decimal.Decimal {
	switch kind {
	case BOGO:
		return bogoDiscount(items)
	case Percent:
		if value.IsNegative() {
			return decimal.Zero
		}
		sub := Subtotal(items)
		d := sub.Mul(value).Div(decimal.NewFromInt(100)).Round(2)
		if d.GreaterThan(sub) {
			return sub
		}
		return d
	case Amount:
		if value.IsNegative() {
			return decimal.Zero
		}
		sub := Subtotal(items)
		if value.GreaterThan(sub) {
			return sub
		}
		return value
	default:
		return decimal.Zero
	}
}

// bogoDiscount frees the single cheapest unit across the whole cart: every
// line expands into qty per-unit price entries, and the lowest one is free.
// Order-independent, 0 for an empty cart.
func bogoDiscount(items []LineItem) decimal.Decimal {
	var units []decimal.Decimal
	for _, it := range items {
		price, qty := coerce(it)
		for k := 0; k < qty; k++ {
			units = append(units, price)
		}
	}
	if len(units) == 0 {
		return decimal.Zero
	}
	sort.Slice(units, func(i, j int) bool { return units[i].LessThan(units[j]) })
	return units[0]
}

// Total is the amount the customer pays, floored at zero.
func Total(subtotal, discount decimal.Decimal) decimal.Decimal {
	t := subtotal.Sub(discount)
	if t.IsNegative() {
		return decimal.Zero
	}
	return t
}
