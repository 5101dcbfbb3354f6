package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestSubtotal(t *testing.T) {
	items := []LineItem{
		{Price: d("10"), Qty: 2},
		{Price: d("6"), Qty: 1},
	}
	assert.True(t, Subtotal(items).Equal(d("26")))
}

func TestSubtotal_ClampsMalformedInput(t *testing.T) {
	items := []LineItem{
		{Price: d("-5"), Qty: 3},  // negative price contributes nothing
		{Price: d("10"), Qty: -2}, // negative quantity contributes nothing
		{Price: d("4.50"), Qty: 2},
	}
	assert.True(t, Subtotal(items).Equal(d("9.00")))
}

func TestDiscount_BOGO(t *testing.T) {
	// units [10,10,6] -> cheapest unit 6 is free
	items := []LineItem{
		{Price: d("10"), Qty: 2},
		{Price: d("6"), Qty: 1},
	}
	assert.True(t, Discount(BOGO, decimal.Zero, items).Equal(d("6")))
}

func TestDiscount_BOGO_EmptyCart(t *testing.T) {
	assert.True(t, Discount(BOGO, decimal.Zero, nil).IsZero())
}

func TestDiscount_BOGO_OrderIndependent(t *testing.T) {
	a := []LineItem{{Price: d("6"), Qty: 1}, {Price: d("10"), Qty: 2}}
	b := []LineItem{{Price: d("10"), Qty: 2}, {Price: d("6"), Qty: 1}}
	assert.True(t, Discount(BOGO, decimal.Zero, a).Equal(Discount(BOGO, decimal.Zero, b)))
}

func TestDiscount_Percent(t *testing.T) {
	items := []LineItem{{Price: d("50.00"), Qty: 1}}
	got := Discount(Percent, d("20"), items)
	assert.True(t, got.Equal(d("10.00")), "got %s", got)
	assert.True(t, Total(Subtotal(items), got).Equal(d("40.00")))
}

func TestDiscount_Percent_NeverExceedsSubtotal(t *testing.T) {
	items := []LineItem{{Price: d("50"), Qty: 1}}
	assert.True(t, Discount(Percent, d("250"), items).Equal(d("50")))
}

func TestDiscount_Amount_CappedAtSubtotal(t *testing.T) {
	items := []LineItem{{Price: d("60.00"), Qty: 1}}
	got := Discount(Amount, d("100"), items)
	assert.True(t, got.Equal(d("60.00")))
	assert.True(t, Total(Subtotal(items), got).IsZero())
}

func TestDiscount_UnknownKind(t *testing.T) {
	items := []LineItem{{Price: d("10"), Qty: 1}}
	assert.True(t, Discount(Kind("MYSTERY"), d("99"), items).IsZero())
}

func TestDiscount_AdversarialValues(t *testing.T) {
	items := []LineItem{
		{Price: d("12.50"), Qty: 2},
		{Price: d("7.99"), Qty: 1},
	}
	sub := Subtotal(items)
	for _, kind := range []Kind{BOGO, Percent, Amount} {
		for _, value := range []string{"-100", "0", "50", "100", "10000"} {
			disc := Discount(kind, d(value), items)
			assert.False(t, disc.IsNegative(), "%s/%s discount negative", kind, value)
			assert.False(t, disc.GreaterThan(sub), "%s/%s discount exceeds subtotal", kind, value)
			assert.False(t, Total(sub, disc).IsNegative(), "%s/%s total negative", kind, value)
		}
	}
}

func TestTotal_FlooredAtZero(t *testing.T) {
	assert.True(t, Total(d("10"), d("25")).IsZero())
}
