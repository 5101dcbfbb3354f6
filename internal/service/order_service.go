package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dj-pizzaria/storefront/internal/domain"
	"github.com/dj-pizzaria/storefront/internal/models"
	"github.com/dj-pizzaria/storefront/internal/payment"
	"github.com/dj-pizzaria/storefront/pkg/pricing"
)

type OrderStore interface {
	Create(ctx context.Context, o *models.Order) error
	GetByID(ctx context.Context, id string) (*models.Order, error)
	ListByUser(ctx context.Context, userID string) ([]models.Order, error)
	UpdateStatus(ctx context.Context, id, userID string, from, to models.OrderStatus) (bool, error)
}

type VoucherRedeemer interface {
	Preview(ctx context.Context, code, userID string) (*models.Voucher, error)
	Redeem(ctx context.Context, code, userID string) error
}

type IdempotencyStore interface {
	Claim(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

// OrderService is the only path that creates binding order records and,
// through the voucher service, the only path that consumes vouchers.
type OrderService struct {
	orders         OrderStore
	vouchers       VoucherRedeemer
	idem           IdempotencyStore
	intents        payment.IntentClient
	currency       string
	storeTimeout   time.Duration
	paymentTimeout time.Duration
}

func NewOrderService(
	orders OrderStore,
	vouchers VoucherRedeemer,
	idem IdempotencyStore,
	intents payment.IntentClient,
	currency string,
	storeTimeout, paymentTimeout time.Duration,
) *OrderService {
	return &OrderService{
		orders:         orders,
		vouchers:       vouchers,
		idem:           idem,
		intents:        intents,
		currency:       currency,
		storeTimeout:   storeTimeout,
		paymentTimeout: paymentTimeout,
	}
}

type CreateOrderInput struct {
	UserID         string
	Items          models.OrderItems
	VoucherCode    string
	PaymentMethod  string
	IdempotencyKey string
}

type CreateOrderResult struct {
	Order *models.Order
	// Intent is set on the deferred-payment path only.
	Intent *payment.Intent
}

// Create prices the cart server-side, optionally redeems a voucher, and
// persists the order. Synchronous settlement (the "test" method) redeems
// first and aborts on CONFLICT so no order is written when the voucher
// race is lost. Deferred payment leaves the voucher untouched; redemption
// happens later through ConfirmPayment.
func (s *OrderService) Create(ctx context.Context, in CreateOrderInput) (*CreateOrderResult, error) {
	if len(in.Items) == 0 {
		return nil, domain.E(domain.KindValidation, "cart items are required")
	}

	lines := in.Items.Lines()
	subtotal := pricing.Subtotal(lines)

	var voucher *models.Voucher
	discount := decimal.Zero
	if in.VoucherCode != "" {
		v, err := s.vouchers.Preview(ctx, in.VoucherCode, in.UserID)
		if err != nil {
			return nil, err
		}
		voucher = v
		discount = pricing.Discount(voucher.Type, voucher.Value, lines)
	}
	total := pricing.Total(subtotal, discount)

	order := &models.Order{
		ID:            uuid.NewString(),
		UserID:        in.UserID,
		Items:         in.Items,
		Subtotal:      subtotal,
		Discount:      discount,
		Total:         total,
		PaymentMethod: in.PaymentMethod,
	}
	if voucher != nil {
		code := voucher.Code
		order.VoucherCode = &code
	}

	if in.PaymentMethod == models.PaymentMethodTest {
		return s.createPaid(ctx, in, order, voucher)
	}
	return s.createDeferred(ctx, order)
}

func (s *OrderService) createPaid(ctx context.Context, in CreateOrderInput, order *models.Order, voucher *models.Voucher) (*CreateOrderResult, error) {
	// Duplicate-submission gate. Claimed before any side effect, released
	// again if this attempt fails so the client's retry is not blocked.
	var claimed string
	if in.IdempotencyKey != "" && s.idem != nil {
		key := in.UserID + ":" + in.IdempotencyKey
		ok, err := s.idem.Claim(ctx, key)
		if err != nil {
			return nil, domain.Wrap(domain.KindTransient, "idempotency check failed", err)
		}
		if !ok {
			return nil, domain.E(domain.KindConflict, "duplicate order submission")
		}
		claimed = key
	}

	if voucher != nil {
		if err := s.vouchers.Redeem(ctx, voucher.Code, in.UserID); err != nil {
			s.release(ctx, claimed)
			return nil, err
		}
	}

	order.Status = models.OrderPaid

	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	if err := s.orders.Create(storeCtx, order); err != nil {
		s.release(ctx, claimed)
		return nil, storeErr("persist order", err)
	}
	return &CreateOrderResult{Order: order}, nil
}

func (s *OrderService) createDeferred(ctx context.Context, order *models.Order) (*CreateOrderResult, error) {
	// Intent first: a persist failure afterwards only strands an uncaptured
	// intent, never a pending order without a payment handle.
	payCtx, cancel := context.WithTimeout(ctx, s.paymentTimeout)
	defer cancel()
	intent, err := s.intents.CreateIntent(payCtx, MinorUnits(order.Total), s.currency, map[string]string{
		"orderId": order.ID,
		"userId":  order.UserID,
	})
	if err != nil {
		return nil, paymentErr(err)
	}

	order.Status = models.OrderPending
	order.PaymentIntentID = &intent.ID

	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	if err := s.orders.Create(storeCtx, order); err != nil {
		return nil, storeErr("persist order", err)
	}
	return &CreateOrderResult{Order: order, Intent: intent}, nil
}

// ConfirmPayment settles a deferred order: the intent must have succeeded
// at the collaborator, then the voucher (if any) is redeemed and the order
// transitions PENDING -> PAID.
func (s *OrderService) ConfirmPayment(ctx context.Context, userID, orderID string) (*models.Order, error) {
	o, err := s.getOwned(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status != models.OrderPending {
		return nil, domain.E(domain.KindNotUsable, "order is not awaiting payment")
	}
	if o.PaymentIntentID == nil {
		return nil, domain.E(domain.KindValidation, "order has no payment intent")
	}

	payCtx, cancel := context.WithTimeout(ctx, s.paymentTimeout)
	defer cancel()
	intent, err := s.intents.GetIntent(payCtx, *o.PaymentIntentID)
	if err != nil {
		return nil, paymentErr(err)
	}
	if intent.Status != payment.StatusSucceeded {
		return nil, domain.E(domain.KindValidation, "payment has not succeeded")
	}

	if o.VoucherCode != nil {
		if err := s.vouchers.Redeem(ctx, *o.VoucherCode, userID); err != nil {
			return nil, err
		}
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	ok, err := s.orders.UpdateStatus(storeCtx, orderID, userID, models.OrderPending, models.OrderPaid)
	if err != nil {
		return nil, storeErr("mark order paid", err)
	}
	if !ok {
		return nil, domain.E(domain.KindNotUsable, "order is not awaiting payment")
	}

	o.Status = models.OrderPaid
	return o, nil
}

// Cancel transitions PENDING -> CANCELLED. Paid orders are immutable.
func (s *OrderService) Cancel(ctx context.Context, userID, orderID string) (*models.Order, error) {
	o, err := s.getOwned(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	ok, err := s.orders.UpdateStatus(storeCtx, orderID, userID, models.OrderPending, models.OrderCancelled)
	if err != nil {
		return nil, storeErr("cancel order", err)
	}
	if !ok {
		return nil, domain.E(domain.KindNotUsable, "only pending orders can be cancelled")
	}

	o.Status = models.OrderCancelled
	return o, nil
}

func (s *OrderService) Get(ctx context.Context, userID, orderID string) (*models.Order, error) {
	return s.getOwned(ctx, userID, orderID)
}

func (s *OrderService) List(ctx context.Context, userID string) ([]models.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	orders, err := s.orders.ListByUser(ctx, userID)
	if err != nil {
		return nil, storeErr("list orders", err)
	}
	return orders, nil
}

func (s *OrderService) getOwned(ctx context.Context, userID, orderID string) (*models.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, storeErr("load order", err)
	}
	if o == nil {
		return nil, domain.E(domain.KindNotFound, "order not found")
	}
	if o.UserID != userID {
		return nil, domain.E(domain.KindForbidden, "order belongs to another user")
	}
	return o, nil
}

func (s *OrderService) release(ctx context.Context, key string) {
	if key == "" || s.idem == nil {
		return
	}
	// best effort; a leftover claim expires with its TTL
	_ = s.idem.Release(ctx, key)
}

// MinorUnits converts a currency amount to the smallest unit the payment
// collaborator expects (e.g. 12.34 -> 1234).
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

func paymentErr(err error) error {
	if errors.Is(err, payment.ErrUnavailable) {
		return domain.Wrap(domain.KindTransient, "payment collaborator unavailable", err)
	}
	return domain.Wrap(domain.KindInternal, "payment collaborator call failed", err)
}
