package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dj-pizzaria/storefront/internal/domain"
	"github.com/dj-pizzaria/storefront/internal/models"
	"github.com/dj-pizzaria/storefront/internal/payment"
	"github.com/dj-pizzaria/storefront/pkg/pricing"
)

type memOrderStore struct {
	mu     sync.Mutex
	orders map[string]*models.Order
	err    error
}

func newMemOrderStore() *memOrderStore {
	return &memOrderStore{orders: make(map[string]*models.Order)}
}

func (s *memOrderStore) Create(_ context.Context, o *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	cp := *o
	s.orders[o.ID] = &cp
	return nil
}

func (s *memOrderStore) GetByID(_ context.Context, id string) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	o, ok := s.orders[id]
	if !ok {
		return nil, nil
	}
	cp := *o
	return &cp, nil
}

func (s *memOrderStore) ListByUser(_ context.Context, userID string) ([]models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	var out []models.Order
	for _, o := range s.orders {
		if o.UserID == userID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (s *memOrderStore) UpdateStatus(_ context.Context, id, userID string, from, to models.OrderStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return false, s.err
	}
	o, ok := s.orders[id]
	if !ok || o.UserID != userID || o.Status != from {
		return false, nil
	}
	o.Status = to
	return true, nil
}

func (s *memOrderStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

type memIdemStore struct {
	claimed map[string]bool
	err     error
}

func newMemIdemStore() *memIdemStore {
	return &memIdemStore{claimed: make(map[string]bool)}
}

func (s *memIdemStore) Claim(_ context.Context, key string) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	if s.claimed[key] {
		return false, nil
	}
	s.claimed[key] = true
	return true, nil
}

func (s *memIdemStore) Release(_ context.Context, key string) error {
	delete(s.claimed, key)
	return nil
}

type fakeIntentClient struct {
	intents map[string]*payment.Intent
	created int
	err     error
}

func newFakeIntentClient() *fakeIntentClient {
	return &fakeIntentClient{intents: make(map[string]*payment.Intent)}
}

func (c *fakeIntentClient) CreateIntent(_ context.Context, amount int64, currency string, _ map[string]string) (*payment.Intent, error) {
	if c.err != nil {
		return nil, c.err
	}
	c.created++
	in := &payment.Intent{
		ID:           "pi_" + string(rune('0'+c.created)),
		ClientSecret: "secret",
		Status:       "requires_payment_method",
		Amount:       amount,
		Currency:     currency,
	}
	c.intents[in.ID] = in
	return in, nil
}

func (c *fakeIntentClient) GetIntent(_ context.Context, id string) (*payment.Intent, error) {
	if c.err != nil {
		return nil, c.err
	}
	in, ok := c.intents[id]
	if !ok {
		return nil, assert.AnError
	}
	cp := *in
	return &cp, nil
}

type orderFixture struct {
	svc      *OrderService
	orders   *memOrderStore
	vouchers *memVoucherStore
	idem     *memIdemStore
	intents  *fakeIntentClient
}

func newOrderFixture(vs ...*models.Voucher) *orderFixture {
	f := &orderFixture{
		orders:   newMemOrderStore(),
		vouchers: newMemVoucherStore(vs...),
		idem:     newMemIdemStore(),
		intents:  newFakeIntentClient(),
	}
	redeemer := NewVoucherService(f.vouchers, time.Second)
	f.svc = NewOrderService(f.orders, redeemer, f.idem, f.intents, "inr", time.Second, time.Second)
	return f
}

func cartItems() models.OrderItems {
	return models.OrderItems{
		{ProductID: "p1", Name: "Margherita", Price: decimal.NewFromInt(10), Qty: 2},
		{ProductID: "p2", Name: "Garlic Bread", Price: decimal.NewFromInt(6), Qty: 1},
	}
}

func TestCreate_RequiresItems(t *testing.T) {
	f := newOrderFixture()

	_, err := f.svc.Create(context.Background(), CreateOrderInput{
		UserID:        "user-1",
		PaymentMethod: models.PaymentMethodTest,
	})
	require.Error(t, err)
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))
	assert.Empty(t, f.orders.orders)
}

func TestCreate_SyncWithoutVoucher(t *testing.T) {
	f := newOrderFixture()

	res, err := f.svc.Create(context.Background(), CreateOrderInput{
		UserID:        "user-1",
		Items:         cartItems(),
		PaymentMethod: models.PaymentMethodTest,
	})
	require.NoError(t, err)

	assert.Equal(t, models.OrderPaid, res.Order.Status)
	assert.True(t, res.Order.Subtotal.Equal(decimal.NewFromInt(26)))
	assert.True(t, res.Order.Discount.IsZero())
	assert.True(t, res.Order.Total.Equal(decimal.NewFromInt(26)))
	assert.Nil(t, res.Intent)
	assert.Len(t, f.orders.orders, 1)
	assert.Zero(t, f.intents.created)
}

func TestCreate_SyncRedeemsVoucherBeforePersist(t *testing.T) {
	f := newOrderFixture(activeVoucher("SAVE20", nil))

	res, err := f.svc.Create(context.Background(), CreateOrderInput{
		UserID:        "user-1",
		Items:         cartItems(),
		VoucherCode:   "save20 ",
		PaymentMethod: models.PaymentMethodTest,
	})
	require.NoError(t, err)

	// 20% of 26
	assert.True(t, res.Order.Discount.Equal(decimal.NewFromFloat(5.20)), "got %s", res.Order.Discount)
	assert.True(t, res.Order.Total.Equal(decimal.NewFromFloat(20.80)))
	require.NotNil(t, res.Order.VoucherCode)
	assert.Equal(t, "SAVE20", *res.Order.VoucherCode)
	assert.True(t, f.vouchers.vouchers["SAVE20"].Used)
}

func TestCreate_SyncAbortsWhenVoucherAlreadyUsed(t *testing.T) {
	v := activeVoucher("SAVE20", nil)
	f := newOrderFixture(v)

	// rival consumed the voucher before this request
	v.Used = true
	v.IsActive = false

	_, err := f.svc.Create(context.Background(), CreateOrderInput{
		UserID:        "user-1",
		Items:         cartItems(),
		VoucherCode:   "SAVE20",
		PaymentMethod: models.PaymentMethodTest,
	})
	require.Error(t, err)
	assert.Equal(t, domain.KindNotUsable, domain.KindOf(err))
	assert.Empty(t, f.orders.orders, "no order may exist after a failed redemption")
}

func TestCreate_ConcurrentVoucherSingleOrder(t *testing.T) {
	f := newOrderFixture(activeVoucher("SAVE20", nil))

	const attempts = 10
	var successes, losses atomic.Int64
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			<-start
			userID := "user-" + string(rune('a'+n))
			_, err := f.svc.Create(context.Background(), CreateOrderInput{
				UserID:        userID,
				Items:         cartItems(),
				VoucherCode:   "SAVE20",
				PaymentMethod: models.PaymentMethodTest,
			})
			switch {
			case err == nil:
				successes.Add(1)
			case domain.KindOf(err) == domain.KindConflict,
				domain.KindOf(err) == domain.KindNotUsable:
				// lost the redemption race either after or before preview
				losses.Add(1)
			default:
				t.Errorf("unexpected failure kind %s: %v", domain.KindOf(err), err)
			}
		}(i)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int64(1), successes.Load())
	assert.Equal(t, int64(attempts-1), losses.Load())
	// exactly one binding order exists and the voucher records one redeemer
	assert.Equal(t, 1, f.orders.count())
	v := f.vouchers.vouchers["SAVE20"]
	assert.True(t, v.Used)
	require.NotNil(t, v.RedeemedBy)

	for _, o := range f.orders.orders {
		assert.Equal(t, *v.RedeemedBy, o.UserID)
	}
}

func TestCreate_SyncBogoUsesCheapestUnit(t *testing.T) {
	exp := time.Now().Add(time.Hour)
	f := newOrderFixture(&models.Voucher{
		Code: "BOGO-ABC123", Type: pricing.BOGO, Value: decimal.Zero,
		IsActive: true, ExpiresAt: &exp,
	})

	res, err := f.svc.Create(context.Background(), CreateOrderInput{
		UserID:        "user-1",
		Items:         cartItems(),
		VoucherCode:   "BOGO-ABC123",
		PaymentMethod: models.PaymentMethodTest,
	})
	require.NoError(t, err)
	assert.True(t, res.Order.Discount.Equal(decimal.NewFromInt(6)), "got %s", res.Order.Discount)
	assert.True(t, res.Order.Total.Equal(decimal.NewFromInt(20)))
}

func TestCreate_DuplicateSubmissionConflicts(t *testing.T) {
	f := newOrderFixture()
	in := CreateOrderInput{
		UserID:         "user-1",
		Items:          cartItems(),
		PaymentMethod:  models.PaymentMethodTest,
		IdempotencyKey: "k1",
	}

	_, err := f.svc.Create(context.Background(), in)
	require.NoError(t, err)

	_, err = f.svc.Create(context.Background(), in)
	require.Error(t, err)
	assert.Equal(t, domain.KindConflict, domain.KindOf(err))
	assert.Len(t, f.orders.orders, 1)

	// a different user may reuse the same key
	other := in
	other.UserID = "user-2"
	_, err = f.svc.Create(context.Background(), other)
	require.NoError(t, err)
}

func TestCreate_FailedAttemptReleasesClaim(t *testing.T) {
	f := newOrderFixture()
	f.orders.err = assert.AnError
	in := CreateOrderInput{
		UserID:         "user-1",
		Items:          cartItems(),
		PaymentMethod:  models.PaymentMethodTest,
		IdempotencyKey: "k1",
	}

	_, err := f.svc.Create(context.Background(), in)
	require.Error(t, err)
	assert.Equal(t, domain.KindInternal, domain.KindOf(err))

	// the retry must not be blocked by the failed attempt's claim
	f.orders.err = nil
	_, err = f.svc.Create(context.Background(), in)
	require.NoError(t, err)
}

func TestCreate_DeferredLeavesVoucherAndCreatesIntent(t *testing.T) {
	f := newOrderFixture(activeVoucher("SAVE20", nil))

	res, err := f.svc.Create(context.Background(), CreateOrderInput{
		UserID:        "user-1",
		Items:         cartItems(),
		VoucherCode:   "SAVE20",
		PaymentMethod: "card",
	})
	require.NoError(t, err)

	assert.Equal(t, models.OrderPending, res.Order.Status)
	require.NotNil(t, res.Intent)
	assert.Equal(t, int64(2080), res.Intent.Amount)
	assert.Equal(t, "inr", res.Intent.Currency)
	require.NotNil(t, res.Order.PaymentIntentID)
	assert.Equal(t, res.Intent.ID, *res.Order.PaymentIntentID)

	// deferred creation must not consume the voucher
	assert.False(t, f.vouchers.vouchers["SAVE20"].Used)
}

func TestCreate_DeferredIntentFailurePersistsNothing(t *testing.T) {
	f := newOrderFixture()
	f.intents.err = payment.ErrUnavailable

	_, err := f.svc.Create(context.Background(), CreateOrderInput{
		UserID:        "user-1",
		Items:         cartItems(),
		PaymentMethod: "card",
	})
	require.Error(t, err)
	assert.Equal(t, domain.KindTransient, domain.KindOf(err))
	assert.True(t, domain.Retryable(err))
	assert.Empty(t, f.orders.orders)
}

func TestConfirmPayment(t *testing.T) {
	f := newOrderFixture(activeVoucher("SAVE20", nil))

	res, err := f.svc.Create(context.Background(), CreateOrderInput{
		UserID:        "user-1",
		Items:         cartItems(),
		VoucherCode:   "SAVE20",
		PaymentMethod: "card",
	})
	require.NoError(t, err)
	orderID := res.Order.ID

	// collaborator has not captured yet
	_, err = f.svc.ConfirmPayment(context.Background(), "user-1", orderID)
	require.Error(t, err)
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))
	assert.False(t, f.vouchers.vouchers["SAVE20"].Used)

	f.intents.intents[res.Intent.ID].Status = payment.StatusSucceeded

	o, err := f.svc.ConfirmPayment(context.Background(), "user-1", orderID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderPaid, o.Status)
	assert.True(t, f.vouchers.vouchers["SAVE20"].Used)

	// an order settles once
	_, err = f.svc.ConfirmPayment(context.Background(), "user-1", orderID)
	require.Error(t, err)
	assert.Equal(t, domain.KindNotUsable, domain.KindOf(err))
}

func TestConfirmPayment_Ownership(t *testing.T) {
	f := newOrderFixture()

	res, err := f.svc.Create(context.Background(), CreateOrderInput{
		UserID:        "user-1",
		Items:         cartItems(),
		PaymentMethod: "card",
	})
	require.NoError(t, err)

	_, err = f.svc.ConfirmPayment(context.Background(), "user-2", res.Order.ID)
	require.Error(t, err)
	assert.Equal(t, domain.KindForbidden, domain.KindOf(err))

	_, err = f.svc.ConfirmPayment(context.Background(), "user-1", "missing")
	require.Error(t, err)
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))
}

func TestCancel(t *testing.T) {
	f := newOrderFixture()

	pending, err := f.svc.Create(context.Background(), CreateOrderInput{
		UserID:        "user-1",
		Items:         cartItems(),
		PaymentMethod: "card",
	})
	require.NoError(t, err)

	o, err := f.svc.Cancel(context.Background(), "user-1", pending.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderCancelled, o.Status)

	paid, err := f.svc.Create(context.Background(), CreateOrderInput{
		UserID:        "user-1",
		Items:         cartItems(),
		PaymentMethod: models.PaymentMethodTest,
	})
	require.NoError(t, err)

	_, err = f.svc.Cancel(context.Background(), "user-1", paid.Order.ID)
	require.Error(t, err)
	assert.Equal(t, domain.KindNotUsable, domain.KindOf(err))
}

func TestGetAndList(t *testing.T) {
	f := newOrderFixture()

	res, err := f.svc.Create(context.Background(), CreateOrderInput{
		UserID:        "user-1",
		Items:         cartItems(),
		PaymentMethod: models.PaymentMethodTest,
	})
	require.NoError(t, err)

	o, err := f.svc.Get(context.Background(), "user-1", res.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Order.ID, o.ID)

	_, err = f.svc.Get(context.Background(), "user-2", res.Order.ID)
	require.Error(t, err)
	assert.Equal(t, domain.KindForbidden, domain.KindOf(err))

	list, err := f.svc.List(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	list, err = f.svc.List(context.Background(), "user-2")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestMinorUnits(t *testing.T) {
	assert.Equal(t, int64(1234), MinorUnits(decimal.NewFromFloat(12.34)))
	assert.Equal(t, int64(2080), MinorUnits(decimal.NewFromFloat(20.80)))
	assert.Equal(t, int64(0), MinorUnits(decimal.Zero))
	assert.Equal(t, int64(1000), MinorUnits(decimal.NewFromInt(10)))
}
