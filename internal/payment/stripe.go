package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sony/gobreaker/v2"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
)

// StripeClient implements IntentClient against Stripe. Calls run through a
// circuit breaker so a misbehaving gateway degrades to fast TRANSIENT
// failures instead of piling up blocked request workers.
type StripeClient struct {
	api            *client.API
	breaker        *gobreaker.CircuitBreaker[*stripe.PaymentIntent]
	publishableKey string
}

func NewStripeClient(secretKey, publishableKey string) *StripeClient {
	api := &client.API{}
	api.Init(secretKey, nil)

	return &StripeClient{
		api:            api,
		breaker:        gobreaker.NewCircuitBreaker[*stripe.PaymentIntent](gobreaker.Settings{Name: "stripe"}),
		publishableKey: publishableKey,
	}
}

func (c *StripeClient) PublishableKey() string { return c.publishableKey }

func (c *StripeClient) CreateIntent(ctx context.Context, amount int64, currency string, metadata map[string]string) (*Intent, error) {
	pi, err := c.breaker.Execute(func() (*stripe.PaymentIntent, error) {
		params := &stripe.PaymentIntentParams{
			Amount:   stripe.Int64(amount),
			Currency: stripe.String(strings.ToLower(currency)),
			AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
				Enabled: stripe.Bool(true),
			},
		}
		params.Context = ctx
		for k, v := range metadata {
			params.AddMetadata(k, v)
		}
		return c.api.PaymentIntents.New(params)
	})
	if err != nil {
		return nil, classifyErr("create payment intent", err)
	}
	return fromStripe(pi), nil
}

func (c *StripeClient) GetIntent(ctx context.Context, id string) (*Intent, error) {
	pi, err := c.breaker.Execute(func() (*stripe.PaymentIntent, error) {
		params := &stripe.PaymentIntentParams{}
		params.Context = ctx
		return c.api.PaymentIntents.Get(id, params)
	})
	if err != nil {
		return nil, classifyErr("get payment intent", err)
	}
	return fromStripe(pi), nil
}

func fromStripe(pi *stripe.PaymentIntent) *Intent {
	return &Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       string(pi.Status),
		Amount:       pi.Amount,
		Currency:     string(pi.Currency),
	}
}

func classifyErr(op string, err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) ||
		errors.Is(err, gobreaker.ErrTooManyRequests) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w (%v)", op, ErrUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
