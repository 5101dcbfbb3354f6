// Package payment is the boundary to the external payment collaborator.
// Order logic only sees IntentClient; gateway integration details stay here.
package payment

import (
	"context"
	"errors"
)

const StatusSucceeded = "succeeded"

// ErrUnavailable marks collaborator failures that are safe to retry
// (open circuit breaker, transport trouble). Callers surface it as a
// TRANSIENT failure.
var ErrUnavailable = errors.New("payment collaborator unavailable")

// Intent is a payment-intent handle. Amount is in minor currency units.
type Intent struct {
	ID           string
	ClientSecret string
	Status       string
	Amount       int64
	Currency     string
}

type IntentClient interface {
	CreateIntent(ctx context.Context, amount int64, currency string, metadata map[string]string) (*Intent, error)
	GetIntent(ctx context.Context, id string) (*Intent, error)
}
