// Package payments adapts card payment providers to the payment service.
package payments

import (
	"context"
	"math"

	stripe "github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/paymentintent"
)

// StripeClient creates PaymentIntents for card rides.
type StripeClient struct {
	currency string
}

// NewStripeClient initializes the stripe client with the given API key.
func NewStripeClient(apiKey, currency string) *StripeClient {
	stripe.Key = apiKey
	return &StripeClient{currency: currency}
}

// CreateIntent creates a PaymentIntent for amount major units and returns its ID.
// The ride id is attached as metadata and used as the idempotency key.
func (s *StripeClient) CreateIntent(ctx context.Context, rideID string, amount float64) (string, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(int64(math.Round(amount * 100))),
		Currency: stripe.String(s.currency),
	}
	params.Context = ctx
	params.AddMetadata("ride_id", rideID)
	params.SetIdempotencyKey("ride-" + rideID)

	pi, err := paymentintent.New(params)
	if err != nil {
		return "", err
	}
	return pi.ID, nil
}
