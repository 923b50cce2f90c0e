package payment

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/checkout/session"
)

// HTTPProvider creates Stripe checkout sessions. BaseURL may point at any
// Stripe-compatible API.
type HTTPProvider struct {
	sessions session.Client
}

func NewHTTPProvider(baseURL, apiKey string, timeout time.Duration) *HTTPProvider {
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL:               stripe.String(baseURL),
		HTTPClient:        &http.Client{Timeout: timeout},
		MaxNetworkRetries: stripe.Int64(0),
	})
	return &HTTPProvider{sessions: session.Client{B: backend, Key: apiKey}}
}

func (p *HTTPProvider) CreateCheckout(ctx context.Context, req CheckoutRequest) (ProviderSession, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		ClientReferenceID: stripe.String(req.ClientReference),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Quantity: stripe.Int64(1),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(req.Currency),
				UnitAmount: stripe.Int64(minorUnits(req)),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(req.Description),
				},
			},
		}},
	}
	params.Context = ctx
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	cs, err := p.sessions.New(params)
	if err != nil {
		return ProviderSession{}, fmt.Errorf("create checkout session: %w", err)
	}
	if cs.ID == "" || cs.URL == "" {
		return ProviderSession{}, fmt.Errorf("provider returned incomplete session")
	}
	return ProviderSession{ID: cs.ID, URL: cs.URL}, nil
}

// minorUnits converts to cents; all supported currencies have two decimals.
func minorUnits(req CheckoutRequest) int64 {
	return req.Amount.Shift(2).Round(0).IntPart()
}
