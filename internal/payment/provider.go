package payment

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type CheckoutRequest struct {
	Amount          decimal.Decimal
	Currency        string
	Description     string
	ClientReference string
	SuccessURL      string
	CancelURL       string
	Metadata        map[string]string
	IdempotencyKey  string
}

type ProviderSession struct {
	ID  string
	URL string
}

type Provider interface {
	CreateCheckout(ctx context.Context, req CheckoutRequest) (ProviderSession, error)
}

// FakeProvider stands in for the real provider in local runs and tests.
type FakeProvider struct {
	BaseURL string

	mu    sync.Mutex
	err   error
	last  CheckoutRequest
	calls atomic.Int64
}

func (f *FakeProvider) CreateCheckout(ctx context.Context, req CheckoutRequest) (ProviderSession, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.last = req
	err := f.err
	f.mu.Unlock()
	if err != nil {
		return ProviderSession{}, err
	}
	if err := ctx.Err(); err != nil {
		return ProviderSession{}, err
	}
	base := f.BaseURL
	if base == "" {
		base = "https://pay.local/checkout/"
	}
	id := "cs_fake_" + uuid.NewString()
	return ProviderSession{ID: id, URL: base + id}, nil
}

// FailWith makes subsequent calls fail; nil restores success.
func (f *FakeProvider) FailWith(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func (f *FakeProvider) Calls() int64 { return f.calls.Load() }

func (f *FakeProvider) LastRequest() CheckoutRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}
