package payment_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/shopcore/internal/payment"
)

func TestHTTPProviderCreatesCheckoutSession(t *testing.T) {
	var got *http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		got = r
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"cs_test_1","object":"checkout.session","url":"https://checkout.example/cs_test_1"}`))
	}))
	defer srv.Close()

	p := payment.NewHTTPProvider(srv.URL, "sk_test_123", 5*time.Second)
	sess, err := p.CreateCheckout(context.Background(), payment.CheckoutRequest{
		Amount:          decimal.RequireFromString("19.98"),
		Currency:        "usd",
		Description:     "Order 42",
		ClientReference: "order-42",
		SuccessURL:      "https://shop.example/ok",
		CancelURL:       "https://shop.example/cancel",
		Metadata:        map[string]string{"order_id": "order-42"},
		IdempotencyKey:  "order-42:1",
	})
	require.NoError(t, err)
	assert.Equal(t, payment.ProviderSession{ID: "cs_test_1", URL: "https://checkout.example/cs_test_1"}, sess)

	require.NotNil(t, got)
	assert.Equal(t, http.MethodPost, got.Method)
	assert.Equal(t, "/v1/checkout/sessions", got.URL.Path)
	assert.Equal(t, "Bearer sk_test_123", got.Header.Get("Authorization"))
	assert.Equal(t, "order-42:1", got.Header.Get("Idempotency-Key"))
	assert.Equal(t, "payment", got.PostForm.Get("mode"))
	assert.Equal(t, "order-42", got.PostForm.Get("client_reference_id"))
	assert.Equal(t, "1998", got.PostForm.Get("line_items[0][price_data][unit_amount]"))
	assert.Equal(t, "usd", got.PostForm.Get("line_items[0][price_data][currency]"))
	assert.Equal(t, "order-42", got.PostForm.Get("metadata[order_id]"))
}

func TestHTTPProviderSurfacesAPIErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"error":{"type":"card_error","message":"declined"}}`))
	}))
	defer srv.Close()

	p := payment.NewHTTPProvider(srv.URL, "sk_test_123", 5*time.Second)
	_, err := p.CreateCheckout(context.Background(), payment.CheckoutRequest{
		Amount: decimal.NewFromInt(1), Currency: "usd", Description: "x",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "declined")
}
