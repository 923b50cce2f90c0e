package payment_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/shopcore/internal/apperr"
	"github.com/ariefcatur/shopcore/internal/payment"
)

const secret = "whsec_test"

func event(typ, paymentStatus string) []byte {
	return []byte(`{"id":"evt_1","type":"` + typ + `","data":{"object":{"id":"cs_1","payment_status":"` + paymentStatus + `"}}}`)
}

func TestParseWebhookMapsEventTypes(t *testing.T) {
	now := time.Now()
	cases := []struct {
		typ, paymentStatus string
		want               payment.Status
	}{
		{"checkout.session.completed", "paid", payment.StatusSucceeded},
		{"checkout.session.completed", "unpaid", payment.StatusPending},
		{"checkout.session.async_payment_succeeded", "paid", payment.StatusSucceeded},
		{"checkout.session.async_payment_failed", "unpaid", payment.StatusFailed},
		{"checkout.session.expired", "unpaid", payment.StatusExpired},
	}
	for _, c := range cases {
		body := event(c.typ, c.paymentStatus)
		out, ok, err := payment.ParseWebhook(body, payment.SignatureHeader(secret, now, body), secret, payment.DefaultWebhookTolerance)
		require.NoError(t, err, c.typ)
		require.True(t, ok, c.typ)
		assert.Equal(t, payment.Outcome{EventID: "evt_1", SessionID: "cs_1", Status: c.want}, out, c.typ)
	}
}

func TestParseWebhookIgnoresOtherEvents(t *testing.T) {
	now := time.Now()
	body := event("customer.created", "")
	_, ok, err := payment.ParseWebhook(body, payment.SignatureHeader(secret, now, body), secret, payment.DefaultWebhookTolerance)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestParseWebhookRejectsBadSignatures(t *testing.T) {
	now := time.Now()
	body := event("checkout.session.completed", "paid")

	headers := map[string]string{
		"empty":        "",
		"wrong secret": payment.SignatureHeader("other", now, body),
		"stale":        payment.SignatureHeader(secret, now.Add(-10*time.Minute), body),
		"no v1":        "t=123",
		"garbage":      "t=abc,v1=zz",
	}
	for name, h := range headers {
		_, _, err := payment.ParseWebhook(body, h, secret, payment.DefaultWebhookTolerance)
		assert.ErrorIs(t, err, payment.ErrBadSignature, name)
		assert.True(t, errors.Is(err, apperr.Unauthenticated), name)
	}

	tampered := event("checkout.session.completed", "unpaid")
	_, _, err := payment.ParseWebhook(tampered, payment.SignatureHeader(secret, now, body), secret, payment.DefaultWebhookTolerance)
	assert.ErrorIs(t, err, payment.ErrBadSignature)
}

func TestParseWebhookMalformedPayload(t *testing.T) {
	now := time.Now()
	body := []byte(`{"type":"checkout.session.completed","data":{"object":{}}}`)
	_, _, err := payment.ParseWebhook(body, payment.SignatureHeader(secret, now, body), secret, payment.DefaultWebhookTolerance)
	assert.True(t, errors.Is(err, apperr.Validation))
}
