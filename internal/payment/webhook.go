package payment

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/webhook"

	"github.com/ariefcatur/shopcore/internal/apperr"
)

const DefaultWebhookTolerance = 5 * time.Minute

var ErrBadSignature = apperr.New(apperr.KindUnauthenticated, "invalid webhook signature")

// ParseWebhook verifies the Stripe-Signature header and maps the event to an
// Outcome. ok is false for event types that carry no payment outcome; those
// should be acknowledged and dropped.
func ParseWebhook(payload []byte, header, secret string, tolerance time.Duration) (out Outcome, ok bool, err error) {
	if err := webhook.ValidatePayloadWithTolerance(payload, header, secret, tolerance); err != nil {
		return Outcome{}, false, ErrBadSignature
	}

	var ev stripe.Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return Outcome{}, false, apperr.Wrap(apperr.KindValidation, "malformed webhook payload", err)
	}
	if ev.Data == nil {
		return Outcome{}, false, apperr.New(apperr.KindValidation, "webhook payload has no data")
	}

	var st Status
	switch ev.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		st = StatusSucceeded
	case stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded:
		st = StatusSucceeded
	case stripe.EventTypeCheckoutSessionAsyncPaymentFailed:
		st = StatusFailed
	case stripe.EventTypeCheckoutSessionExpired:
		st = StatusExpired
	default:
		return Outcome{}, false, nil
	}

	var cs stripe.CheckoutSession
	if err := json.Unmarshal(ev.Data.Raw, &cs); err != nil {
		return Outcome{}, false, apperr.Wrap(apperr.KindValidation, "malformed checkout session", err)
	}
	if cs.ID == "" {
		return Outcome{}, false, apperr.New(apperr.KindValidation, "webhook payload has no session id")
	}
	if ev.Type == stripe.EventTypeCheckoutSessionCompleted && cs.PaymentStatus == stripe.CheckoutSessionPaymentStatusUnpaid {
		st = StatusPending
	}
	return Outcome{EventID: ev.ID, SessionID: cs.ID, Status: st}, true, nil
}

// SignatureHeader builds the header the provider sends for payload.
func SignatureHeader(secret string, at time.Time, payload []byte) string {
	return fmt.Sprintf("t=%d,v1=%s", at.Unix(), hex.EncodeToString(webhook.ComputeSignature(at, payload, secret)))
}
