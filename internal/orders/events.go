package orders

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	EventOrderCreated       = "OrderCreated"
	EventOrderStatusChanged = "OrderStatusChanged"
)

// Envelope wraps every event this service publishes or consumes.
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// NewEnvelope stamps a fresh event id and time; correlation is the aggregate id.
func NewEnvelope(eventType, producer, correlationID string, payload any) (Envelope, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		CorrelationID: correlationID,
		Payload:       b,
	}, nil
}

type OrderCreatedPayload struct {
	OrderID    string          `json:"order_id"`
	CustomerID string          `json:"customer_id"`
	SellerID   string          `json:"seller_id"`
	Items      []Item          `json:"items"`
	Total      decimal.Decimal `json:"total"`
}

type OrderStatusChangedPayload struct {
	OrderID          string `json:"order_id"`
	From             Status `json:"from"`
	To               Status `json:"to"`
	PaymentSessionID string `json:"payment_session_id,omitempty"`
}

// Events receives order events after they are committed. Publishing is
// best-effort; the database stays the source of truth.
type Events interface {
	Publish(ctx context.Context, topic string, key []byte, env Envelope) error
}

type NopEvents struct{}

func (NopEvents) Publish(context.Context, string, []byte, Envelope) error { return nil }
