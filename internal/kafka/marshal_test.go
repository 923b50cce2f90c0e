package kafka

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/shopcore/internal/logx"
	"github.com/ariefcatur/shopcore/internal/orders"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	env, err := orders.NewEnvelope(orders.EventOrderStatusChanged, "api", "o-1", orders.OrderStatusChangedPayload{
		OrderID: "o-1", From: orders.StatusPending, To: orders.StatusPaid, PaymentSessionID: "cs_1",
	})
	require.NoError(t, err)

	b, err := Marshal(env)
	require.NoError(t, err)
	got, err := UnmarshalEnvelope(b)
	require.NoError(t, err)
	assert.Equal(t, env.EventID, got.EventID)
	assert.Equal(t, orders.EventOrderStatusChanged, got.EventType)
	assert.Equal(t, "o-1", got.CorrelationID)

	p, err := UnwrapPayload[orders.OrderStatusChangedPayload](got.Payload)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusPaid, p.To)
	assert.Equal(t, "cs_1", p.PaymentSessionID)
}

func TestUnmarshalEnvelopeRejectsGarbage(t *testing.T) {
	_, err := UnmarshalEnvelope([]byte("not json"))
	assert.Error(t, err)

	_, err = UnwrapPayload[orders.OrderCreatedPayload]([]byte(`"a string"`))
	assert.Error(t, err)
}

func TestEventPublisherRejectsForeignTopic(t *testing.T) {
	p := NewProducer([]string{"localhost:9092"}, orders.TopicOrderEvents, 1, logx.Discard())
	err := EventPublisher{Producer: p}.Publish(context.Background(), orders.TopicPaymentOutcomes, nil, orders.Envelope{})
	assert.Error(t, err)
}
