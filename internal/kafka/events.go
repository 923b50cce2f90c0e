package kafka

import (
	"context"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/ariefcatur/shopcore/internal/orders"
)

// EventPublisher sends order envelopes through an async Producer.
type EventPublisher struct {
	Producer *Producer
}

func (e EventPublisher) Publish(_ context.Context, topic string, key []byte, env orders.Envelope) error {
	if topic != e.Producer.Topic() {
		return fmt.Errorf("producer for %s cannot publish to %s", e.Producer.Topic(), topic)
	}
	b, err := Marshal(env)
	if err != nil {
		return err
	}
	e.Producer.Publish(key, b, kafka.Header{Key: "event_type", Value: []byte(env.EventType)})
	return nil
}
