package payment

import (
	"context"
	"fmt"
	"log/slog"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/ariefcatur/shopcore/internal/apperr"
	"github.com/ariefcatur/shopcore/internal/kafka"
	"github.com/ariefcatur/shopcore/internal/orders"
)

const EventPaymentOutcome = "PaymentOutcomeReported"

// OutcomeSink receives verified webhook outcomes.
type OutcomeSink interface {
	Submit(ctx context.Context, out Outcome) error
}

// InlineSink reconciles in the request that delivered the webhook.
type InlineSink struct {
	Orchestrator *Orchestrator
}

func (s InlineSink) Submit(ctx context.Context, out Outcome) error {
	_, err := s.Orchestrator.Reconcile(ctx, out.SessionID, out.Status)
	return err
}

type SyncWriter interface {
	PublishSync(ctx context.Context, key, value []byte, headers ...kafkago.Header) error
}

// KafkaSink hands outcomes to the reconciler through the payment.outcomes
// topic, keyed by session id so outcomes for one session stay ordered.
type KafkaSink struct {
	Writer   SyncWriter
	Producer string
}

func (s KafkaSink) Submit(ctx context.Context, out Outcome) error {
	env, err := orders.NewEnvelope(EventPaymentOutcome, s.Producer, out.SessionID, out)
	if err != nil {
		return err
	}
	if out.EventID != "" {
		env.EventID = out.EventID
	}
	b, err := kafka.Marshal(env)
	if err != nil {
		return err
	}
	return s.Writer.PublishSync(ctx, orders.PartitionKey(out.SessionID), b,
		kafkago.Header{Key: "event_type", Value: []byte(EventPaymentOutcome)})
}

type Dedup interface {
	Seen(ctx context.Context, id string) (bool, error)
	Mark(ctx context.Context, id string) error
}

// Consumer applies outcomes read from payment.outcomes.
type Consumer struct {
	Orchestrator *Orchestrator
	Dedup        Dedup // optional
	Log          *slog.Logger
}

// HandleOutcome returns nil only when the offset may be committed.
func (c *Consumer) HandleOutcome(ctx context.Context, m kafkago.Message) error {
	env, err := kafka.UnmarshalEnvelope(m.Value)
	if err != nil {
		c.Log.Error("drop malformed outcome", "offset", m.Offset, "err", err)
		return nil
	}
	if env.EventType != EventPaymentOutcome {
		return nil
	}
	out, err := kafka.UnwrapPayload[Outcome](env.Payload)
	if err != nil {
		c.Log.Error("drop malformed outcome payload", "event_id", env.EventID, "err", err)
		return nil
	}

	if c.Dedup != nil {
		seen, err := c.Dedup.Seen(ctx, env.EventID)
		if err != nil {
			return fmt.Errorf("dedup lookup: %w", err)
		}
		if seen {
			c.Log.Debug("skip duplicate outcome", "event_id", env.EventID)
			return nil
		}
	}

	st, err := c.Orchestrator.Reconcile(ctx, out.SessionID, out.Status)
	switch apperr.KindOf(err) {
	case apperr.KindNotFound, apperr.KindValidation:
		// Retrying cannot help an unknown session or a bad status.
		c.Log.Error("drop outcome", "event_id", env.EventID, "session_id", out.SessionID, "err", err)
		return nil
	}
	if err != nil {
		return fmt.Errorf("reconcile %s: %w", out.SessionID, err)
	}
	c.Log.Info("outcome applied", "event_id", env.EventID, "session_id", out.SessionID, "status", st)

	if c.Dedup != nil {
		if err := c.Dedup.Mark(ctx, env.EventID); err != nil {
			c.Log.Warn("dedup mark", "event_id", env.EventID, "err", err)
		}
	}
	return nil
}
