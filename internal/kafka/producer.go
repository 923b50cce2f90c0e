package kafka

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// Producer writes to one topic. Publish is fire-and-forget through a
// buffered inbox; PublishSync waits for the broker ack.
type Producer struct {
	topic   string
	w       *kafka.Writer
	sw      *kafka.Writer
	inbox   chan kafka.Message
	closeCh chan struct{}
	log     *slog.Logger

	mu     sync.RWMutex
	closed bool
}

func NewProducer(brokers []string, topic string, buf int, log *slog.Logger) *Producer {
	return &Producer{
		topic: topic,
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Async:        true,
			Completion: func(msgs []kafka.Message, err error) {
				if err != nil {
					log.Error("kafka async write", "topic", topic, "messages", len(msgs), "err", err)
				}
			},
		},
		sw: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
		},
		inbox:   make(chan kafka.Message, buf),
		closeCh: make(chan struct{}),
		log:     log,
	}
}

func (p *Producer) Topic() string { return p.topic }

// Start drains the inbox until Close, then flushes and closes the writers.
func (p *Producer) Start() {
	go func() {
		defer close(p.closeCh)
		for m := range p.inbox {
			if err := p.w.WriteMessages(context.Background(), m); err != nil {
				p.log.Error("kafka write", "topic", p.topic, "err", err)
			}
		}
		if err := p.w.Close(); err != nil {
			p.log.Warn("kafka writer close", "topic", p.topic, "err", err)
		}
		if err := p.sw.Close(); err != nil {
			p.log.Warn("kafka writer close", "topic", p.topic, "err", err)
		}
	}()
}

// Publish enqueues a message; after Close it drops and logs.
func (p *Producer) Publish(key, value []byte, headers ...kafka.Header) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.log.Warn("publish after close", "topic", p.topic)
		return
	}
	p.inbox <- kafka.Message{
		Key:     key,
		Value:   value,
		Time:    time.Now(),
		Headers: headers,
	}
}

func (p *Producer) PublishSync(ctx context.Context, key, value []byte, headers ...kafka.Header) error {
	return p.sw.WriteMessages(ctx, kafka.Message{
		Key:     key,
		Value:   value,
		Time:    time.Now(),
		Headers: headers,
	})
}

// Close stops accepting messages; the Start goroutine flushes what is left.
func (p *Producer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	close(p.inbox)
}

// WaitClosed blocks until the flush after Close completes.
func (p *Producer) WaitClosed() { <-p.closeCh }
