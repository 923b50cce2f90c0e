package kafka

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// Handler returns nil only when processing succeeded and the offset may be
// committed.
type Handler func(ctx context.Context, m kafka.Message) error

type reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	r       reader
	workers int
	log     *slog.Logger

	minBackoff time.Duration
	maxBackoff time.Duration
}

func NewConsumer(brokers []string, group, topic string, workers int, log *slog.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        group,
		Topic:          topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commit
	})
	return newConsumer(r, workers, log.With("topic", topic, "group", group))
}

func newConsumer(r reader, workers int, log *slog.Logger) *Consumer {
	if workers <= 0 {
		workers = 1
	}
	return &Consumer{
		r:          r,
		workers:    workers,
		log:        log,
		minBackoff: 200 * time.Millisecond,
		maxBackoff: 10 * time.Second,
	}
}

// Start fetches messages until ctx is done or the reader fails. Each
// partition is owned by one worker, so its messages are handled and
// committed in offset order. A failing message is retried until it succeeds;
// nothing after it on the partition is committed meanwhile.
func (c *Consumer) Start(ctx context.Context, h Handler) error {
	wctx, cancel := context.WithCancel(ctx)
	jobs := make([]chan kafka.Message, c.workers)
	var wg sync.WaitGroup
	for i := range jobs {
		jobs[i] = make(chan kafka.Message, 64)
		wg.Add(1)
		go func(in <-chan kafka.Message) {
			defer wg.Done()
			for m := range in {
				if wctx.Err() != nil {
					continue
				}
				c.process(wctx, h, m)
			}
		}(jobs[i])
	}
	defer func() {
		cancel()
		for _, ch := range jobs {
			close(ch)
		}
		wg.Wait()
		if err := c.r.Close(); err != nil {
			c.log.Warn("reader close", "err", err)
		}
	}()

	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		select {
		case jobs[m.Partition%c.workers] <- m:
		case <-ctx.Done():
			return nil
		}
	}
}

// process retries h with capped exponential backoff and commits on success.
// It gives up silently when ctx ends; the offset stays uncommitted.
func (c *Consumer) process(ctx context.Context, h Handler, m kafka.Message) {
	backoff := c.minBackoff
	for {
		err := h(ctx, m)
		if err == nil {
			break
		}
		c.log.Warn("handler failed, retrying", "partition", m.Partition, "offset", m.Offset, "backoff", backoff, "err", err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff *= 2; backoff > c.maxBackoff {
			backoff = c.maxBackoff
		}
	}
	if err := c.r.CommitMessages(ctx, m); err != nil {
		c.log.Warn("commit", "partition", m.Partition, "offset", m.Offset, "err", err)
	}
}
