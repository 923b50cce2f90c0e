// Package app wires stores, brokers and services from Config for both
// binaries.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/ariefcatur/shopcore/internal/auth"
	"github.com/ariefcatur/shopcore/internal/cart"
	"github.com/ariefcatur/shopcore/internal/catalog"
	"github.com/ariefcatur/shopcore/internal/checkout"
	"github.com/ariefcatur/shopcore/internal/config"
	"github.com/ariefcatur/shopcore/internal/httpx"
	kafkax "github.com/ariefcatur/shopcore/internal/kafka"
	"github.com/ariefcatur/shopcore/internal/memstore"
	"github.com/ariefcatur/shopcore/internal/orders"
	"github.com/ariefcatur/shopcore/internal/payment"
	"github.com/ariefcatur/shopcore/internal/postgres"
	"github.com/ariefcatur/shopcore/internal/redisx"
)

type stores interface {
	auth.Store
	catalog.Store
	cart.Store
	orders.Store
	payment.Store
}

type App struct {
	Config config.Config
	Log    *slog.Logger

	Tokens   *auth.Tokens
	Auth     *auth.Service
	Catalog  *catalog.Service
	Carts    *cart.Service
	Orders   *orders.Service
	Checkout *checkout.Service
	Payments *payment.Orchestrator
	Outcomes payment.OutcomeSink

	Redis *redis.Client // nil when REDIS_ADDR is unset

	closers   []func()
	producers []*kafkax.Producer
}

// New connects the configured backends. Close releases them.
func New(ctx context.Context, cfg config.Config, log *slog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	a := &App{Config: cfg, Log: log}

	var st stores
	fallback := memstore.New()
	switch cfg.StoreDriver {
	case "memory":
		st = fallback
		log.Warn("using in-memory store; data is lost on restart")
	case "postgres":
		db, err := postgres.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("db connect: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		pg := postgres.New(db)
		if err := pg.EnsureSchema(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		st = pg
	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}

	var idem payment.Idempotency = fallback
	if cfg.RedisAddr != "" {
		a.Redis = redisx.New(cfg.RedisAddr)
		a.closers = append(a.closers, func() { _ = a.Redis.Close() })
		if err := a.Redis.Ping(ctx).Err(); err != nil {
			a.Close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		idem = &redisx.Idempotency{RDB: a.Redis}
	}

	var events orders.Events = orders.NopEvents{}
	if len(cfg.KafkaBrokers) > 0 {
		events = kafkax.EventPublisher{Producer: a.producer(orders.TopicOrderEvents)}
	}

	a.Tokens = auth.NewTokens(cfg.JWTSecret, cfg.TokenTTL)
	a.Auth = &auth.Service{Store: st, Tokens: a.Tokens, Log: log}
	a.Catalog = &catalog.Service{Store: st}
	a.Carts = &cart.Service{Store: st, Catalog: a.Catalog}
	a.Orders = &orders.Service{Store: st, Events: events, Producer: cfg.ServiceName, Log: log}
	a.Checkout = &checkout.Service{Carts: a.Carts, Orders: a.Orders, Log: log}

	var provider payment.Provider
	switch cfg.Payment.Provider {
	case "fake":
		provider = &payment.FakeProvider{}
	case "http":
		provider = payment.NewHTTPProvider(cfg.Payment.APIBase, cfg.Payment.APIKey, cfg.Payment.Timeout)
	default:
		a.Close()
		return nil, fmt.Errorf("unknown PAYMENT_PROVIDER %q", cfg.Payment.Provider)
	}
	a.Payments = &payment.Orchestrator{
		Store:       st,
		Provider:    provider,
		Orders:      a.Orders,
		Checkout:    a.Checkout,
		Idempotency: idem,
		Packages:    payment.DefaultPackages,
		Currency:    cfg.Payment.Currency,
		Timeout:     cfg.Payment.Timeout,
		Log:         log,
	}

	// The reconciler shares state only through postgres.
	if len(cfg.KafkaBrokers) > 0 && cfg.StoreDriver == "postgres" {
		a.Outcomes = payment.KafkaSink{Writer: a.producer(orders.TopicPaymentOutcomes), Producer: cfg.ServiceName}
	} else {
		a.Outcomes = payment.InlineSink{Orchestrator: a.Payments}
	}
	return a, nil
}

func (a *App) producer(topic string) *kafkax.Producer {
	p := kafkax.NewProducer(a.Config.KafkaBrokers, topic, 1024, a.Log)
	p.Start()
	a.producers = append(a.producers, p)
	return p
}

// Dedup returns the redis-backed consumer dedup, or nil without redis.
func (a *App) Dedup(service string) payment.Dedup {
	if a.Redis == nil {
		return nil
	}
	return &redisx.Dedup{RDB: a.Redis, Service: service}
}

func (a *App) HTTPDeps() httpx.Deps {
	return httpx.Deps{
		Log:              a.Log,
		Tokens:           a.Tokens,
		Auth:             a.Auth,
		Catalog:          a.Catalog,
		Carts:            a.Carts,
		Orders:           a.Orders,
		Checkout:         a.Checkout,
		Payments:         a.Payments,
		Outcomes:         a.Outcomes,
		WebhookSecret:    a.Config.Payment.WebhookSecret,
		WebhookTolerance: payment.DefaultWebhookTolerance,
	}
}

// Close flushes producers first, then closes connections in reverse order.
func (a *App) Close() {
	for _, p := range a.producers {
		p.Close()
	}
	for _, p := range a.producers {
		p.WaitClosed()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}
