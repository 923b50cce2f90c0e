// Command reconciler consumes payment.outcomes and applies them to payment
// sessions and orders. The api publishes there when KAFKA_BROKERS is set.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/ariefcatur/shopcore/internal/app"
	"github.com/ariefcatur/shopcore/internal/config"
	kafkax "github.com/ariefcatur/shopcore/internal/kafka"
	"github.com/ariefcatur/shopcore/internal/logx"
	"github.com/ariefcatur/shopcore/internal/orders"
	"github.com/ariefcatur/shopcore/internal/payment"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	log := logx.New(cfg.Production()).With("service", cfg.ServiceName+"-reconciler")

	if len(cfg.KafkaBrokers) == 0 {
		log.Error("KAFKA_BROKERS is required")
		os.Exit(1)
	}
	if cfg.StoreDriver != "postgres" {
		log.Error("the reconciler needs the shared postgres store", "store", cfg.StoreDriver)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Error("startup", "err", err)
		os.Exit(1)
	}
	defer a.Close()

	h := &payment.Consumer{
		Orchestrator: a.Payments,
		Dedup:        a.Dedup("reconciler"),
		Log:          log,
	}
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.ReconcilerGroup, orders.TopicPaymentOutcomes, cfg.ReconcilerWorkers, log)

	log.Info("reconciler started", "group", cfg.ReconcilerGroup, "topic", orders.TopicPaymentOutcomes, "workers", cfg.ReconcilerWorkers)
	if err := cons.Start(ctx, h.HandleOutcome); err != nil {
		log.Error("consumer exit", "err", err)
	}
	log.Info("reconciler stopped")
}
