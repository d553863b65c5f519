package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/ariefcatur/go-checkout-orders/internal/app"
	"github.com/ariefcatur/go-checkout-orders/internal/checkout"
	"github.com/ariefcatur/go-checkout-orders/internal/config"
	"github.com/ariefcatur/go-checkout-orders/internal/events"
	kafkax "github.com/ariefcatur/go-checkout-orders/internal/kafka"
	"github.com/ariefcatur/go-checkout-orders/internal/logging"
	"github.com/ariefcatur/go-checkout-orders/internal/payments"
	"github.com/ariefcatur/go-checkout-orders/internal/redisx"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()
	cfg, err := config.Load()
	service := cfg.ServiceName + "-worker"
	log := logging.Init(service, cfg.LogLevel)
	if err != nil {
		log.Error("invalid config", "err", err)
		os.Exit(1)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Store
	tx, closeStore, err := app.OpenStore(ctx, cfg, log)
	if err != nil {
		log.Error("open store", "err", err)
		os.Exit(1)
	}
	defer closeStore()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	comps := app.NewComponents(tx, cfg, log)
	ingestor := &payments.Ingestor{
		Tx:          tx,
		Redis:       rdb,
		Refresher:   comps.Refresher,
		ServiceName: service,
		Log:         log,
	}
	sweeper := checkout.NewSweeper(tx, comps.Stock, cfg.SweepInterval, log)

	cons := kafkax.NewConsumer(kafkax.ConsumerConfig{
		Brokers: cfg.KafkaBrokers,
		Group:   cfg.WorkerGroup,
		Topic:   events.TopicTransactionEvents,
		Workers: cfg.WorkerConcurrency,
	}, log)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		log.Info("transaction consumer started",
			"group", cfg.WorkerGroup, "topic", events.TopicTransactionEvents, "workers", cfg.WorkerConcurrency)
		if err := cons.Start(ctx, ingestor.HandleTransactionEvent); err != nil {
			log.Error("consumer exit", "err", err)
			cancel()
		}
	}()
	go func() {
		defer wg.Done()
		sweeper.Run(ctx)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	log.Info("shutting down worker")
	cancel()
	wg.Wait()
}
