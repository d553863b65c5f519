package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/go-checkout-orders/internal/app"
	"github.com/ariefcatur/go-checkout-orders/internal/config"
	"github.com/ariefcatur/go-checkout-orders/internal/events"
	"github.com/ariefcatur/go-checkout-orders/internal/httpx"
	kafkax "github.com/ariefcatur/go-checkout-orders/internal/kafka"
	"github.com/ariefcatur/go-checkout-orders/internal/logging"
	"github.com/ariefcatur/go-checkout-orders/internal/metrics"
	"github.com/ariefcatur/go-checkout-orders/internal/redisx"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	log := logging.Init(cfg.ServiceName, cfg.LogLevel)
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

	// Kafka producers, one per notification topic
	pCreated := kafkax.NewProducer(cfg.KafkaBrokers, events.TopicOrderCreated, 1024, log)
	pCreated.Start(ctx)
	pConfirm := kafkax.NewProducer(cfg.KafkaBrokers, events.TopicOrderConfirmation, 1024, log)
	pConfirm.Start(ctx)

	// Completion
	reg := prometheus.NewRegistry()
	m := metrics.NewCheckout(reg, "api")
	comps := app.NewComponents(tx, cfg, log)
	notifier := events.NewDispatcher(cfg.ServiceName, pCreated, pConfirm, log)
	completer := comps.Completer(tx, cfg, notifier, m, log)

	router := httpx.NewRouter(log, m, reg)
	(&httpx.CheckoutsHandler{
		Tx:        tx,
		Completer: completer,
		Prices:    comps.Prices,
		Payments:  comps.Refresher,
		Redis:     rdb,
		Log:       log,
	}).Register(router)
	(&httpx.OrdersHandler{Tx: tx, Redis: rdb}).Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		log.Info("http listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("listen", "err", err)
			cancel()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	log.Info("shutting down")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	pCreated.Close() // flush and close writer
	pConfirm.Close()
	cancel()
	pCreated.WaitClosed()
	pConfirm.WaitClosed()
}
