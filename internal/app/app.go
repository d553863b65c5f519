// Package app wires the checkout components from config for the binaries.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ariefcatur/go-checkout-orders/internal/checkout"
	"github.com/ariefcatur/go-checkout-orders/internal/config"
	"github.com/ariefcatur/go-checkout-orders/internal/payments"
	"github.com/ariefcatur/go-checkout-orders/internal/postgres"
	"github.com/ariefcatur/go-checkout-orders/internal/pricing"
	"github.com/ariefcatur/go-checkout-orders/internal/stock"
	"github.com/ariefcatur/go-checkout-orders/internal/store"
	"github.com/ariefcatur/go-checkout-orders/internal/store/memstore"
	"github.com/ariefcatur/go-checkout-orders/internal/vouchers"
)

// OpenStore returns the configured store and a close func.
func OpenStore(ctx context.Context, cfg config.Config, log *slog.Logger) (store.TxRunner, func(), error) {
	switch cfg.StoreDriver {
	case "memory":
		log.Warn("using in-memory store; data is lost on restart")
		return memstore.New(), func() {}, nil
	case "postgres":
		if cfg.RunMigrations {
			if err := postgres.Migrate(cfg.PostgresDSN); err != nil {
				return nil, nil, fmt.Errorf("migrate: %w", err)
			}
			log.Info("migrations applied")
		}
		db, err := postgres.Connect(ctx, cfg.PostgresDSN, 0)
		if err != nil {
			return nil, nil, fmt.Errorf("db connect: %w", err)
		}
		return postgres.New(db), db.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

// Components are the shared building blocks of the completion flow.
type Components struct {
	Prices    *pricing.Cache
	Refresher *payments.Refresher
	Vouchers  *vouchers.Ledger
	Stock     *stock.Allocator
	Gateway   payments.Gateway
}

func NewComponents(tx store.TxRunner, cfg config.Config, log *slog.Logger) *Components {
	refresher := payments.NewRefresher(log)
	taxes := &pricing.TaxTable{DefaultRate: cfg.DefaultTaxRate}
	return &Components{
		Prices: pricing.NewCache(taxes, pricing.Config{
			TTL:                  cfg.PriceTTL,
			PricesEnteredWithTax: cfg.PricesEnteredWithTax,
			ChargeTaxes:          cfg.ChargeTaxes,
		}, refresher, log),
		Refresher: refresher,
		Vouchers:  vouchers.NewLedger(tx, log),
		Stock:     stock.NewAllocator(cfg.ReservationTTL, log),
		Gateway: payments.NewBreakerGateway(&payments.DummyGateway{}, payments.BreakerConfig{
			Name:        "payment-gateway",
			CallTimeout: cfg.PaymentTimeout,
			MaxFailures: cfg.BreakerMaxFailures,
			OpenFor:     cfg.BreakerOpenFor,
		}, log),
	}
}

func (c *Components) Completer(tx store.TxRunner, cfg config.Config, n checkout.Notifier, m checkout.Metrics, log *slog.Logger) *checkout.Completer {
	return checkout.New(checkout.Deps{
		Tx:       tx,
		Prices:   c.Prices,
		Payments: c.Refresher,
		Vouchers: c.Vouchers,
		Stock:    c.Stock,
		Gateway:  c.Gateway,
		Notifier: n,
		Metrics:  m,
		Log:      log,
	}, checkout.Config{
		LeaseTTL:          cfg.LeaseTTL,
		LeaseWait:         cfg.LeaseWait,
		LeasePoll:         cfg.LeasePoll,
		AllowUnpaidOrders: cfg.AllowUnpaidOrders,
	})
}
