package checkout

import (
	"context"
	"log/slog"
	"time"

	"github.com/ariefcatur/go-checkout-orders/internal/stock"
	"github.com/ariefcatur/go-checkout-orders/internal/store"
)

// Sweeper periodically drops expired completion leases and stock
// reservations left behind by crashed or abandoned attempts.
type Sweeper struct {
	tx       store.TxRunner
	stock    *stock.Allocator
	interval time.Duration
	log      *slog.Logger
	now      func() time.Time
}

func NewSweeper(tx store.TxRunner, alloc *stock.Allocator, interval time.Duration, log *slog.Logger) *Sweeper {
	if log == nil {
		log = slog.Default()
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{tx: tx, stock: alloc, interval: interval, log: log, now: time.Now}
}

// Run sweeps every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, _, err := s.SweepOnce(ctx); err != nil {
				s.log.ErrorContext(ctx, "sweep failed", "err", err)
			}
		}
	}
}

func (s *Sweeper) SweepOnce(ctx context.Context) (leases, reservations int, err error) {
	err = s.tx.WithTx(ctx, func(ctx context.Context, q store.Queries) error {
		var err error
		if leases, err = q.ClearExpiredLeases(ctx, s.now()); err != nil {
			return err
		}
		reservations, err = s.stock.ReleaseExpired(ctx, q)
		return err
	})
	if err != nil {
		return 0, 0, err
	}
	if leases > 0 || reservations > 0 {
		s.log.InfoContext(ctx, "swept expired completion state", "leases", leases, "reservations", reservations)
	}
	return leases, reservations, nil
}
