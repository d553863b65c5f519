package payments

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ariefcatur/go-checkout-orders/internal/domain"
	"github.com/sony/gobreaker/v2"
)

type BreakerConfig struct {
	Name string
	// CallTimeout bounds every gateway call.
	CallTimeout time.Duration
	// MaxFailures consecutive failures open the breaker.
	MaxFailures uint32
	// OpenFor is how long the breaker stays open before probing again.
	OpenFor time.Duration
}

// BreakerGateway guards a Gateway with a circuit breaker. Declined payments
// do not count as failures; transport errors and timeouts do.
type BreakerGateway struct {
	next    Gateway
	cfg     BreakerConfig
	process *gobreaker.CircuitBreaker[TransactionResult]
	refund  *gobreaker.CircuitBreaker[struct{}]
}

func NewBreakerGateway(next Gateway, cfg BreakerConfig, log *slog.Logger) *BreakerGateway {
	if log == nil {
		log = slog.Default()
	}
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 5
	}
	if cfg.OpenFor <= 0 {
		cfg.OpenFor = 30 * time.Second
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 10 * time.Second
	}
	settings := func(op string) gobreaker.Settings {
		return gobreaker.Settings{
			Name:        cfg.Name + "." + op,
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     cfg.OpenFor,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= cfg.MaxFailures
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warn("payment gateway breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
			},
		}
	}
	return &BreakerGateway{
		next:    next,
		cfg:     cfg,
		process: gobreaker.NewCircuitBreaker[TransactionResult](settings("process")),
		refund:  gobreaker.NewCircuitBreaker[struct{}](settings("refund")),
	}
}

func (b *BreakerGateway) ProcessPayment(ctx context.Context, req PaymentRequest) (TransactionResult, error) {
	res, err := b.process.Execute(func() (TransactionResult, error) {
		ctx, cancel := context.WithTimeout(ctx, b.cfg.CallTimeout)
		defer cancel()
		return b.next.ProcessPayment(ctx, req)
	})
	if err != nil {
		return TransactionResult{}, b.wrap(req.Gateway, err)
	}
	return res, nil
}

func (b *BreakerGateway) RefundOrVoid(ctx context.Context, p domain.Payment) error {
	_, err := b.refund.Execute(func() (struct{}, error) {
		ctx, cancel := context.WithTimeout(ctx, b.cfg.CallTimeout)
		defer cancel()
		return struct{}{}, b.next.RefundOrVoid(ctx, p)
	})
	if err != nil {
		return b.wrap(p.Gateway, err)
	}
	return nil
}

func (b *BreakerGateway) ReleaseTransaction(ctx context.Context, t domain.TransactionItem) error {
	_, err := b.refund.Execute(func() (struct{}, error) {
		ctx, cancel := context.WithTimeout(ctx, b.cfg.CallTimeout)
		defer cancel()
		return struct{}{}, b.next.ReleaseTransaction(ctx, t)
	})
	if err != nil {
		return b.wrap(t.AppID, err)
	}
	return nil
}

func (b *BreakerGateway) wrap(gateway string, err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return &domain.PaymentError{Gateway: gateway, Reason: "gateway unavailable", Err: err}
	}
	return err
}
