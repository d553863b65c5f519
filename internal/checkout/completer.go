// Package checkout turns a checkout into an order.
//
// A completion attempt validates the checkout, takes a lease on it, makes
// sure prices are fresh and payment covers the total, counts the voucher,
// and then materializes the order in one transaction. Failures after the
// lease was taken undo, in reverse order, whatever the attempt changed.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ariefcatur/go-checkout-orders/internal/domain"
	"github.com/ariefcatur/go-checkout-orders/internal/money"
	"github.com/ariefcatur/go-checkout-orders/internal/payments"
	"github.com/ariefcatur/go-checkout-orders/internal/pricing"
	"github.com/ariefcatur/go-checkout-orders/internal/stock"
	"github.com/ariefcatur/go-checkout-orders/internal/store"
	"github.com/ariefcatur/go-checkout-orders/internal/vouchers"
	"github.com/google/uuid"
)

// Notifier receives orders after the transaction creating them committed.
type Notifier interface {
	OrderCreated(ctx context.Context, o *domain.Order)
	OrderConfirmation(ctx context.Context, o *domain.Order)
}

type Metrics interface {
	ObserveCompletion(outcome string, d time.Duration)
	ObserveCompensation(reason string)
}

type Config struct {
	// LeaseTTL bounds how long one attempt may hold the checkout.
	LeaseTTL time.Duration
	// LeaseWait is how long an attempt waits for another attempt's lease
	// before failing with domain.ErrCheckoutLocked. Zero waits up to LeaseTTL,
	// negative fails at once.
	LeaseWait time.Duration
	LeasePoll time.Duration
	// AllowUnpaidOrders applies to every channel on top of the channel flag.
	AllowUnpaidOrders bool
}

type Deps struct {
	Tx       store.TxRunner
	Prices   *pricing.Cache
	Payments *payments.Refresher
	Vouchers *vouchers.Ledger
	Stock    *stock.Allocator
	Gateway  payments.Gateway
	Notifier Notifier
	Metrics  Metrics
	Log      *slog.Logger
}

type Completer struct {
	Deps
	cfg Config
	now func() time.Time
}

func New(d Deps, cfg Config) *Completer {
	if d.Log == nil {
		d.Log = slog.Default()
	}
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = 2 * time.Minute
	}
	if cfg.LeaseWait == 0 {
		cfg.LeaseWait = cfg.LeaseTTL
	}
	if cfg.LeaseWait < 0 {
		cfg.LeaseWait = 0
	}
	if cfg.LeasePoll <= 0 {
		cfg.LeasePoll = 50 * time.Millisecond
	}
	return &Completer{Deps: d, cfg: cfg, now: time.Now}
}

type Result struct {
	Order *domain.Order
	// Existing is set when the order was created by an earlier attempt.
	Existing bool
}

// attempt is the state of one Complete call.
type attempt struct {
	token    uuid.UUID
	owner    string
	phase    phaseTracker
	checkout *domain.Checkout
	lines    []domain.CheckoutLine
	channel  *domain.Channel
	// charged is the legacy payment captured by this attempt, refunded on failure.
	charged *domain.Payment
}

var errLeaseHeld = errors.New("completion lease held by another attempt")

// Complete converts the checkout into an order. Calling it again for a
// completed checkout returns the order created the first time.
func (c *Completer) Complete(ctx context.Context, token uuid.UUID) (*Result, error) {
	start := c.now()
	res, err := c.complete(ctx, token)
	outcome := Outcome(res, err)
	if c.Metrics != nil {
		c.Metrics.ObserveCompletion(outcome, c.now().Sub(start))
	}
	if err != nil {
		c.Log.InfoContext(ctx, "checkout completion failed", "token", token, "outcome", outcome, "err", err)
		return nil, err
	}
	c.Log.InfoContext(ctx, "checkout completed", "token", token, "order_id", res.Order.ID, "number", res.Order.Number, "existing", res.Existing)
	return res, nil
}

func (c *Completer) complete(ctx context.Context, token uuid.UUID) (*Result, error) {
	a := &attempt{token: token, owner: uuid.NewString(), phase: phaseTracker{cur: PhaseValidating}}

	existing, err := c.validate(ctx, token)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return &Result{Order: existing, Existing: true}, nil
	}

	existing, err = c.acquireLease(ctx, a)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return &Result{Order: existing, Existing: true}, nil
	}
	if err := a.phase.advance(PhaseLocked); err != nil {
		return nil, err
	}

	order, existed, err := c.run(ctx, a)
	switch {
	case errors.Is(err, domain.ErrOrderExists):
		o, ferr := c.orderFor(ctx, token)
		if ferr != nil {
			return nil, ferr
		}
		return &Result{Order: o, Existing: true}, nil
	case err != nil:
		if a.phase.cur.NeedsCompensation() {
			c.compensate(ctx, a, err)
		}
		return nil, err
	}
	return &Result{Order: order, Existing: existed}, nil
}

func (c *Completer) run(ctx context.Context, a *attempt) (*domain.Order, bool, error) {
	pending, err := c.checkPayment(ctx, a)
	if err != nil {
		return nil, false, err
	}
	if pending != nil {
		if err := c.chargeLegacy(ctx, a, pending); err != nil {
			return nil, false, err
		}
	}

	if err := c.Vouchers.Increase(ctx, a.checkout); err != nil {
		return nil, false, err
	}

	if err := a.phase.advance(PhaseMaterializing); err != nil {
		return nil, false, err
	}
	order, existed, err := c.materialize(ctx, a)
	if err != nil {
		return nil, false, err
	}
	if err := a.phase.advance(PhaseCommitted); err != nil {
		return nil, false, err
	}
	return order, existed, nil
}

// validate checks the checkout without locking it. It returns the order
// when the checkout was already completed.
func (c *Completer) validate(ctx context.Context, token uuid.UUID) (*domain.Order, error) {
	var existing *domain.Order
	err := c.Tx.WithTx(ctx, func(ctx context.Context, q store.Queries) error {
		co, err := q.GetCheckout(ctx, token)
		if errors.Is(err, domain.ErrCheckoutNotFound) {
			o, oerr := q.GetOrderByCheckoutToken(ctx, token)
			if oerr == nil {
				existing = o
				return nil
			}
			return err
		}
		if err != nil {
			return err
		}
		lines, err := q.ListCheckoutLines(ctx, token)
		if err != nil {
			return err
		}
		return c.validateCheckout(ctx, q, co, lines)
	})
	return existing, err
}

// acquireLease takes the completion lease, waiting up to LeaseWait for a
// lease held by another attempt. If that attempt completed the checkout in
// the meantime its order is returned.
func (c *Completer) acquireLease(ctx context.Context, a *attempt) (*domain.Order, error) {
	deadline := c.now().Add(c.cfg.LeaseWait)
	for {
		var existing *domain.Order
		err := c.Tx.WithTx(ctx, func(ctx context.Context, q store.Queries) error {
			co, err := q.LockCheckout(ctx, a.token)
			if errors.Is(err, domain.ErrCheckoutNotFound) {
				o, oerr := q.GetOrderByCheckoutToken(ctx, a.token)
				if oerr == nil {
					existing = o
					return nil
				}
				return err
			}
			if err != nil {
				return err
			}
			now := c.now()
			if co.LeaseHeldBy(a.owner, now) {
				return errLeaseHeld
			}
			until := now.Add(c.cfg.LeaseTTL)
			return q.SetCompletionLease(ctx, a.token, &now, a.owner, &until)
		})
		if !errors.Is(err, errLeaseHeld) {
			return existing, err
		}
		if !c.now().Before(deadline) {
			return nil, domain.ErrCheckoutLocked
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.cfg.LeasePoll):
		}
	}
}

// lockOwned locks the checkout and verifies this attempt still holds the lease.
func (c *Completer) lockOwned(ctx context.Context, q store.Queries, a *attempt) (*domain.Checkout, []domain.CheckoutLine, error) {
	co, err := q.LockCheckout(ctx, a.token)
	if err != nil {
		return nil, nil, err
	}
	if co.CompletingOwner != a.owner {
		return nil, nil, domain.ErrCheckoutLocked
	}
	lines, err := q.ListCheckoutLines(ctx, a.token)
	if err != nil {
		return nil, nil, err
	}
	return co, lines, nil
}

// fresh brings prices up to date and rejects checkouts with unusable tax data.
// The refreshed checkout is returned along with a *domain.TaxError.
func (c *Completer) fresh(ctx context.Context, q store.Queries, co *domain.Checkout, lines []domain.CheckoutLine) (*domain.Checkout, []domain.CheckoutLine, error) {
	co, lines, err := c.Prices.EnsureFresh(ctx, q, co, lines, domain.TaxAddress(co, lines), false)
	if err != nil {
		return nil, nil, err
	}
	if co.TaxError != "" {
		return co, lines, &domain.TaxError{Reason: co.TaxError}
	}
	return co, lines, nil
}

// settle runs fn in a transaction that still commits when fn rejects the
// attempt, so refreshed prices and payment statuses are kept. The rejection
// is returned once the transaction committed.
func (c *Completer) settle(ctx context.Context, fn func(ctx context.Context, q store.Queries) error) error {
	var rejected error
	err := c.Tx.WithTx(ctx, func(ctx context.Context, q store.Queries) error {
		err := fn(ctx, q)
		if rejection(err) {
			rejected = err
			return nil
		}
		return err
	})
	if err != nil {
		return err
	}
	return rejected
}

// rejection reports errors raised before anything but prices, statuses and
// reservations was written.
func rejection(err error) bool {
	var terr *domain.TaxError
	return errors.As(err, &terr) ||
		errors.Is(err, domain.ErrNotPaid) ||
		errors.Is(err, domain.ErrInsufficientStock) ||
		errors.Is(err, domain.ErrCheckoutChanged)
}

// checkPayment verifies the checkout is paid for. It returns the legacy
// payment that still has to be captured, if any; stock for the checkout is
// then reserved so it outlives the gateway call.
func (c *Completer) checkPayment(ctx context.Context, a *attempt) (*domain.Payment, error) {
	var pending *domain.Payment
	err := c.settle(ctx, func(ctx context.Context, q store.Queries) error {
		co, lines, err := c.lockOwned(ctx, q, a)
		if err != nil {
			return err
		}
		co, lines, err = c.fresh(ctx, q, co, lines)
		if err != nil {
			return err
		}
		if err := a.phase.advance(PhasePriceFresh); err != nil {
			return err
		}
		if err := c.Payments.Refresh(ctx, q, co, len(lines) > 0); err != nil {
			return err
		}
		ch, err := q.GetChannel(ctx, co.ChannelID)
		if err != nil {
			return fmt.Errorf("channel %q: %w", co.ChannelID, err)
		}
		pending, err = c.coverage(ctx, q, co, ch)
		if err != nil {
			return err
		}
		if pending != nil {
			if err := c.Stock.CheckAndReserve(ctx, q, co.Token, lines, taxCountry(co, lines)); err != nil {
				return err
			}
		}
		a.checkout, a.lines, a.channel = co, lines, ch
		return a.phase.advance(PhasePaymentSufficient)
	})
	return pending, err
}

func (c *Completer) coverage(ctx context.Context, q store.Queries, co *domain.Checkout, ch *domain.Channel) (*domain.Payment, error) {
	if co.AuthorizeStatus == domain.AuthorizeFull {
		return nil, nil
	}
	if ch.AllowUnpaidOrders || c.cfg.AllowUnpaidOrders {
		return nil, nil
	}
	due := co.Total.Gross
	p, err := q.GetActivePayment(ctx, co.Token)
	if err != nil {
		return nil, err
	}
	if p == nil {
		if due.IsZero() {
			return nil, nil
		}
		return nil, fmt.Errorf("authorized below %s: %w", due, domain.ErrNotPaid)
	}
	if money.New(p.CapturedAmount, co.Currency).Cmp(due) >= 0 {
		return nil, nil
	}
	if money.New(p.Total, co.Currency).Cmp(due) < 0 {
		return nil, fmt.Errorf("payment %s covers %s of %s: %w", p.ID, money.New(p.Total, co.Currency), due, domain.ErrNotPaid)
	}
	return p, nil
}

// chargeLegacy captures the legacy payment with no lock held, then re-locks
// the checkout and checks that the total did not move while the gateway
// call was in flight.
func (c *Completer) chargeLegacy(ctx context.Context, a *attempt, p *domain.Payment) error {
	due := a.checkout.Total.Gross.Quantize()
	res, err := c.Gateway.ProcessPayment(ctx, payments.PaymentRequest{
		PaymentID:     p.ID,
		CheckoutToken: a.token,
		Gateway:       p.Gateway,
		Amount:        due.Amount,
		Currency:      due.Currency,
		CustomerEmail: a.checkout.Email,
	})
	if err != nil {
		var perr *domain.PaymentError
		if errors.As(err, &perr) {
			return err
		}
		return &domain.PaymentError{Gateway: p.Gateway, Reason: "gateway call failed", Err: err}
	}
	if !res.IsSuccess {
		return &domain.PaymentError{Gateway: p.Gateway, Reason: res.Error}
	}

	charged := *p
	charged.CapturedAmount = res.Amount
	charged.PSPReference = res.PSPReference
	charged.ChargeStatus = domain.PaymentFullyCharged
	a.charged = &charged

	return c.settle(ctx, func(ctx context.Context, q store.Queries) error {
		co, lines, err := c.lockOwned(ctx, q, a)
		if err != nil {
			return err
		}
		co, lines, err = c.fresh(ctx, q, co, lines)
		if err != nil {
			return err
		}
		if !money.New(res.Amount, co.Currency).Equal(co.Total.Gross) {
			return fmt.Errorf("charged %s but total is now %s: %w", money.New(res.Amount, co.Currency), co.Total.Gross, domain.ErrCheckoutChanged)
		}
		if err := q.UpdatePaymentCapture(ctx, p.ID, res.Amount, domain.PaymentFullyCharged, res.PSPReference); err != nil {
			return err
		}
		a.checkout, a.lines = co, lines
		return nil
	})
}

func taxCountry(co *domain.Checkout, lines []domain.CheckoutLine) string {
	if addr := domain.TaxAddress(co, lines); addr != nil {
		return addr.Country
	}
	return ""
}

func (c *Completer) orderFor(ctx context.Context, token uuid.UUID) (*domain.Order, error) {
	var o *domain.Order
	err := c.Tx.WithTx(ctx, func(ctx context.Context, q store.Queries) (err error) {
		o, err = q.GetOrderByCheckoutToken(ctx, token)
		return err
	})
	return o, err
}

// Outcome labels a completion result for metrics and logs.
func Outcome(res *Result, err error) string {
	var (
		verr *domain.ValidationError
		terr *domain.TaxError
		perr *domain.PaymentError
	)
	switch {
	case err == nil && res != nil && res.Existing:
		return "existing"
	case err == nil:
		return "created"
	case errors.As(err, &verr):
		return "validation"
	case errors.Is(err, domain.ErrCheckoutNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrCheckoutLocked):
		return "locked"
	case errors.Is(err, domain.ErrNotPaid):
		return "not_paid"
	case errors.Is(err, domain.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, domain.ErrGiftCardNotApplicable):
		return "gift_card_not_applicable"
	case errors.Is(err, domain.ErrVoucherNotApplicable):
		return "voucher_not_applicable"
	case errors.Is(err, domain.ErrCheckoutChanged):
		return "checkout_changed"
	case errors.As(err, &terr):
		return "tax_error"
	case errors.As(err, &perr):
		return "payment_error"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}
