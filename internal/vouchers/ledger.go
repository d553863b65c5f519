// Package vouchers counts voucher code usage at most once per checkout.
//
// The checkout's IsVoucherUsageIncreased flag records whether the code's
// counter includes this checkout. The flag and the counter always change in
// the same transaction, with the checkout row locked.
package vouchers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ariefcatur/go-checkout-orders/internal/domain"
	"github.com/ariefcatur/go-checkout-orders/internal/store"
)

type Ledger struct {
	tx  store.TxRunner
	log *slog.Logger
	now func() time.Time
}

func NewLedger(tx store.TxRunner, log *slog.Logger) *Ledger {
	if log == nil {
		log = slog.Default()
	}
	return &Ledger{tx: tx, log: log, now: time.Now}
}

// Increase counts the checkout's voucher code once. It is a no-op when the
// checkout has no code or its usage was already counted. c is updated to
// reflect the stored flag.
func (l *Ledger) Increase(ctx context.Context, c *domain.Checkout) error {
	return l.tx.WithTx(ctx, func(ctx context.Context, q store.Queries) error {
		locked, err := q.LockCheckout(ctx, c.Token)
		if err != nil {
			return err
		}
		if err := l.IncreaseTx(ctx, q, locked); err != nil {
			return err
		}
		c.IsVoucherUsageIncreased = locked.IsVoucherUsageIncreased
		return nil
	})
}

// Release undoes Increase. It is a no-op when the usage was not counted.
func (l *Ledger) Release(ctx context.Context, c *domain.Checkout) error {
	return l.tx.WithTx(ctx, func(ctx context.Context, q store.Queries) error {
		locked, err := q.LockCheckout(ctx, c.Token)
		if err != nil {
			return err
		}
		if err := l.ReleaseTx(ctx, q, locked); err != nil {
			return err
		}
		c.IsVoucherUsageIncreased = locked.IsVoucherUsageIncreased
		return nil
	})
}

// IncreaseTx is Increase inside the caller's transaction. c must have been
// read with LockCheckout in that transaction.
func (l *Ledger) IncreaseTx(ctx context.Context, q store.Queries, c *domain.Checkout) error {
	if c.VoucherCode == "" || c.IsVoucherUsageIncreased {
		return nil
	}
	v, _, err := q.GetVoucherByCode(ctx, c.VoucherCode)
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("voucher code %q: %w", c.VoucherCode, domain.ErrVoucherNotApplicable)
	}
	if err != nil {
		return err
	}
	code, err := q.LockVoucherCode(ctx, c.VoucherCode)
	if err != nil {
		return err
	}
	if err := l.checkApplicable(ctx, q, c, v, code); err != nil {
		return err
	}

	if err := q.AddVoucherCodeUsage(ctx, code.Code, 1); err != nil {
		return err
	}
	if v.ApplyOncePerCustomer && c.Email != "" {
		if err := q.AddVoucherCustomer(ctx, code.Code, c.Email); err != nil {
			return err
		}
	}
	if err := q.SetVoucherUsageIncreased(ctx, c.Token, true); err != nil {
		return err
	}
	c.IsVoucherUsageIncreased = true
	l.log.DebugContext(ctx, "voucher usage increased", "token", c.Token, "code", code.Code)
	return nil
}

// ReleaseTx is Release inside the caller's transaction.
func (l *Ledger) ReleaseTx(ctx context.Context, q store.Queries, c *domain.Checkout) error {
	if c.VoucherCode == "" || !c.IsVoucherUsageIncreased {
		return nil
	}
	v, code, err := q.GetVoucherByCode(ctx, c.VoucherCode)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		// the code was deleted; only the flag is left to clear
	case err != nil:
		return err
	default:
		if _, err := q.LockVoucherCode(ctx, code.Code); err != nil {
			return err
		}
		if err := q.AddVoucherCodeUsage(ctx, code.Code, -1); err != nil {
			return err
		}
		if v.ApplyOncePerCustomer && c.Email != "" {
			if err := q.RemoveVoucherCustomer(ctx, code.Code, c.Email); err != nil {
				return err
			}
		}
	}
	if err := q.SetVoucherUsageIncreased(ctx, c.Token, false); err != nil {
		return err
	}
	c.IsVoucherUsageIncreased = false
	l.log.DebugContext(ctx, "voucher usage released", "token", c.Token, "code", c.VoucherCode)
	return nil
}

// Validate checks that the checkout's voucher can still be used, without
// changing anything. It is used while materializing the order.
func (l *Ledger) Validate(ctx context.Context, q store.Queries, c *domain.Checkout) error {
	if c.VoucherCode == "" {
		return nil
	}
	v, code, err := q.GetVoucherByCode(ctx, c.VoucherCode)
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("voucher code %q: %w", c.VoucherCode, domain.ErrVoucherNotApplicable)
	}
	if err != nil {
		return err
	}
	if !code.IsActive || !v.ActiveAt(l.now(), c.ChannelID) {
		return fmt.Errorf("voucher code %q is no longer active: %w", c.VoucherCode, domain.ErrVoucherNotApplicable)
	}
	return nil
}

func (l *Ledger) checkApplicable(ctx context.Context, q store.Queries, c *domain.Checkout, v *domain.Voucher, code *domain.VoucherCode) error {
	if !code.IsActive || !v.ActiveAt(l.now(), c.ChannelID) {
		return fmt.Errorf("voucher code %q is no longer active: %w", code.Code, domain.ErrVoucherNotApplicable)
	}
	if v.UsageLimit != nil && code.Used >= *v.UsageLimit {
		return fmt.Errorf("voucher code %q reached its usage limit: %w", code.Code, domain.ErrVoucherNotApplicable)
	}
	if v.ApplyOncePerCustomer && c.Email != "" {
		used, err := q.VoucherCustomerExists(ctx, code.Code, c.Email)
		if err != nil {
			return err
		}
		if used {
			return fmt.Errorf("voucher code %q was already used by this customer: %w", code.Code, domain.ErrVoucherNotApplicable)
		}
	}
	return nil
}
