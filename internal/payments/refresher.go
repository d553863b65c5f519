package payments

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ariefcatur/go-checkout-orders/internal/domain"
	"github.com/ariefcatur/go-checkout-orders/internal/store"
	"github.com/google/uuid"
)

// Refresher persists reconciled statuses on a checkout, only when they change.
type Refresher struct {
	log *slog.Logger
}

func NewRefresher(log *slog.Logger) *Refresher {
	if log == nil {
		log = slog.Default()
	}
	return &Refresher{log: log}
}

// Refresh recomputes the statuses of c from its ledger entries and updates c in place.
func (r *Refresher) Refresh(ctx context.Context, q store.Queries, c *domain.Checkout, hasLines bool) error {
	entries, err := q.ListTransactionItems(ctx, c.Token)
	if err != nil {
		return fmt.Errorf("list transaction items: %w", err)
	}
	a, ch := Reconcile(c.Total.Gross.Amount, hasLines, entries)
	if a == c.AuthorizeStatus && ch == c.ChargeStatus {
		return nil
	}
	if err := q.UpdateCheckoutPaymentStatus(ctx, c.Token, a, ch); err != nil {
		return fmt.Errorf("update payment status: %w", err)
	}
	r.log.InfoContext(ctx, "checkout payment status changed",
		"token", c.Token,
		"authorize_from", c.AuthorizeStatus, "authorize_to", a,
		"charge_from", c.ChargeStatus, "charge_to", ch)
	c.AuthorizeStatus, c.ChargeStatus = a, ch
	return nil
}

// Status refreshes and returns the statuses of the checkout in its own transaction.
func (r *Refresher) Status(ctx context.Context, tx store.TxRunner, token uuid.UUID) (domain.AuthorizeStatus, domain.ChargeStatus, error) {
	var (
		a  domain.AuthorizeStatus
		ch domain.ChargeStatus
	)
	err := tx.WithTx(ctx, func(ctx context.Context, q store.Queries) error {
		c, err := q.LockCheckout(ctx, token)
		if err != nil {
			return err
		}
		lines, err := q.ListCheckoutLines(ctx, token)
		if err != nil {
			return err
		}
		if err := r.Refresh(ctx, q, c, len(lines) > 0); err != nil {
			return err
		}
		a, ch = c.AuthorizeStatus, c.ChargeStatus
		return nil
	})
	return a, ch, err
}
