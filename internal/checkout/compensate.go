package checkout

import (
	"context"

	"github.com/ariefcatur/go-checkout-orders/internal/domain"
	"github.com/ariefcatur/go-checkout-orders/internal/payments"
	"github.com/ariefcatur/go-checkout-orders/internal/store"
)

// compensate undoes what a failed attempt changed, newest first: the voucher
// usage and stock reservations, then funds taken for the checkout, then the
// lease. Nothing is undone when another attempt took the lease over.
//
// Funds on the transaction ledger are released only for checkouts marked
// AutomaticallyRefundable, and only when payment had been accepted. An
// attempt rejected as not paid keeps them for the next attempt.
func (c *Completer) compensate(ctx context.Context, a *attempt, cause error) {
	ctx = context.WithoutCancel(ctx)
	reason := Outcome(nil, cause)
	failedAt := a.phase.cur
	log := c.Log.With("token", a.token, "reason", reason, "phase", failedAt)
	if err := a.phase.advance(PhaseCompensating); err != nil {
		log.ErrorContext(ctx, "cannot compensate", "err", err)
		return
	}
	log.WarnContext(ctx, "compensating failed checkout completion", "err", cause)

	var (
		owned   bool
		release []domain.TransactionItem
	)
	err := c.Tx.WithTx(ctx, func(ctx context.Context, q store.Queries) error {
		co, err := q.LockCheckout(ctx, a.token)
		if err != nil {
			return err
		}
		if co.CompletingOwner != a.owner {
			return nil
		}
		owned = true
		if err := c.Vouchers.ReleaseTx(ctx, q, co); err != nil {
			return err
		}
		if err := q.ReplaceCheckoutReservations(ctx, a.token, nil); err != nil {
			return err
		}
		if co.AutomaticallyRefundable && paymentAccepted(failedAt) {
			items, err := q.ListTransactionItems(ctx, a.token)
			if err != nil {
				return err
			}
			release = payments.Open(items)
		}
		return nil
	})
	if err != nil {
		log.ErrorContext(ctx, "release voucher usage and reservations", "err", err)
	}
	if err == nil && !owned {
		log.WarnContext(ctx, "lease taken over by another attempt, nothing to compensate")
		return
	}

	if a.charged != nil {
		if err := c.Gateway.RefundOrVoid(ctx, *a.charged); err != nil {
			log.ErrorContext(ctx, "refund captured payment", "payment_id", a.charged.ID, "err", err)
		} else {
			log.InfoContext(ctx, "captured payment refunded", "payment_id", a.charged.ID)
		}
	}

	var reversals []domain.TransactionItem
	for _, t := range release {
		if err := c.Gateway.ReleaseTransaction(ctx, t); err != nil {
			log.ErrorContext(ctx, "release transaction", "psp_reference", t.PSPReference, "err", err)
			continue
		}
		log.InfoContext(ctx, "transaction released", "psp_reference", t.PSPReference,
			"authorized", t.Authorized, "charged", t.Charged)
		r := payments.Reversal(t)
		r.CreatedAt = c.now()
		r.LastModifiedAt = r.CreatedAt
		reversals = append(reversals, r)
	}

	err = c.Tx.WithTx(ctx, func(ctx context.Context, q store.Queries) error {
		co, err := q.LockCheckout(ctx, a.token)
		if err != nil {
			return err
		}
		if co.CompletingOwner != a.owner {
			return nil
		}
		for i := range reversals {
			if err := q.InsertTransactionItem(ctx, &reversals[i]); err != nil {
				return err
			}
		}
		if len(reversals) > 0 {
			lines, err := q.ListCheckoutLines(ctx, a.token)
			if err != nil {
				return err
			}
			if err := c.Payments.Refresh(ctx, q, co, len(lines) > 0); err != nil {
				return err
			}
		}
		return q.SetCompletionLease(ctx, a.token, nil, "", nil)
	})
	if err != nil {
		log.ErrorContext(ctx, "release completion lease", "err", err)
	}

	if c.Metrics != nil {
		c.Metrics.ObserveCompensation(reason)
	}
}

func paymentAccepted(p Phase) bool {
	return p == PhasePaymentSufficient || p == PhaseMaterializing
}
