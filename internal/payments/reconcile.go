// Package payments derives checkout payment statuses from the transaction
// ledger and talks to payment gateways for the legacy single-payment flow.
package payments

import (
	"github.com/ariefcatur/go-checkout-orders/internal/domain"
	"github.com/shopspring/decimal"
)

// Reconcile derives the authorize and charge statuses from ledger entries.
// total is the checkout's gross total. It has no side effects.
func Reconcile(total decimal.Decimal, hasLines bool, entries []domain.TransactionItem) (domain.AuthorizeStatus, domain.ChargeStatus) {
	charged := decimal.Zero
	covered := decimal.Zero
	for _, e := range entries {
		c := e.Charged.Add(e.ChargePend)
		charged = charged.Add(c)
		covered = covered.Add(c).Add(e.Authorized).Add(e.AuthorizePend)
	}
	total = total.Round(2)
	return authorizeStatus(total, covered.Round(2), hasLines), chargeStatus(total, charged.Round(2), hasLines)
}

// Open sums the ledger per PSP reference and returns one entry for every
// transaction that still holds authorized or charged funds.
func Open(entries []domain.TransactionItem) []domain.TransactionItem {
	var (
		order []string
		byRef = map[string]*domain.TransactionItem{}
	)
	for _, e := range entries {
		t, ok := byRef[e.PSPReference]
		if !ok {
			t = &domain.TransactionItem{PSPReference: e.PSPReference, AppID: e.AppID, Currency: e.Currency, CheckoutToken: e.CheckoutToken}
			byRef[e.PSPReference] = t
			order = append(order, e.PSPReference)
		}
		t.Authorized = t.Authorized.Add(e.Authorized)
		t.Charged = t.Charged.Add(e.Charged)
	}
	var out []domain.TransactionItem
	for _, ref := range order {
		t := byRef[ref]
		if t.Authorized.IsPositive() || t.Charged.IsPositive() {
			out = append(out, *t)
		}
	}
	return out
}

// Reversal is the ledger entry recording that t was released: the charged
// amount moves to refunded and the authorized amount to canceled.
func Reversal(t domain.TransactionItem) domain.TransactionItem {
	r := domain.TransactionItem{
		CheckoutToken: t.CheckoutToken,
		OrderID:       t.OrderID,
		PSPReference:  t.PSPReference,
		AppID:         t.AppID,
		Currency:      t.Currency,
	}
	if t.Authorized.IsPositive() {
		r.Authorized = t.Authorized.Neg()
		r.Canceled = t.Authorized
	}
	if t.Charged.IsPositive() {
		r.Charged = t.Charged.Neg()
		r.Refunded = t.Charged
	}
	return r
}

func chargeStatus(total, charged decimal.Decimal, hasLines bool) domain.ChargeStatus {
	if charged.IsNegative() {
		charged = decimal.Zero
	}
	switch {
	case charged.IsZero() && total.IsZero() && hasLines:
		return domain.ChargeFull
	case !charged.IsPositive():
		return domain.ChargeNone
	case charged.LessThan(total):
		return domain.ChargePartial
	case charged.Equal(total):
		return domain.ChargeFull
	default:
		return domain.ChargeOvercharged
	}
}

func authorizeStatus(total, covered decimal.Decimal, hasLines bool) domain.AuthorizeStatus {
	if covered.IsNegative() {
		covered = decimal.Zero
	}
	switch {
	case covered.IsZero() && total.IsZero() && hasLines:
		return domain.AuthorizeFull
	case !covered.IsPositive():
		return domain.AuthorizeNone
	case covered.LessThan(total):
		return domain.AuthorizePartial
	default:
		return domain.AuthorizeFull
	}
}
