// Package pricing keeps a checkout's computed prices and their expiry.
//
// Prices are recomputed through a Calculator only when the snapshot expired or
// the caller forces it; the tax policy (prices entered with tax, charge taxes)
// decides which calculator entry point is used and whether taxes are kept.
package pricing

import (
	"context"
	"time"

	"github.com/ariefcatur/go-checkout-orders/internal/domain"
	"github.com/ariefcatur/go-checkout-orders/internal/money"
	"github.com/shopspring/decimal"
)

// Calculator is the tax and discount engine.
type Calculator interface {
	// ComputeCheckoutPrices prices the checkout including taxes for address.
	// It returns domain.ErrTaxEmptyData when taxes cannot be computed.
	ComputeCheckoutPrices(ctx context.Context, in Input, address *domain.Address) (Prices, error)
	// ComputeNetPrices prices the checkout from base prices only, without taxes.
	ComputeNetPrices(ctx context.Context, in Input) (Prices, error)
}

// Input is everything a Calculator needs. Shipping and Voucher are nil when unset.
type Input struct {
	Checkout             *domain.Checkout
	Lines                []domain.CheckoutLine
	Shipping             *domain.ShippingMethod
	Voucher              *domain.Voucher
	PricesEnteredWithTax bool
}

type LinePrice struct {
	UndiscountedUnit money.Money
	Unit             money.TaxedMoney
	Total            money.TaxedMoney
	VoucherDiscount  money.Money
	TaxRate          decimal.Decimal
}

// Prices is a full computation result. Lines are aligned with Input.Lines.
type Prices struct {
	Lines           []LinePrice
	Shipping        money.TaxedMoney
	ShippingTaxRate decimal.Decimal
	Subtotal        money.TaxedMoney
	Total           money.TaxedMoney
	Discount        money.Money
}

// StripTaxes keeps the net side of every amount, for channels that display
// taxes but do not charge them.
func (p Prices) StripTaxes() Prices {
	out := p
	out.Lines = make([]LinePrice, len(p.Lines))
	for i, l := range p.Lines {
		l.Unit = l.Unit.StripTax()
		l.Total = l.Total.StripTax()
		out.Lines[i] = l
	}
	out.Shipping = p.Shipping.StripTax()
	out.Subtotal = p.Subtotal.StripTax()
	out.Total = p.Total.StripTax()
	return out
}

// apply copies the computed prices onto the checkout and its lines.
func (p Prices) apply(c *domain.Checkout, lines []domain.CheckoutLine) {
	c.Subtotal = p.Subtotal.Quantize()
	c.ShippingPrice = p.Shipping.Quantize()
	c.Total = p.Total.Quantize()
	c.Discount = p.Discount.Quantize()
	for i := range lines {
		if i >= len(p.Lines) {
			break
		}
		lp := p.Lines[i]
		lines[i].UndiscountedUnitPrice = lp.UndiscountedUnit.Quantize()
		lines[i].UnitPrice = lp.Unit.Quantize()
		lines[i].TotalPrice = lp.Total.Quantize()
		lines[i].VoucherDiscount = lp.VoucherDiscount.Quantize()
		lines[i].TaxRate = lp.TaxRate
	}
}

// CoverWithGiftCards lowers total by the balance of the cards usable at t,
// never below zero.
func CoverWithGiftCards(total money.TaxedMoney, cards []domain.GiftCard, t time.Time, currency string) money.TaxedMoney {
	balance := money.Zero(currency)
	for _, g := range cards {
		if g.UsableAt(t, currency) {
			balance = balance.Add(money.New(g.CurrentBalance, currency))
		}
	}
	if balance.IsZero() {
		return total
	}
	zero := money.Zero(currency)
	return money.TaxedMoney{
		Net:   total.Net.Sub(balance).Max(zero),
		Gross: total.Gross.Sub(balance).Max(zero),
	}
}
