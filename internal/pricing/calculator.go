package pricing

import (
	"context"

	"github.com/ariefcatur/go-checkout-orders/internal/domain"
	"github.com/ariefcatur/go-checkout-orders/internal/money"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// TaxTable is the built-in Calculator: voucher discounts on base prices and a
// flat tax rate per country, optionally overridden per tax class.
type TaxTable struct {
	DefaultRate  decimal.Decimal
	CountryRates map[string]decimal.Decimal
	ClassRates   map[string]decimal.Decimal
}

var _ Calculator = (*TaxTable)(nil)

func (t *TaxTable) ComputeNetPrices(_ context.Context, in Input) (Prices, error) {
	return basePrices(in), nil
}

func (t *TaxTable) ComputeCheckoutPrices(_ context.Context, in Input, address *domain.Address) (Prices, error) {
	if address == nil || address.Country == "" {
		return Prices{}, domain.ErrTaxEmptyData
	}
	p := basePrices(in)
	cur := in.Checkout.Currency

	subtotal := money.ZeroTaxed(cur)
	for i, l := range in.Lines {
		rate := t.rate(l.TaxClassName, address.Country)
		lp := p.Lines[i]
		lp.Unit = withTax(lp.Unit.Net, rate, in.PricesEnteredWithTax)
		lp.Total = withTax(lp.Total.Net, rate, in.PricesEnteredWithTax)
		lp.TaxRate = rate
		p.Lines[i] = lp
		subtotal = subtotal.Add(lp.Total)
	}
	shipRate := t.rate("", address.Country)
	p.Shipping = withTax(p.Shipping.Net, shipRate, in.PricesEnteredWithTax)
	p.ShippingTaxRate = shipRate
	p.Subtotal = subtotal
	p.Total = subtotal.Add(p.Shipping)
	return p, nil
}

func (t *TaxTable) rate(class, country string) decimal.Decimal {
	if r, ok := t.ClassRates[class]; ok && class != "" {
		return r
	}
	if r, ok := t.CountryRates[country]; ok {
		return r
	}
	return t.DefaultRate
}

// withTax splits or grosses up amount. rate is a fraction (0.23 for 23%).
func withTax(amount money.Money, rate decimal.Decimal, entered bool) money.TaxedMoney {
	if rate.IsZero() {
		return money.Untaxed(amount)
	}
	factor := decimal.NewFromInt(1).Add(rate)
	if entered {
		net := money.New(amount.Amount.DivRound(factor, 2), amount.Currency)
		return money.TaxedMoney{Net: net, Gross: amount}
	}
	return money.TaxedMoney{Net: amount, Gross: amount.MulRate(factor).Quantize()}
}

// basePrices prices lines and shipping from catalog prices with the voucher
// applied. Every amount is untaxed.
func basePrices(in Input) Prices {
	cur := in.Checkout.Currency
	p := Prices{Lines: make([]LinePrice, len(in.Lines))}

	subtotal := money.Zero(cur)
	for i, l := range in.Lines {
		total := l.BasePrice.Mul(int64(l.Quantity))
		p.Lines[i] = LinePrice{
			UndiscountedUnit: l.BasePrice,
			Total:            money.Untaxed(total),
			VoucherDiscount:  money.Zero(cur),
		}
		subtotal = subtotal.Add(total)
	}

	shipping := money.Zero(cur)
	if in.Shipping != nil && domain.IsShippingRequired(in.Lines) {
		shipping = in.Shipping.Price
	}

	discount := money.Zero(cur)
	if v := in.Voucher; v != nil {
		switch v.Type {
		case domain.VoucherEntireOrder:
			discount = voucherAmount(v, subtotal)
			distribute(p.Lines, discount)
			subtotal = subtotal.Sub(discount)
		case domain.VoucherShipping:
			discount = voucherAmount(v, shipping)
			shipping = shipping.Sub(discount)
		}
	}

	for i, l := range in.Lines {
		if l.Quantity > 0 {
			unit := p.Lines[i].Total.Net.Amount.DivRound(decimal.NewFromInt(int64(l.Quantity)), 2)
			p.Lines[i].Unit = money.Untaxed(money.New(unit, cur))
		} else {
			p.Lines[i].Unit = money.ZeroTaxed(cur)
		}
	}
	p.Subtotal = money.Untaxed(subtotal)
	p.Shipping = money.Untaxed(shipping)
	p.Total = money.Untaxed(subtotal.Add(shipping))
	p.Discount = discount
	return p
}

// voucherAmount is the discount a voucher gives on base, capped at base.
func voucherAmount(v *domain.Voucher, base money.Money) money.Money {
	amt := v.Value
	if v.ValueType == domain.DiscountPercentage {
		amt = base.Amount.Mul(v.Value).Div(hundred).Round(2)
	}
	d := money.New(amt, base.Currency)
	if d.Cmp(base) > 0 {
		d = base
	}
	if d.Amount.IsNegative() {
		d = money.Zero(base.Currency)
	}
	return d
}

// distribute spreads discount across lines proportionally to their totals.
// The last line with a non-zero total absorbs the rounding remainder.
func distribute(lines []LinePrice, discount money.Money) {
	if discount.IsZero() {
		return
	}
	total := decimal.Zero
	last := -1
	for i, l := range lines {
		total = total.Add(l.Total.Net.Amount)
		if l.Total.Net.IsPositive() {
			last = i
		}
	}
	if last < 0 || total.IsZero() {
		return
	}
	left := discount.Amount
	for i := range lines {
		lt := lines[i].Total.Net
		if !lt.IsPositive() {
			continue
		}
		share := left
		if i != last {
			share = discount.Amount.Mul(lt.Amount).DivRound(total, 2)
		}
		if share.GreaterThan(lt.Amount) {
			share = lt.Amount
		}
		left = left.Sub(share)
		d := money.New(share, lt.Currency)
		lines[i].VoucherDiscount = d
		lines[i].Total = money.Untaxed(lt.Sub(d))
	}
}
