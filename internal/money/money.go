package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Money is an amount in a single currency. Amounts are kept at full precision
// and only quantized when a price is stored or compared against a payment.
type Money struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

func New(amount decimal.Decimal, currency string) Money {
	return Money{Amount: amount, Currency: currency}
}

// MustParse is for literals in tests and seed data.
func MustParse(amount, currency string) Money {
	return Money{Amount: decimal.RequireFromString(amount), Currency: currency}
}

func Zero(currency string) Money {
	return Money{Amount: decimal.Zero, Currency: currency}
}

func (m Money) Add(o Money) Money { return Money{Amount: m.Amount.Add(o.Amount), Currency: m.cur(o)} }
func (m Money) Sub(o Money) Money { return Money{Amount: m.Amount.Sub(o.Amount), Currency: m.cur(o)} }

func (m Money) Mul(qty int64) Money {
	return Money{Amount: m.Amount.Mul(decimal.NewFromInt(qty)), Currency: m.Currency}
}

func (m Money) MulRate(rate decimal.Decimal) Money {
	return Money{Amount: m.Amount.Mul(rate), Currency: m.Currency}
}

func (m Money) IsZero() bool     { return m.Amount.IsZero() }
func (m Money) IsPositive() bool { return m.Amount.IsPositive() }

// Cmp compares quantized amounts; currencies are assumed equal.
func (m Money) Cmp(o Money) int { return m.Quantize().Amount.Cmp(o.Quantize().Amount) }

func (m Money) Equal(o Money) bool { return m.Cmp(o) == 0 }

// Max returns the larger of m and o.
func (m Money) Max(o Money) Money {
	if m.Cmp(o) >= 0 {
		return m
	}
	return o
}

// Min returns the smaller of m and o.
func (m Money) Min(o Money) Money {
	if m.Cmp(o) <= 0 {
		return m
	}
	return o
}

// Quantize rounds to two decimal places, half away from zero.
func (m Money) Quantize() Money {
	return Money{Amount: m.Amount.Round(2), Currency: m.Currency}
}

func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.Amount.StringFixed(2), m.Currency)
}

func (m Money) cur(o Money) string {
	if m.Currency == "" {
		return o.Currency
	}
	return m.Currency
}

// TaxedMoney is a net/gross pair.
type TaxedMoney struct {
	Net   Money `json:"net"`
	Gross Money `json:"gross"`
}

func ZeroTaxed(currency string) TaxedMoney {
	return TaxedMoney{Net: Zero(currency), Gross: Zero(currency)}
}

// Untaxed builds a pair where net equals gross.
func Untaxed(m Money) TaxedMoney { return TaxedMoney{Net: m, Gross: m} }

func (t TaxedMoney) Add(o TaxedMoney) TaxedMoney {
	return TaxedMoney{Net: t.Net.Add(o.Net), Gross: t.Gross.Add(o.Gross)}
}

func (t TaxedMoney) Mul(qty int64) TaxedMoney {
	return TaxedMoney{Net: t.Net.Mul(qty), Gross: t.Gross.Mul(qty)}
}

func (t TaxedMoney) Tax() Money { return t.Gross.Sub(t.Net) }

func (t TaxedMoney) Quantize() TaxedMoney {
	return TaxedMoney{Net: t.Net.Quantize(), Gross: t.Gross.Quantize()}
}

func (t TaxedMoney) Equal(o TaxedMoney) bool {
	return t.Net.Equal(o.Net) && t.Gross.Equal(o.Gross)
}

// StripTax drops the tax part, keeping net on both sides.
func (t TaxedMoney) StripTax() TaxedMoney { return TaxedMoney{Net: t.Net, Gross: t.Net} }
