package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestMoney_Arithmetic(t *testing.T) {
	a := MustParse("10.005", "USD")
	b := MustParse("2.50", "USD")

	assert.Equal(t, "12.51 USD", a.Add(b).String())
	assert.Equal(t, "7.51 USD", a.Sub(b).String())
	assert.Equal(t, "7.50 USD", b.Mul(3).String())
	assert.True(t, a.Max(b).Equal(a))
	assert.True(t, a.Min(b).Equal(b))
}

func TestMoney_ZeroCurrencyAdoptsOther(t *testing.T) {
	sum := Money{Amount: decimal.Zero}.Add(MustParse("1", "EUR"))
	assert.Equal(t, "EUR", sum.Currency)
}

func TestTaxedMoney_StripTax(t *testing.T) {
	tm := TaxedMoney{Net: MustParse("100", "USD"), Gross: MustParse("123", "USD")}

	assert.True(t, tm.Tax().Equal(MustParse("23", "USD")))
	stripped := tm.StripTax()
	assert.True(t, stripped.Gross.Equal(tm.Net))
	assert.True(t, stripped.Tax().IsZero())
}
