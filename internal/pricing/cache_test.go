package pricing

import (
	"context"
	"testing"
	"time"

	"github.com/ariefcatur/go-checkout-orders/internal/domain"
	"github.com/ariefcatur/go-checkout-orders/internal/money"
	"github.com/ariefcatur/go-checkout-orders/internal/store"
	"github.com/ariefcatur/go-checkout-orders/internal/store/memstore"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingCalc struct {
	inner     Calculator
	taxCalls  int
	netCalls  int
	lastInput Input
}

func (c *countingCalc) ComputeCheckoutPrices(ctx context.Context, in Input, a *domain.Address) (Prices, error) {
	c.taxCalls++
	c.lastInput = in
	return c.inner.ComputeCheckoutPrices(ctx, in, a)
}

func (c *countingCalc) ComputeNetPrices(ctx context.Context, in Input) (Prices, error) {
	c.netCalls++
	c.lastInput = in
	return c.inner.ComputeNetPrices(ctx, in)
}

func (c *countingCalc) calls() int { return c.taxCalls + c.netCalls }

type recordingRefresher struct{ calls int }

func (r *recordingRefresher) Refresh(_ context.Context, _ store.Queries, _ *domain.Checkout, _ bool) error {
	r.calls++
	return nil
}

var plAddress = &domain.Address{FirstName: "Jan", Street: "Prosta 1", City: "Warsaw", PostalCode: "00-001", Country: "PL"}

func seed(t *testing.T, voucher *domain.Voucher) (*memstore.MemoryStore, uuid.UUID) {
	t.Helper()
	s := memstore.New()
	token := uuid.New()
	co := domain.Checkout{Token: token, ChannelID: "web", Currency: "USD", ShippingMethodID: "dhl", ShippingAddress: plAddress, BillingAddress: plAddress}
	if voucher != nil {
		s.PutVoucher(*voucher, domain.VoucherCode{Code: "SAVE", IsActive: true})
		co.VoucherCode = "SAVE"
	}
	s.PutShippingMethod(domain.ShippingMethod{ID: "dhl", ChannelID: "web", Price: money.MustParse("10", "USD"), Active: true})
	s.PutCheckout(co, []domain.CheckoutLine{
		{VariantID: "v1", Quantity: 1, IsShippingRequired: true, BasePrice: money.MustParse("100", "USD")},
	})
	return s, token
}

func ensure(t *testing.T, s *memstore.MemoryStore, cache *Cache, token uuid.UUID, address *domain.Address, force bool) *domain.Checkout {
	t.Helper()
	var out *domain.Checkout
	err := s.WithTx(context.Background(), func(ctx context.Context, q store.Queries) error {
		co, err := q.LockCheckout(ctx, token)
		require.NoError(t, err)
		lines, err := q.ListCheckoutLines(ctx, token)
		require.NoError(t, err)
		out, _, err = cache.EnsureFresh(ctx, q, co, lines, address, force)
		return err
	})
	require.NoError(t, err)
	return out
}

func taxTable() *TaxTable {
	return &TaxTable{DefaultRate: decimal.RequireFromString("0.25")}
}

func TestEnsureFresh_SecondCallIsNoop(t *testing.T) {
	s, token := seed(t, nil)
	calc := &countingCalc{inner: taxTable()}
	ref := &recordingRefresher{}
	cache := NewCache(calc, Config{TTL: time.Minute, ChargeTaxes: true}, ref, nil)

	first := ensure(t, s, cache, token, plAddress, false)
	assert.Equal(t, 1, calc.calls())
	assert.Equal(t, 1, ref.calls)
	assert.True(t, first.PriceExpiration.After(time.Now()))

	second := ensure(t, s, cache, token, plAddress, false)
	assert.Equal(t, 1, calc.calls())
	assert.Equal(t, 1, ref.calls)
	assert.Equal(t, first.PriceExpiration, second.PriceExpiration)
}

func TestEnsureFresh_ForceRecomputesAndRefreshes(t *testing.T) {
	s, token := seed(t, nil)
	calc := &countingCalc{inner: taxTable()}
	ref := &recordingRefresher{}
	cache := NewCache(calc, Config{TTL: time.Hour, ChargeTaxes: true}, ref, nil)

	ensure(t, s, cache, token, plAddress, false)
	ensure(t, s, cache, token, plAddress, true)
	assert.Equal(t, 2, calc.calls())
	assert.Equal(t, 2, ref.calls, "forced refresh always refreshes statuses")
}

func TestEnsureFresh_ExpiredWithSameTotalSkipsRefresher(t *testing.T) {
	s, token := seed(t, nil)
	calc := &countingCalc{inner: taxTable()}
	ref := &recordingRefresher{}
	now := time.Now()
	cache := NewCache(calc, Config{TTL: time.Minute, ChargeTaxes: true}, ref, nil).
		WithClock(func() time.Time { return now })

	ensure(t, s, cache, token, plAddress, false)
	now = now.Add(2 * time.Minute)
	ensure(t, s, cache, token, plAddress, false)

	assert.Equal(t, 2, calc.calls())
	assert.Equal(t, 1, ref.calls)
}

func TestEnsureFresh_TaxPolicy(t *testing.T) {
	cases := []struct {
		name         string
		entered      bool
		charge       bool
		net, gross   string
		wantTaxCalls int
	}{
		{name: "entered gross, charged", entered: true, charge: true, net: "88.00", gross: "110.00", wantTaxCalls: 1},
		{name: "entered gross, not charged", entered: true, charge: false, net: "88.00", gross: "88.00", wantTaxCalls: 1},
		{name: "entered net, charged", entered: false, charge: true, net: "110.00", gross: "137.50", wantTaxCalls: 1},
		{name: "entered net, not charged", entered: false, charge: false, net: "110.00", gross: "110.00", wantTaxCalls: 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, token := seed(t, nil)
			calc := &countingCalc{inner: taxTable()}
			cache := NewCache(calc, Config{TTL: time.Minute, PricesEnteredWithTax: tc.entered, ChargeTaxes: tc.charge}, nil, nil)

			co := ensure(t, s, cache, token, plAddress, false)
			assert.Equal(t, tc.wantTaxCalls, calc.taxCalls)
			assert.Equal(t, tc.net, co.Total.Net.Amount.StringFixed(2))
			assert.Equal(t, tc.gross, co.Total.Gross.Amount.StringFixed(2))
			assert.Empty(t, co.TaxError)
		})
	}
}

func TestEnsureFresh_EmptyTaxDataFallsBackToNet(t *testing.T) {
	s, token := seed(t, nil)
	calc := &countingCalc{inner: taxTable()}
	cache := NewCache(calc, Config{TTL: time.Minute, ChargeTaxes: true}, nil, nil)

	co := ensure(t, s, cache, token, nil, false)
	assert.Equal(t, EmptyTaxDataError, co.TaxError)
	assert.Equal(t, 1, calc.taxCalls)
	assert.Equal(t, 1, calc.netCalls)
	assert.Equal(t, "110.00", co.Total.Gross.Amount.StringFixed(2))

	stored, ok := s.Checkout(token)
	require.True(t, ok)
	assert.Equal(t, EmptyTaxDataError, stored.TaxError)
}

func TestEnsureFresh_VoucherDiscount(t *testing.T) {
	v := &domain.Voucher{ID: "v-10", Name: "ten off", Type: domain.VoucherEntireOrder, ValueType: domain.DiscountPercentage,
		Value: decimal.NewFromInt(10), StartDate: time.Now().Add(-time.Hour)}
	s, token := seed(t, v)
	cache := NewCache(taxTable(), Config{TTL: time.Minute}, nil, nil)

	co := ensure(t, s, cache, token, plAddress, false)
	assert.Equal(t, "10.00", co.Discount.Amount.StringFixed(2))
	assert.Equal(t, "90.00", co.Subtotal.Gross.Amount.StringFixed(2))
	assert.Equal(t, "100.00", co.Total.Gross.Amount.StringFixed(2))
}

func TestRecalculate(t *testing.T) {
	s, token := seed(t, nil)
	ref := &recordingRefresher{}
	cache := NewCache(taxTable(), Config{TTL: time.Minute, ChargeTaxes: true}, ref, nil)

	co, err := cache.Recalculate(context.Background(), s, token, true)
	require.NoError(t, err)
	assert.Equal(t, "137.50", co.Total.Gross.Amount.StringFixed(2))
	assert.Equal(t, 1, ref.calls)

	_, err = cache.Recalculate(context.Background(), s, uuid.New(), false)
	require.ErrorIs(t, err, domain.ErrCheckoutNotFound)
}

func TestEnsureFresh_GiftCardsLowerTotal(t *testing.T) {
	s := memstore.New()
	token := uuid.New()
	s.PutGiftCard(domain.GiftCard{Code: "GC-1", Currency: "USD", CurrentBalance: decimal.NewFromInt(30), IsActive: true})
	s.PutGiftCard(domain.GiftCard{Code: "GC-EUR", Currency: "EUR", CurrentBalance: decimal.NewFromInt(30), IsActive: true})
	s.PutCheckout(domain.Checkout{Token: token, Currency: "USD", GiftCardCodes: []string{"GC-1", "GC-EUR"}},
		[]domain.CheckoutLine{{VariantID: "v1", Quantity: 1, BasePrice: money.MustParse("100", "USD")}})
	cache := NewCache(taxTable(), Config{TTL: time.Minute}, nil, nil)

	co := ensure(t, s, cache, token, nil, false)
	assert.Equal(t, "100.00", co.Subtotal.Gross.Amount.StringFixed(2))
	assert.Equal(t, "70.00", co.Total.Gross.Amount.StringFixed(2))
}
