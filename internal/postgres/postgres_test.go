package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/ariefcatur/go-checkout-orders/internal/checkout"
	"github.com/ariefcatur/go-checkout-orders/internal/domain"
	"github.com/ariefcatur/go-checkout-orders/internal/money"
	"github.com/ariefcatur/go-checkout-orders/internal/payments"
	"github.com/ariefcatur/go-checkout-orders/internal/pricing"
	"github.com/ariefcatur/go-checkout-orders/internal/stock"
	"github.com/ariefcatur/go-checkout-orders/internal/store"
	"github.com/ariefcatur/go-checkout-orders/internal/vouchers"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupTestDB(t *testing.T) (*Store, func()) {
	t.Helper()
	if testing.Short() {
		t.Skip("postgres container tests are skipped in -short mode")
	}
	ctx := context.Background()

	pgContainer, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("testdb"),
		tcpostgres.WithUsername("testuser"),
		tcpostgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, Migrate(dsn))

	db, err := Connect(ctx, dsn, 4)
	require.NoError(t, err)

	cleanup := func() {
		db.Close()
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	}
	return New(db), cleanup
}

// seedCheckout stores a 100 USD single-line checkout shipped for 10 USD and
// authorized in full on the transaction ledger.
func seedCheckout(t *testing.T, s *Store) (uuid.UUID, uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	token := uuid.New()
	stockID := uuid.New()

	stmts := []struct {
		sql  string
		args []any
	}{
		{`INSERT INTO channels(id, slug, currency, default_country) VALUES ('web','web','USD','PL') ON CONFLICT DO NOTHING`, nil},
		{`INSERT INTO shipping_methods(id, name, channel_id, price, currency) VALUES ('dhl','DHL','web',10,'USD') ON CONFLICT DO NOTHING`, nil},
		{`INSERT INTO checkouts(token, channel_id, currency, email, billing_address, shipping_address, shipping_method_id)
		  VALUES ($1,'web','USD','buyer@example.com',$2,$2,'dhl')`,
			[]any{token, &domain.Address{FirstName: "Ola", City: "Warsaw", Country: "PL"}}},
		{`INSERT INTO checkout_lines(id, checkout_token, variant_id, product_name, sku, quantity, base_price)
		  VALUES ($1,$2,'v1','Mug','MUG-1',1,100)`, []any{uuid.New(), token}},
		{`INSERT INTO stocks(id, variant_id, warehouse_id, quantity) VALUES ($1,'v1',$2,5)`, []any{stockID, fmt.Sprintf("wh-%s", stockID)}},
		{`INSERT INTO transaction_items(id, checkout_token, psp_reference, currency, authorized)
		  VALUES ($1,$2,'psp-1','USD',110)`, []any{uuid.New(), token}},
	}
	for _, st := range stmts {
		_, err := s.DB.Exec(ctx, st.sql, st.args...)
		require.NoError(t, err)
	}
	return token, stockID
}

func newCompleter(s *Store) *checkout.Completer {
	refresher := payments.NewRefresher(nil)
	return checkout.New(checkout.Deps{
		Tx:       s,
		Prices:   pricing.NewCache(&pricing.TaxTable{}, pricing.Config{TTL: time.Hour, ChargeTaxes: true}, refresher, nil),
		Payments: refresher,
		Vouchers: vouchers.NewLedger(s, nil),
		Stock:    stock.NewAllocator(10*time.Minute, nil),
		Gateway:  &payments.DummyGateway{},
	}, checkout.Config{LeaseTTL: time.Minute, LeasePoll: 5 * time.Millisecond})
}

func TestStore_CompleteCheckout(t *testing.T) {
	s, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	token, stockID := seedCheckout(t, s)
	c := newCompleter(s)

	res, err := c.Complete(ctx, token)
	require.NoError(t, err)
	require.False(t, res.Existing)
	assert.Equal(t, "110.00 USD", res.Order.Total.Gross.Quantize().String())
	assert.Equal(t, domain.AuthorizeFull, res.Order.AuthorizeStatus)
	assert.NotZero(t, res.Order.Number)

	err = s.WithTx(ctx, func(ctx context.Context, q store.Queries) error {
		_, err := q.GetCheckout(ctx, token)
		assert.ErrorIs(t, err, domain.ErrCheckoutNotFound)

		o, err := q.GetOrderByCheckoutToken(ctx, token)
		require.NoError(t, err)
		assert.Equal(t, res.Order.ID, o.ID)
		require.Len(t, o.Lines, 1)
		assert.Equal(t, "MUG-1", o.Lines[0].SKU)
		assert.Equal(t, "Ola", o.ShippingAddress.FirstName)

		items, err := q.ListTransactionItems(ctx, token)
		require.NoError(t, err)
		assert.Empty(t, items, "ledger moved to the order")

		stocks, err := q.LockStocks(ctx, []string{"v1"})
		require.NoError(t, err)
		for _, st := range stocks {
			if st.ID == stockID {
				assert.Equal(t, 1, st.QuantityAllocated)
			}
		}
		return nil
	})
	require.NoError(t, err)

	again, err := c.Complete(ctx, token)
	require.NoError(t, err)
	assert.True(t, again.Existing)
	assert.Equal(t, res.Order.ID, again.Order.ID)
}

func TestStore_InsertOrderTwiceForToken(t *testing.T) {
	s, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	token, _ := seedCheckout(t, s)
	zero := money.ZeroTaxed("USD")
	newOrder := func() *domain.Order {
		return &domain.Order{
			CheckoutToken: token, ChannelID: "web", Status: domain.OrderUnconfirmed, Currency: "USD",
			ShippingPrice: zero, Subtotal: zero, Total: zero, UndiscountedTotal: zero,
			AuthorizeStatus: domain.AuthorizeNone, ChargeStatus: domain.ChargeNone,
			CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC(),
		}
	}

	err := s.WithTx(ctx, func(ctx context.Context, q store.Queries) error {
		return q.InsertOrder(ctx, newOrder())
	})
	require.NoError(t, err)

	err = s.WithTx(ctx, func(ctx context.Context, q store.Queries) error {
		return q.InsertOrder(ctx, newOrder())
	})
	assert.ErrorIs(t, err, domain.ErrOrderExists)
}

func TestStore_RollbackDiscardsHooks(t *testing.T) {
	s, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	token, _ := seedCheckout(t, s)
	ran := false
	boom := fmt.Errorf("boom")

	err := s.WithTx(ctx, func(ctx context.Context, q store.Queries) error {
		require.NoError(t, q.SetVoucherUsageIncreased(ctx, token, true))
		q.AfterCommit(func(context.Context) { ran = true })
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.False(t, ran)

	err = s.WithTx(ctx, func(ctx context.Context, q store.Queries) error {
		co, err := q.GetCheckout(ctx, token)
		require.NoError(t, err)
		assert.False(t, co.IsVoucherUsageIncreased)
		return nil
	})
	require.NoError(t, err)
}

func TestStore_GiftCardBalanceNeverNegative(t *testing.T) {
	s, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	_, err := s.DB.Exec(ctx, `INSERT INTO gift_cards(code, currency, initial_balance, current_balance) VALUES ('GC-1','USD',50,50)`)
	require.NoError(t, err)

	err = s.WithTx(ctx, func(ctx context.Context, q store.Queries) error {
		cards, err := q.LockGiftCards(ctx, []string{"GC-1", "missing"})
		require.NoError(t, err)
		require.Len(t, cards, 1)
		return q.UpdateGiftCardBalance(ctx, "GC-1", decimal.NewFromInt(-5), "buyer@example.com", time.Now())
	})
	require.NoError(t, err)

	err = s.WithTx(ctx, func(ctx context.Context, q store.Queries) error {
		cards, err := q.GetGiftCards(ctx, []string{"GC-1"})
		require.NoError(t, err)
		require.Len(t, cards, 1)
		assert.True(t, cards[0].CurrentBalance.IsZero())
		assert.Equal(t, "buyer@example.com", cards[0].UsedByEmail)
		return nil
	})
	require.NoError(t, err)
}
