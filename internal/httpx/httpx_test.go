package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ariefcatur/go-checkout-orders/internal/checkout"
	"github.com/ariefcatur/go-checkout-orders/internal/domain"
	"github.com/ariefcatur/go-checkout-orders/internal/metrics"
	"github.com/ariefcatur/go-checkout-orders/internal/money"
	"github.com/ariefcatur/go-checkout-orders/internal/payments"
	"github.com/ariefcatur/go-checkout-orders/internal/pricing"
	"github.com/ariefcatur/go-checkout-orders/internal/redisx"
	"github.com/ariefcatur/go-checkout-orders/internal/stock"
	"github.com/ariefcatur/go-checkout-orders/internal/store/memstore"
	"github.com/ariefcatur/go-checkout-orders/internal/vouchers"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	store *memstore.MemoryStore
	mr    *miniredis.Miniredis
	srv   *httptest.Server
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	st := memstore.New()
	st.PutChannel(domain.Channel{ID: "web", Slug: "web", Currency: "USD", DefaultCountry: "PL", IsActive: true})
	st.PutShippingMethod(domain.ShippingMethod{ID: "dhl", Name: "DHL", ChannelID: "web", Price: money.MustParse("10", "USD"), Active: true})
	st.PutStock(domain.Stock{VariantID: "v1", WarehouseID: "wh-1", Quantity: 10})

	refresher := payments.NewRefresher(nil)
	prices := pricing.NewCache(&pricing.TaxTable{}, pricing.Config{TTL: time.Hour, ChargeTaxes: true}, refresher, nil)
	reg := prometheus.NewRegistry()
	m := metrics.NewCheckout(reg, "test")
	completer := checkout.New(checkout.Deps{
		Tx:       st,
		Prices:   prices,
		Payments: refresher,
		Vouchers: vouchers.NewLedger(st, nil),
		Stock:    stock.NewAllocator(10*time.Minute, nil),
		Gateway:  &payments.DummyGateway{},
		Metrics:  m,
	}, checkout.Config{LeaseTTL: time.Minute, LeasePoll: 2 * time.Millisecond})

	r := NewRouter(nil, m, reg)
	(&CheckoutsHandler{Tx: st, Completer: completer, Prices: prices, Payments: refresher, Redis: rdb}).Register(r)
	(&OrdersHandler{Tx: st, Redis: rdb}).Register(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &testServer{store: st, mr: mr, srv: srv}
}

// addCheckout stores a 100 USD mug shipped for 10 USD with authorized on the ledger.
func (ts *testServer) addCheckout(authorized string) uuid.UUID {
	addr := &domain.Address{FirstName: "Ola", City: "Warsaw", Country: "PL"}
	token := uuid.New()
	ts.store.PutCheckout(domain.Checkout{
		Token: token, ChannelID: "web", Currency: "USD", Email: "buyer@example.com",
		BillingAddress: addr, ShippingAddress: addr, ShippingMethodID: "dhl",
	}, []domain.CheckoutLine{
		{VariantID: "v1", ProductName: "Mug", SKU: "MUG-1", Quantity: 1, IsShippingRequired: true, BasePrice: money.MustParse("100", "USD")},
	})
	if authorized != "" {
		ts.store.PutTransactionItem(domain.TransactionItem{
			CheckoutToken: &token, PSPReference: "psp-1", Currency: "USD",
			Authorized: decimal.RequireFromString(authorized),
		})
	}
	return token
}

func (ts *testServer) do(t *testing.T, method, path string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, ts.srv.URL+path, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]any
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	}
	return resp, body
}

func TestComplete_CreatesThenReturnsExisting(t *testing.T) {
	ts := newTestServer(t)
	token := ts.addCheckout("110")

	resp, body := ts.do(t, http.MethodPost, "/checkouts/"+token.String()+"/complete")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, false, body["existing"])
	order := body["order"].(map[string]any)
	assert.Equal(t, "UNCONFIRMED", order["status"])
	total := order["total"].(map[string]any)["gross"].(map[string]any)
	assert.Equal(t, "110.00", total["amount"])

	orderID := order["id"].(string)
	got, err := ts.mr.Get(fmt.Sprintf(redisx.KeyIdemCheckoutComplete, token))
	require.NoError(t, err)
	assert.Equal(t, orderID, got)
	assert.True(t, ts.mr.Exists(fmt.Sprintf(redisx.KeyOrder, orderID)))

	resp, body = ts.do(t, http.MethodPost, "/checkouts/"+token.String()+"/complete")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["existing"])
	assert.Equal(t, orderID, body["order"].(map[string]any)["id"])
	assert.Len(t, ts.store.Orders(), 1)
}

func TestComplete_WithoutIdempotencyKeyStillReturnsExisting(t *testing.T) {
	ts := newTestServer(t)
	token := ts.addCheckout("110")

	resp, _ := ts.do(t, http.MethodPost, "/checkouts/"+token.String()+"/complete")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	ts.mr.FlushAll()

	resp, body := ts.do(t, http.MethodPost, "/checkouts/"+token.String()+"/complete")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["existing"])
}

func TestComplete_ErrorStatuses(t *testing.T) {
	ts := newTestServer(t)
	unpaid := ts.addCheckout("")

	cases := []struct {
		name string
		path string
		code int
		err  string
	}{
		{"invalid token", "/checkouts/nope/complete", http.StatusBadRequest, "invalid"},
		{"unknown checkout", "/checkouts/" + uuid.NewString() + "/complete", http.StatusNotFound, "not_found"},
		{"not paid", "/checkouts/" + unpaid.String() + "/complete", http.StatusPaymentRequired, "not_paid"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, body := ts.do(t, http.MethodPost, tc.path)
			assert.Equal(t, tc.code, resp.StatusCode)
			assert.Equal(t, tc.err, body["code"])
		})
	}
	_, stillThere := ts.store.Checkout(unpaid)
	assert.True(t, stillThere)
}

func TestRefreshPrices(t *testing.T) {
	ts := newTestServer(t)
	token := ts.addCheckout("")

	resp, body := ts.do(t, http.MethodPost, "/checkouts/"+token.String()+"/prices")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	total := body["total"].(map[string]any)["gross"].(map[string]any)
	assert.Equal(t, "110.00", total["amount"])
	assert.Empty(t, body["tax_error"])

	resp, _ = ts.do(t, http.MethodPost, "/checkouts/"+token.String()+"/prices?force=true")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = ts.do(t, http.MethodPost, "/checkouts/"+token.String()+"/prices?force=later")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "force", body["field"])
}

func TestPaymentStatus(t *testing.T) {
	ts := newTestServer(t)
	token := ts.addCheckout("110")

	// Status is reconciled against the priced total.
	resp, _ := ts.do(t, http.MethodPost, "/checkouts/"+token.String()+"/prices")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := ts.do(t, http.MethodGet, "/checkouts/"+token.String()+"/payment-status")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "FULL", body["authorize_status"])
	assert.Equal(t, "NONE", body["charge_status"])
}

func TestGetOrder_CachesInRedis(t *testing.T) {
	ts := newTestServer(t)
	token := ts.addCheckout("110")
	_, body := ts.do(t, http.MethodPost, "/checkouts/"+token.String()+"/complete")
	orderID := body["order"].(map[string]any)["id"].(string)
	ts.mr.FlushAll()

	resp, body := ts.do(t, http.MethodGet, "/orders/"+orderID)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, orderID, body["id"])
	assert.True(t, ts.mr.Exists(fmt.Sprintf(redisx.KeyOrder, orderID)))

	resp, body = ts.do(t, http.MethodGet, "/orders/"+orderID)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "MUG-1", body["lines"].([]any)[0].(map[string]any)["sku"])

	resp, _ = ts.do(t, http.MethodGet, "/orders/"+uuid.NewString())
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp, _ = ts.do(t, http.MethodGet, "/orders/42")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t)
	token := ts.addCheckout("110")
	ts.do(t, http.MethodPost, "/checkouts/"+token.String()+"/complete")

	resp, _ := ts.do(t, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, ts.srv.URL+"/metrics", nil)
	require.NoError(t, err)
	mresp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer mresp.Body.Close()
	raw, err := io.ReadAll(mresp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `checkout_test_completions_total{outcome="created"} 1`)
	assert.Contains(t, string(raw), `checkout_test_http_requests_total`)
}
