package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ariefcatur/go-checkout-orders/internal/checkout"
	"github.com/ariefcatur/go-checkout-orders/internal/domain"
	"github.com/ariefcatur/go-checkout-orders/internal/payments"
	"github.com/ariefcatur/go-checkout-orders/internal/pricing"
	"github.com/ariefcatur/go-checkout-orders/internal/redisx"
	"github.com/ariefcatur/go-checkout-orders/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type CheckoutsHandler struct {
	Tx        store.TxRunner
	Completer *checkout.Completer
	Prices    *pricing.Cache
	Payments  *payments.Refresher
	// Redis is optional; without it every request goes to the store.
	Redis *redis.Client
	Log   *slog.Logger
}

func (h *CheckoutsHandler) Register(r chi.Router) {
	r.Post("/checkouts/{token}/complete", h.complete)
	r.Post("/checkouts/{token}/prices", h.refreshPrices)
	r.Get("/checkouts/{token}/payment-status", h.paymentStatus)
}

func tokenParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	token, err := uuid.Parse(chi.URLParam(r, "token"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid checkout token", Code: "invalid", Field: "token"})
		return uuid.Nil, false
	}
	return token, true
}

func (h *CheckoutsHandler) complete(w http.ResponseWriter, r *http.Request) {
	token, ok := tokenParam(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	// Fast path: a finished completion is answered from the stored order.
	idemKey := fmt.Sprintf(redisx.KeyIdemCheckoutComplete, token)
	if o := h.completedOrder(ctx, idemKey); o != nil {
		writeJSON(w, http.StatusOK, completeResp{Order: newOrderView(o), Existing: true})
		return
	}

	res, err := h.Completer.Complete(ctx, token)
	if err != nil {
		writeError(w, err)
		return
	}

	view := newOrderView(res.Order)
	if h.Redis != nil {
		_ = h.Redis.Set(ctx, idemKey, res.Order.ID.String(), redisx.TTLIdempotency).Err()
		cacheOrder(ctx, h.Redis, view)
	}
	code := http.StatusCreated
	if res.Existing {
		code = http.StatusOK
	}
	writeJSON(w, code, completeResp{Order: view, Existing: res.Existing})
}

func (h *CheckoutsHandler) completedOrder(ctx context.Context, idemKey string) *domain.Order {
	if h.Redis == nil {
		return nil
	}
	v, ok, err := redisx.GetString(ctx, h.Redis, idemKey)
	if err != nil || !ok {
		return nil
	}
	id, err := uuid.Parse(v)
	if err != nil {
		return nil
	}
	var o *domain.Order
	err = h.Tx.WithTx(ctx, func(ctx context.Context, q store.Queries) error {
		var err error
		o, err = q.GetOrder(ctx, id)
		return err
	})
	if err != nil {
		h.log().WarnContext(ctx, "idempotency key points to an unreadable order", "order_id", id, "err", err)
		return nil
	}
	return o
}

func (h *CheckoutsHandler) refreshPrices(w http.ResponseWriter, r *http.Request) {
	token, ok := tokenParam(w, r)
	if !ok {
		return
	}
	force := false
	if v := r.URL.Query().Get("force"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "force must be a boolean", Code: "invalid", Field: "force"})
			return
		}
		force = b
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	var fresh *domain.Checkout
	err := h.Tx.WithTx(ctx, func(ctx context.Context, q store.Queries) error {
		co, err := q.LockCheckout(ctx, token)
		if err != nil {
			return err
		}
		lines, err := q.ListCheckoutLines(ctx, token)
		if err != nil {
			return err
		}
		fresh, _, err = h.Prices.EnsureFresh(ctx, q, co, lines, domain.TaxAddress(co, lines), force)
		return err
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newPricesView(fresh))
}

func (h *CheckoutsHandler) paymentStatus(w http.ResponseWriter, r *http.Request) {
	token, ok := tokenParam(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	a, c, err := h.Payments.Status(ctx, h.Tx, token)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, paymentStatusView{Token: token.String(), AuthorizeStatus: string(a), ChargeStatus: string(c)})
}

func (h *CheckoutsHandler) log() *slog.Logger {
	if h.Log != nil {
		return h.Log
	}
	return slog.Default()
}

func cacheOrder(ctx context.Context, rdb *redis.Client, v orderView) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	_ = rdb.Set(ctx, fmt.Sprintf(redisx.KeyOrder, v.ID), b, redisx.TTLOrderCache).Err()
}
