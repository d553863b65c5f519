package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ariefcatur/go-checkout-orders/internal/domain"
	"github.com/ariefcatur/go-checkout-orders/internal/redisx"
	"github.com/ariefcatur/go-checkout-orders/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type OrdersHandler struct {
	Tx    store.TxRunner
	Redis *redis.Client
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Get("/orders/{id}", h.getOrder)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid order id", Code: "invalid", Field: "id"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	// 1) cache
	key := fmt.Sprintf(redisx.KeyOrder, id)
	if h.Redis != nil {
		if s, ok, _ := redisx.GetString(ctx, h.Redis, key); ok {
			writeJSON(w, http.StatusOK, json.RawMessage(s))
			return
		}
	}

	// 2) store
	var o *domain.Order
	err = h.Tx.WithTx(ctx, func(ctx context.Context, q store.Queries) error {
		var err error
		o, err = q.GetOrder(ctx, id)
		return err
	})
	if err != nil {
		writeError(w, err)
		return
	}
	view := newOrderView(o)
	if h.Redis != nil {
		cacheOrder(ctx, h.Redis, view)
	}
	writeJSON(w, http.StatusOK, view)
}
