package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ariefcatur/go-checkout-orders/internal/domain"
)

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
	Field string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps completion errors to statuses. Anything unrecognised is a 500
// and its message is not echoed.
func writeError(w http.ResponseWriter, err error) {
	var (
		verr *domain.ValidationError
		terr *domain.TaxError
		perr *domain.PaymentError
	)
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: verr.Error(), Code: verr.Code, Field: verr.Field})
	case errors.Is(err, domain.ErrCheckoutNotFound), errors.Is(err, domain.ErrOrderNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error(), Code: "not_found"})
	case errors.Is(err, domain.ErrCheckoutLocked):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error(), Code: "checkout_locked"})
	case errors.Is(err, domain.ErrCheckoutChanged):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error(), Code: "checkout_changed"})
	case errors.Is(err, domain.ErrNotPaid):
		writeJSON(w, http.StatusPaymentRequired, errorBody{Error: err.Error(), Code: "not_paid"})
	case errors.As(err, &perr):
		writeJSON(w, http.StatusPaymentRequired, errorBody{Error: err.Error(), Code: "payment_error"})
	case errors.Is(err, domain.ErrInsufficientStock):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: err.Error(), Code: "insufficient_stock"})
	case errors.Is(err, domain.ErrVoucherNotApplicable):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: err.Error(), Code: "voucher_not_applicable"})
	case errors.Is(err, domain.ErrGiftCardNotApplicable):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: err.Error(), Code: "gift_card_not_applicable"})
	case errors.As(err, &terr):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: err.Error(), Code: "tax_error"})
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "request timed out", Code: "timeout"})
	default:
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}
