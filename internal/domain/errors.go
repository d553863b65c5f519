package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrCheckoutNotFound      = errors.New("checkout not found")
	ErrOrderNotFound         = errors.New("order not found")
	ErrOrderExists           = errors.New("order for this checkout already exists")
	ErrCheckoutLocked        = errors.New("checkout is being completed by another request")
	ErrCheckoutChanged       = errors.New("checkout total changed while payment was processed")
	ErrNotPaid               = errors.New("checkout is not fully paid or authorized")
	ErrInsufficientStock     = errors.New("insufficient stock")
	ErrGiftCardNotApplicable = errors.New("gift card is not applicable")
	ErrVoucherNotApplicable  = errors.New("voucher is not applicable")
	ErrTaxEmptyData          = errors.New("empty tax data")
	ErrNotFound              = errors.New("not found")
)

// ValidationError rejects a request before any side effect happened.
type ValidationError struct {
	Code  string
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Msg
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Msg)
}

func Invalid(code, field, msg string) *ValidationError {
	return &ValidationError{Code: code, Field: field, Msg: msg}
}

type StockShortage struct {
	VariantID string
	Required  int
	Available int
}

// InsufficientStockError lists per-variant shortages. It matches ErrInsufficientStock.
type InsufficientStockError struct {
	Items []StockShortage
}

func (e *InsufficientStockError) Error() string {
	ids := make([]string, 0, len(e.Items))
	for _, it := range e.Items {
		ids = append(ids, fmt.Sprintf("%s (required %d, available %d)", it.VariantID, it.Required, it.Available))
	}
	return "insufficient stock for " + strings.Join(ids, ", ")
}

func (e *InsufficientStockError) Is(target error) bool { return target == ErrInsufficientStock }

// TaxError is raised when completion proceeds while the checkout carries unusable tax data.
type TaxError struct {
	Reason string
}

func (e *TaxError) Error() string { return "unable to calculate taxes: " + e.Reason }

// PaymentError wraps a gateway failure.
type PaymentError struct {
	Gateway string
	Reason  string
	Err     error
}

func (e *PaymentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("payment via %s failed: %s: %v", e.Gateway, e.Reason, e.Err)
	}
	return fmt.Sprintf("payment via %s failed: %s", e.Gateway, e.Reason)
}

func (e *PaymentError) Unwrap() error { return e.Err }
