// Package store defines the persistence boundary used by the completion flow:
// a transaction scope with guaranteed rollback, row locks on the contended
// rows (checkout, voucher code, stock, gift card) and after-commit hooks.
package store

import (
	"context"
	"time"

	"github.com/ariefcatur/go-checkout-orders/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TxRunner runs fn inside one transaction. The transaction commits only when fn
// returns nil; hooks registered through Queries.AfterCommit run after that commit.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, q Queries) error) error
}

type Queries interface {
	CheckoutQueries
	CatalogQueries
	VoucherQueries
	LedgerQueries
	OrderQueries
	StockQueries
	GiftCardQueries

	// AfterCommit schedules fn to run once the surrounding transaction committed.
	AfterCommit(fn func(ctx context.Context))
}

type CheckoutQueries interface {
	GetCheckout(ctx context.Context, token uuid.UUID) (*domain.Checkout, error)
	// LockCheckout reads the checkout holding its row lock until the tx ends.
	LockCheckout(ctx context.Context, token uuid.UUID) (*domain.Checkout, error)
	ListCheckoutLines(ctx context.Context, token uuid.UUID) ([]domain.CheckoutLine, error)
	UpdateCheckoutPrices(ctx context.Context, c *domain.Checkout) error
	UpdateCheckoutLinePrices(ctx context.Context, lines []domain.CheckoutLine) error
	UpdateCheckoutPaymentStatus(ctx context.Context, token uuid.UUID, a domain.AuthorizeStatus, c domain.ChargeStatus) error
	SetVoucherUsageIncreased(ctx context.Context, token uuid.UUID, increased bool) error
	SetCompletionLease(ctx context.Context, token uuid.UUID, startedAt *time.Time, owner string, until *time.Time) error
	// ClearExpiredLeases drops leases whose expiry passed and returns how many were cleared.
	ClearExpiredLeases(ctx context.Context, now time.Time) (int, error)
	DeleteCheckout(ctx context.Context, token uuid.UUID) error
}

type CatalogQueries interface {
	GetChannel(ctx context.Context, id string) (*domain.Channel, error)
	GetShippingMethod(ctx context.Context, id string) (*domain.ShippingMethod, error)
}

type VoucherQueries interface {
	GetVoucherByCode(ctx context.Context, code string) (*domain.Voucher, *domain.VoucherCode, error)
	LockVoucherCode(ctx context.Context, code string) (*domain.VoucherCode, error)
	AddVoucherCodeUsage(ctx context.Context, code string, delta int) error
	VoucherCustomerExists(ctx context.Context, code, email string) (bool, error)
	AddVoucherCustomer(ctx context.Context, code, email string) error
	RemoveVoucherCustomer(ctx context.Context, code, email string) error
}

type LedgerQueries interface {
	ListTransactionItems(ctx context.Context, checkoutToken uuid.UUID) ([]domain.TransactionItem, error)
	InsertTransactionItem(ctx context.Context, item *domain.TransactionItem) error
	ReassignTransactionItems(ctx context.Context, checkoutToken, orderID uuid.UUID) (int, error)
	// GetActivePayment returns nil, nil when the checkout has no active legacy payment.
	GetActivePayment(ctx context.Context, checkoutToken uuid.UUID) (*domain.Payment, error)
	UpdatePaymentCapture(ctx context.Context, id uuid.UUID, captured decimal.Decimal, status domain.PaymentChargeStatus, pspRef string) error
	ReassignPayments(ctx context.Context, checkoutToken, orderID uuid.UUID) error
}

type OrderQueries interface {
	GetOrder(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	GetOrderByCheckoutToken(ctx context.Context, token uuid.UUID) (*domain.Order, error)
	// InsertOrder persists the order with its lines, discounts and gift cards and
	// assigns Number. It returns domain.ErrOrderExists when the token was used.
	InsertOrder(ctx context.Context, o *domain.Order) error
}

type StockQueries interface {
	// LockStocks locks every stock row for the given variants.
	LockStocks(ctx context.Context, variantIDs []string) ([]domain.Stock, error)
	// ListActiveReservations returns unexpired reservations for the variants,
	// excluding those that belong to excludeToken.
	ListActiveReservations(ctx context.Context, variantIDs []string, excludeToken uuid.UUID, now time.Time) ([]domain.Reservation, error)
	ListCheckoutReservations(ctx context.Context, token uuid.UUID) ([]domain.Reservation, error)
	ReplaceCheckoutReservations(ctx context.Context, token uuid.UUID, rs []domain.Reservation) error
	DeleteExpiredReservations(ctx context.Context, now time.Time) (int, error)
	AddAllocated(ctx context.Context, stockID uuid.UUID, delta int) error
	InsertAllocations(ctx context.Context, as []domain.Allocation) error
}

type GiftCardQueries interface {
	// GetGiftCards reads cards without locking; unknown codes are skipped.
	GetGiftCards(ctx context.Context, codes []string) ([]domain.GiftCard, error)
	LockGiftCards(ctx context.Context, codes []string) ([]domain.GiftCard, error)
	UpdateGiftCardBalance(ctx context.Context, code string, balance decimal.Decimal, usedBy string, usedOn time.Time) error
}
