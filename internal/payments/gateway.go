package payments

import (
	"context"
	"sync"

	"github.com/ariefcatur/go-checkout-orders/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PaymentRequest struct {
	PaymentID     uuid.UUID
	CheckoutToken uuid.UUID
	Gateway       string
	Amount        decimal.Decimal
	Currency      string
	CustomerEmail string
}

// TransactionResult is the gateway's answer. A declined payment is a result
// with IsSuccess false, not an error.
type TransactionResult struct {
	IsSuccess    bool
	Error        string
	PSPReference string
	Amount       decimal.Decimal
}

type Gateway interface {
	ProcessPayment(ctx context.Context, req PaymentRequest) (TransactionResult, error)
	RefundOrVoid(ctx context.Context, p domain.Payment) error
	// ReleaseTransaction refunds the charged part of a ledger entry and
	// voids the authorized part.
	ReleaseTransaction(ctx context.Context, t domain.TransactionItem) error
}

// DummyGateway captures every payment up to DeclineAbove (zero means no limit).
// It is the development gateway used when no real one is configured.
type DummyGateway struct {
	DeclineAbove decimal.Decimal

	mu       sync.Mutex
	refunded []uuid.UUID
	released []string
}

func (g *DummyGateway) ProcessPayment(ctx context.Context, req PaymentRequest) (TransactionResult, error) {
	if err := ctx.Err(); err != nil {
		return TransactionResult{}, err
	}
	if g.DeclineAbove.IsPositive() && req.Amount.GreaterThan(g.DeclineAbove) {
		return TransactionResult{Error: "card declined"}, nil
	}
	return TransactionResult{
		IsSuccess:    true,
		PSPReference: "dummy-" + req.PaymentID.String(),
		Amount:       req.Amount,
	}, nil
}

func (g *DummyGateway) RefundOrVoid(_ context.Context, p domain.Payment) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refunded = append(g.refunded, p.ID)
	return nil
}

func (g *DummyGateway) ReleaseTransaction(_ context.Context, t domain.TransactionItem) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.released = append(g.released, t.PSPReference)
	return nil
}

// Released lists the PSP references ReleaseTransaction was called for.
func (g *DummyGateway) Released() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.released...)
}

// Refunded lists the payments RefundOrVoid was called for.
func (g *DummyGateway) Refunded() []uuid.UUID {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]uuid.UUID(nil), g.refunded...)
}
