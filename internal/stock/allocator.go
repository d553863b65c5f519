// Package stock reserves and allocates warehouse stock for checkouts.
package stock

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/ariefcatur/go-checkout-orders/internal/domain"
	"github.com/ariefcatur/go-checkout-orders/internal/store"
	"github.com/google/uuid"
)

type Allocator struct {
	reservationTTL time.Duration
	log            *slog.Logger
	now            func() time.Time
}

func NewAllocator(reservationTTL time.Duration, log *slog.Logger) *Allocator {
	if log == nil {
		log = slog.Default()
	}
	return &Allocator{reservationTTL: reservationTTL, log: log, now: time.Now}
}

type demand struct {
	variantID string
	quantity  int
	lineID    uuid.UUID
}

// CheckAndReserve holds stock for every checkout line, replacing the
// checkout's previous reservations. Stock rows are locked for the rest of
// the transaction. Reservations of other checkouts count as taken.
func (a *Allocator) CheckAndReserve(ctx context.Context, q store.Queries, token uuid.UUID, lines []domain.CheckoutLine, country string) error {
	ds := make([]demand, 0, len(lines))
	for _, l := range lines {
		ds = append(ds, demand{variantID: l.VariantID, quantity: l.Quantity, lineID: l.ID})
	}
	picks, err := a.plan(ctx, q, token, ds, country)
	if err != nil {
		return err
	}

	expires := a.now().Add(a.reservationTTL)
	rs := make([]domain.Reservation, 0, len(picks))
	for _, p := range picks {
		rs = append(rs, domain.Reservation{
			ID:             uuid.New(),
			CheckoutToken:  token,
			CheckoutLineID: p.lineID,
			StockID:        p.stockID,
			VariantID:      p.variantID,
			Quantity:       p.quantity,
			ExpiresAt:      expires,
		})
	}
	return q.ReplaceCheckoutReservations(ctx, token, rs)
}

// Allocate assigns warehouse stock to order lines. Reservations held by the
// checkout the order comes from stand in for a fresh availability check;
// only other checkouts' reservations reduce what is available.
func (a *Allocator) Allocate(ctx context.Context, q store.Queries, token uuid.UUID, lines []domain.OrderLine, country string) ([]domain.Allocation, error) {
	ds := make([]demand, 0, len(lines))
	for _, l := range lines {
		ds = append(ds, demand{variantID: l.VariantID, quantity: l.Quantity, lineID: l.ID})
	}
	picks, err := a.plan(ctx, q, token, ds, country)
	if err != nil {
		return nil, err
	}

	out := make([]domain.Allocation, 0, len(picks))
	for _, p := range picks {
		if err := q.AddAllocated(ctx, p.stockID, p.quantity); err != nil {
			return nil, fmt.Errorf("allocate stock %s: %w", p.stockID, err)
		}
		out = append(out, domain.Allocation{ID: uuid.New(), OrderLineID: p.lineID, StockID: p.stockID, Quantity: p.quantity})
	}
	if err := q.InsertAllocations(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

// ReleaseExpired drops reservations whose hold has run out.
func (a *Allocator) ReleaseExpired(ctx context.Context, q store.Queries) (int, error) {
	return q.DeleteExpiredReservations(ctx, a.now())
}

type pick struct {
	lineID    uuid.UUID
	variantID string
	stockID   uuid.UUID
	quantity  int
}

// plan locks the stock rows and spreads each demand over warehouses,
// preferring the ones this checkout already reserved in. Any shortage fails
// the whole plan with every short variant listed.
func (a *Allocator) plan(ctx context.Context, q store.Queries, token uuid.UUID, ds []demand, country string) ([]pick, error) {
	variantIDs := make([]string, 0, len(ds))
	seen := map[string]bool{}
	for _, d := range ds {
		if !seen[d.variantID] {
			seen[d.variantID] = true
			variantIDs = append(variantIDs, d.variantID)
		}
	}
	sort.Strings(variantIDs)

	stocks, err := q.LockStocks(ctx, variantIDs)
	if err != nil {
		return nil, fmt.Errorf("lock stocks: %w", err)
	}
	others, err := q.ListActiveReservations(ctx, variantIDs, token, a.now())
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	own, err := q.ListCheckoutReservations(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("list checkout reservations: %w", err)
	}

	held := map[uuid.UUID]int{}
	for _, r := range others {
		held[r.StockID] += r.Quantity
	}
	mine := map[uuid.UUID]bool{}
	for _, r := range own {
		mine[r.StockID] = true
	}

	free := map[uuid.UUID]int{}
	byVariant := map[string][]domain.Stock{}
	for _, s := range stocks {
		if !s.ShipsTo(country) {
			continue
		}
		n := s.Quantity - s.QuantityAllocated - held[s.ID]
		if n <= 0 {
			continue
		}
		free[s.ID] = n
		byVariant[s.VariantID] = append(byVariant[s.VariantID], s)
	}
	for v := range byVariant {
		ss := byVariant[v]
		sort.SliceStable(ss, func(i, j int) bool { return mine[ss[i].ID] && !mine[ss[j].ID] })
	}

	var (
		picks    []pick
		shortage []domain.StockShortage
	)
	for _, d := range ds {
		need := d.quantity
		available := 0
		for _, s := range byVariant[d.variantID] {
			available += free[s.ID]
		}
		if available < need {
			shortage = append(shortage, domain.StockShortage{VariantID: d.variantID, Required: need, Available: available})
			continue
		}
		for _, s := range byVariant[d.variantID] {
			if need == 0 {
				break
			}
			take := min(need, free[s.ID])
			if take == 0 {
				continue
			}
			free[s.ID] -= take
			need -= take
			picks = append(picks, pick{lineID: d.lineID, variantID: d.variantID, stockID: s.ID, quantity: take})
		}
	}
	if len(shortage) > 0 {
		a.log.InfoContext(ctx, "insufficient stock", "token", token, "variants", len(shortage))
		return nil, &domain.InsufficientStockError{Items: shortage}
	}
	return picks, nil
}
