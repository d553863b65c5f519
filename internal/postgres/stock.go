package postgres

import (
	"context"
	"time"

	"github.com/ariefcatur/go-checkout-orders/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// LockStocks locks rows in (variant, warehouse) order so concurrent
// allocations over overlapping variants cannot deadlock.
func (q *queries) LockStocks(ctx context.Context, variantIDs []string) ([]domain.Stock, error) {
	rows, err := q.tx.Query(ctx, `
		SELECT id, variant_id, warehouse_id, quantity, quantity_allocated, countries
		FROM stocks WHERE variant_id = ANY($1)
		ORDER BY variant_id, warehouse_id
		FOR UPDATE`, nonNil(variantIDs))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Stock
	for rows.Next() {
		var s domain.Stock
		if err := rows.Scan(&s.ID, &s.VariantID, &s.WarehouseID, &s.Quantity, &s.QuantityAllocated, &s.Countries); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (q *queries) ListActiveReservations(ctx context.Context, variantIDs []string, excludeToken uuid.UUID, now time.Time) ([]domain.Reservation, error) {
	return q.reservations(ctx, `
		SELECT id, checkout_token, checkout_line_id, stock_id, variant_id, quantity, expires_at
		FROM reservations
		WHERE variant_id = ANY($1) AND checkout_token <> $2 AND expires_at > $3`, nonNil(variantIDs), excludeToken, now)
}

func (q *queries) ListCheckoutReservations(ctx context.Context, token uuid.UUID) ([]domain.Reservation, error) {
	return q.reservations(ctx, `
		SELECT id, checkout_token, checkout_line_id, stock_id, variant_id, quantity, expires_at
		FROM reservations WHERE checkout_token=$1`, token)
}

func (q *queries) reservations(ctx context.Context, sql string, args ...any) ([]domain.Reservation, error) {
	rows, err := q.tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Reservation
	for rows.Next() {
		var r domain.Reservation
		if err := rows.Scan(&r.ID, &r.CheckoutToken, &r.CheckoutLineID, &r.StockID, &r.VariantID, &r.Quantity, &r.ExpiresAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (q *queries) ReplaceCheckoutReservations(ctx context.Context, token uuid.UUID, rs []domain.Reservation) error {
	b := &pgx.Batch{}
	b.Queue(`DELETE FROM reservations WHERE checkout_token=$1`, token)
	for _, r := range rs {
		if r.ID == uuid.Nil {
			r.ID = uuid.New()
		}
		b.Queue(`
			INSERT INTO reservations(id, checkout_token, checkout_line_id, stock_id, variant_id, quantity, expires_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			r.ID, token, r.CheckoutLineID, r.StockID, r.VariantID, r.Quantity, r.ExpiresAt)
	}
	return q.tx.SendBatch(ctx, b).Close()
}

func (q *queries) DeleteExpiredReservations(ctx context.Context, now time.Time) (int, error) {
	ct, err := q.tx.Exec(ctx, `DELETE FROM reservations WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return int(ct.RowsAffected()), nil
}

func (q *queries) AddAllocated(ctx context.Context, stockID uuid.UUID, delta int) error {
	ct, err := q.tx.Exec(ctx, `UPDATE stocks SET quantity_allocated = quantity_allocated + $2 WHERE id=$1`, stockID, delta)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (q *queries) InsertAllocations(ctx context.Context, as []domain.Allocation) error {
	if len(as) == 0 {
		return nil
	}
	b := &pgx.Batch{}
	for _, a := range as {
		if a.ID == uuid.Nil {
			a.ID = uuid.New()
		}
		b.Queue(`INSERT INTO allocations(id, order_line_id, stock_id, quantity) VALUES ($1,$2,$3,$4)`,
			a.ID, a.OrderLineID, a.StockID, a.Quantity)
	}
	return q.tx.SendBatch(ctx, b).Close()
}
