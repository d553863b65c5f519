package postgres

import (
	"context"
	"time"

	"github.com/ariefcatur/go-checkout-orders/internal/domain"
	"github.com/shopspring/decimal"
)

func (q *queries) GetGiftCards(ctx context.Context, codes []string) ([]domain.GiftCard, error) {
	return q.giftCards(ctx, `
		SELECT code, currency, initial_balance, current_balance, is_active, expiry_date, used_by_email, last_used_on
		FROM gift_cards WHERE code = ANY($1) ORDER BY code`, nonNil(codes))
}

// LockGiftCards locks in code order; unknown codes are skipped.
func (q *queries) LockGiftCards(ctx context.Context, codes []string) ([]domain.GiftCard, error) {
	return q.giftCards(ctx, `
		SELECT code, currency, initial_balance, current_balance, is_active, expiry_date, used_by_email, last_used_on
		FROM gift_cards WHERE code = ANY($1) ORDER BY code FOR UPDATE`, nonNil(codes))
}

func (q *queries) giftCards(ctx context.Context, sql string, codes []string) ([]domain.GiftCard, error) {
	rows, err := q.tx.Query(ctx, sql, codes)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.GiftCard
	for rows.Next() {
		var g domain.GiftCard
		if err := rows.Scan(&g.Code, &g.Currency, &g.InitialBalance, &g.CurrentBalance, &g.IsActive,
			&g.ExpiryDate, &g.UsedByEmail, &g.LastUsedOn); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (q *queries) UpdateGiftCardBalance(ctx context.Context, code string, balance decimal.Decimal, usedBy string, usedOn time.Time) error {
	ct, err := q.tx.Exec(ctx, `
		UPDATE gift_cards SET current_balance=GREATEST($2, 0), used_by_email=$3, last_used_on=$4
		WHERE code=$1`, code, balance, usedBy, usedOn)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
