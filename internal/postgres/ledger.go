package postgres

import (
	"context"
	"time"

	"github.com/ariefcatur/go-checkout-orders/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func (q *queries) ListTransactionItems(ctx context.Context, checkoutToken uuid.UUID) ([]domain.TransactionItem, error) {
	rows, err := q.tx.Query(ctx, `
		SELECT id, checkout_token, order_id, psp_reference, app_id, currency,
		       authorized, authorize_pending, charged, charge_pending, refunded, canceled,
		       created_at, last_modified_at
		FROM transaction_items WHERE checkout_token=$1
		ORDER BY created_at, id`, checkoutToken)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.TransactionItem
	for rows.Next() {
		var it domain.TransactionItem
		if err := rows.Scan(&it.ID, &it.CheckoutToken, &it.OrderID, &it.PSPReference, &it.AppID, &it.Currency,
			&it.Authorized, &it.AuthorizePend, &it.Charged, &it.ChargePend, &it.Refunded, &it.Canceled,
			&it.CreatedAt, &it.LastModifiedAt); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (q *queries) InsertTransactionItem(ctx context.Context, it *domain.TransactionItem) error {
	if it.ID == uuid.Nil {
		it.ID = uuid.New()
	}
	now := time.Now().UTC()
	if it.CreatedAt.IsZero() {
		it.CreatedAt = now
	}
	it.LastModifiedAt = now
	_, err := q.tx.Exec(ctx, `
		INSERT INTO transaction_items(id, checkout_token, order_id, psp_reference, app_id, currency,
			authorized, authorize_pending, charged, charge_pending, refunded, canceled, created_at, last_modified_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		it.ID, it.CheckoutToken, it.OrderID, it.PSPReference, it.AppID, it.Currency,
		it.Authorized, it.AuthorizePend, it.Charged, it.ChargePend, it.Refunded, it.Canceled,
		it.CreatedAt, it.LastModifiedAt)
	return err
}

func (q *queries) ReassignTransactionItems(ctx context.Context, checkoutToken, orderID uuid.UUID) (int, error) {
	ct, err := q.tx.Exec(ctx, `
		UPDATE transaction_items SET checkout_token=NULL, order_id=$2, last_modified_at=NOW()
		WHERE checkout_token=$1`, checkoutToken, orderID)
	if err != nil {
		return 0, err
	}
	return int(ct.RowsAffected()), nil
}

func (q *queries) GetActivePayment(ctx context.Context, checkoutToken uuid.UUID) (*domain.Payment, error) {
	rows, err := q.tx.Query(ctx, `
		SELECT id, checkout_token, order_id, gateway, currency, total, captured_amount,
		       charge_status, psp_reference, is_active, created_at
		FROM payments WHERE checkout_token=$1 AND is_active
		ORDER BY created_at DESC LIMIT 1`, checkoutToken)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, rows.Err()
	}
	var p domain.Payment
	if err := rows.Scan(&p.ID, &p.CheckoutToken, &p.OrderID, &p.Gateway, &p.Currency, &p.Total, &p.CapturedAmount,
		&p.ChargeStatus, &p.PSPReference, &p.IsActive, &p.CreatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func (q *queries) UpdatePaymentCapture(ctx context.Context, id uuid.UUID, captured decimal.Decimal, status domain.PaymentChargeStatus, pspRef string) error {
	ct, err := q.tx.Exec(ctx, `
		UPDATE payments SET captured_amount=$2, charge_status=$3,
			psp_reference=CASE WHEN $4 = '' THEN psp_reference ELSE $4 END
		WHERE id=$1`, id, captured, string(status), pspRef)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ReassignPayments keeps checkout_token so the payment stays traceable to
// the checkout it was made for.
func (q *queries) ReassignPayments(ctx context.Context, checkoutToken, orderID uuid.UUID) error {
	_, err := q.tx.Exec(ctx, `UPDATE payments SET order_id=$2 WHERE checkout_token=$1`, checkoutToken, orderID)
	return err
}
