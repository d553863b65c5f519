package postgres

import (
	"context"
	"time"

	"github.com/ariefcatur/go-checkout-orders/internal/domain"
	"github.com/ariefcatur/go-checkout-orders/internal/money"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const checkoutColumns = `token, channel_id, currency, email, user_id, billing_address, shipping_address,
	shipping_method_id, voucher_code, gift_card_codes, customer_note,
	subtotal_net, subtotal_gross, shipping_net, shipping_gross, total_net, total_gross, discount,
	tax_error, price_expiration, authorize_status, charge_status,
	is_voucher_usage_increased, automatically_refundable,
	completing_started_at, completing_owner, completing_until, created_at, last_change`

func taxed(net, gross decimal.Decimal, cur string) money.TaxedMoney {
	return money.TaxedMoney{Net: money.New(net, cur), Gross: money.New(gross, cur)}
}

func scanCheckout(row pgx.Row) (*domain.Checkout, error) {
	var (
		c                                    domain.Checkout
		subNet, subGross, shipNet, shipGross decimal.Decimal
		totalNet, totalGross, discount       decimal.Decimal
	)
	err := row.Scan(
		&c.Token, &c.ChannelID, &c.Currency, &c.Email, &c.UserID, &c.BillingAddress, &c.ShippingAddress,
		&c.ShippingMethodID, &c.VoucherCode, &c.GiftCardCodes, &c.CustomerNote,
		&subNet, &subGross, &shipNet, &shipGross, &totalNet, &totalGross, &discount,
		&c.TaxError, &c.PriceExpiration, &c.AuthorizeStatus, &c.ChargeStatus,
		&c.IsVoucherUsageIncreased, &c.AutomaticallyRefundable,
		&c.CompletingStartedAt, &c.CompletingOwner, &c.CompletingUntil, &c.CreatedAt, &c.LastChange,
	)
	if err != nil {
		return nil, noRows(err, domain.ErrCheckoutNotFound)
	}
	c.Subtotal = taxed(subNet, subGross, c.Currency)
	c.ShippingPrice = taxed(shipNet, shipGross, c.Currency)
	c.Total = taxed(totalNet, totalGross, c.Currency)
	c.Discount = money.New(discount, c.Currency)
	return &c, nil
}

func (q *queries) GetCheckout(ctx context.Context, token uuid.UUID) (*domain.Checkout, error) {
	return scanCheckout(q.tx.QueryRow(ctx, `SELECT `+checkoutColumns+` FROM checkouts WHERE token=$1`, token))
}

func (q *queries) LockCheckout(ctx context.Context, token uuid.UUID) (*domain.Checkout, error) {
	return scanCheckout(q.tx.QueryRow(ctx, `SELECT `+checkoutColumns+` FROM checkouts WHERE token=$1 FOR UPDATE`, token))
}

func (q *queries) ListCheckoutLines(ctx context.Context, token uuid.UUID) ([]domain.CheckoutLine, error) {
	rows, err := q.tx.Query(ctx, `
		SELECT l.id, l.checkout_token, l.variant_id, l.product_name, l.variant_name, l.sku, l.quantity,
		       l.is_shipping_required, l.tax_class_name, l.base_price, l.undiscounted_unit_price,
		       l.unit_net, l.unit_gross, l.total_net, l.total_gross, l.voucher_discount, l.tax_rate,
		       l.created_at, c.currency
		FROM checkout_lines l JOIN checkouts c ON c.token = l.checkout_token
		WHERE l.checkout_token=$1
		ORDER BY l.created_at, l.id`, token)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.CheckoutLine
	for rows.Next() {
		var (
			l                                    domain.CheckoutLine
			base, undiscounted, discount         decimal.Decimal
			unitNet, unitGross, totNet, totGross decimal.Decimal
			cur                                  string
		)
		if err := rows.Scan(&l.ID, &l.CheckoutToken, &l.VariantID, &l.ProductName, &l.VariantName, &l.SKU, &l.Quantity,
			&l.IsShippingRequired, &l.TaxClassName, &base, &undiscounted,
			&unitNet, &unitGross, &totNet, &totGross, &discount, &l.TaxRate,
			&l.CreatedAt, &cur); err != nil {
			return nil, err
		}
		l.BasePrice = money.New(base, cur)
		l.UndiscountedUnitPrice = money.New(undiscounted, cur)
		l.UnitPrice = taxed(unitNet, unitGross, cur)
		l.TotalPrice = taxed(totNet, totGross, cur)
		l.VoucherDiscount = money.New(discount, cur)
		out = append(out, l)
	}
	return out, rows.Err()
}

func (q *queries) UpdateCheckoutPrices(ctx context.Context, c *domain.Checkout) error {
	ct, err := q.tx.Exec(ctx, `
		UPDATE checkouts SET
			subtotal_net=$2, subtotal_gross=$3, shipping_net=$4, shipping_gross=$5,
			total_net=$6, total_gross=$7, discount=$8, tax_error=$9, price_expiration=$10, last_change=$11
		WHERE token=$1`,
		c.Token, c.Subtotal.Net.Amount, c.Subtotal.Gross.Amount, c.ShippingPrice.Net.Amount, c.ShippingPrice.Gross.Amount,
		c.Total.Net.Amount, c.Total.Gross.Amount, c.Discount.Amount, c.TaxError, c.PriceExpiration, c.LastChange)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrCheckoutNotFound
	}
	return nil
}

func (q *queries) UpdateCheckoutLinePrices(ctx context.Context, lines []domain.CheckoutLine) error {
	if len(lines) == 0 {
		return nil
	}
	b := &pgx.Batch{}
	for _, l := range lines {
		b.Queue(`
			UPDATE checkout_lines SET
				undiscounted_unit_price=$2, unit_net=$3, unit_gross=$4, total_net=$5, total_gross=$6,
				voucher_discount=$7, tax_rate=$8
			WHERE id=$1`,
			l.ID, l.UndiscountedUnitPrice.Amount, l.UnitPrice.Net.Amount, l.UnitPrice.Gross.Amount,
			l.TotalPrice.Net.Amount, l.TotalPrice.Gross.Amount, l.VoucherDiscount.Amount, l.TaxRate)
	}
	return q.tx.SendBatch(ctx, b).Close()
}

func (q *queries) UpdateCheckoutPaymentStatus(ctx context.Context, token uuid.UUID, a domain.AuthorizeStatus, c domain.ChargeStatus) error {
	return q.execCheckout(ctx, `UPDATE checkouts SET authorize_status=$2, charge_status=$3 WHERE token=$1`, token, string(a), string(c))
}

func (q *queries) SetVoucherUsageIncreased(ctx context.Context, token uuid.UUID, increased bool) error {
	return q.execCheckout(ctx, `UPDATE checkouts SET is_voucher_usage_increased=$2 WHERE token=$1`, token, increased)
}

func (q *queries) SetCompletionLease(ctx context.Context, token uuid.UUID, startedAt *time.Time, owner string, until *time.Time) error {
	return q.execCheckout(ctx, `
		UPDATE checkouts SET completing_started_at=$2, completing_owner=$3, completing_until=$4
		WHERE token=$1`, token, startedAt, owner, until)
}

func (q *queries) ClearExpiredLeases(ctx context.Context, now time.Time) (int, error) {
	ct, err := q.tx.Exec(ctx, `
		UPDATE checkouts SET completing_started_at=NULL, completing_owner='', completing_until=NULL
		WHERE completing_until IS NOT NULL AND completing_until <= $1`, now)
	if err != nil {
		return 0, err
	}
	return int(ct.RowsAffected()), nil
}

// DeleteCheckout removes the checkout; lines and reservations go with it.
func (q *queries) DeleteCheckout(ctx context.Context, token uuid.UUID) error {
	return q.execCheckout(ctx, `DELETE FROM checkouts WHERE token=$1`, token)
}

func (q *queries) execCheckout(ctx context.Context, sql string, args ...any) error {
	ct, err := q.tx.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrCheckoutNotFound
	}
	return nil
}
