package postgres

import (
	"context"
	"fmt"

	"github.com/ariefcatur/go-checkout-orders/internal/domain"
	"github.com/ariefcatur/go-checkout-orders/internal/money"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const orderColumns = `id, number, checkout_token, channel_id, status, currency, email, user_id,
	billing_address, shipping_address, shipping_method_id, shipping_method, voucher_code, customer_note,
	shipping_net, shipping_gross, shipping_tax_rate, subtotal_net, subtotal_gross, total_net, total_gross,
	undiscounted_net, undiscounted_gross, authorize_status, charge_status, created_at, updated_at`

func (q *queries) GetOrder(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	return q.loadOrder(ctx, q.tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, id))
}

func (q *queries) GetOrderByCheckoutToken(ctx context.Context, token uuid.UUID) (*domain.Order, error) {
	return q.loadOrder(ctx, q.tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE checkout_token=$1`, token))
}

func (q *queries) loadOrder(ctx context.Context, row pgx.Row) (*domain.Order, error) {
	var (
		o                                  domain.Order
		shipNet, shipGross                 decimal.Decimal
		subNet, subGross, totNet, totGross decimal.Decimal
		undNet, undGross                   decimal.Decimal
	)
	err := row.Scan(&o.ID, &o.Number, &o.CheckoutToken, &o.ChannelID, &o.Status, &o.Currency, &o.Email, &o.UserID,
		&o.BillingAddress, &o.ShippingAddress, &o.ShippingMethodID, &o.ShippingMethod, &o.VoucherCode, &o.CustomerNote,
		&shipNet, &shipGross, &o.ShippingTaxRate, &subNet, &subGross, &totNet, &totGross,
		&undNet, &undGross, &o.AuthorizeStatus, &o.ChargeStatus, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, noRows(err, domain.ErrOrderNotFound)
	}
	cur := o.Currency
	o.ShippingPrice = taxed(shipNet, shipGross, cur)
	o.Subtotal = taxed(subNet, subGross, cur)
	o.Total = taxed(totNet, totGross, cur)
	o.UndiscountedTotal = taxed(undNet, undGross, cur)

	if o.Lines, err = q.orderLines(ctx, o.ID, cur); err != nil {
		return nil, err
	}
	if o.Discounts, err = q.orderDiscounts(ctx, o.ID, cur); err != nil {
		return nil, err
	}
	if o.GiftCards, err = q.orderGiftCards(ctx, o.ID, cur); err != nil {
		return nil, err
	}
	return &o, nil
}

func (q *queries) orderLines(ctx context.Context, orderID uuid.UUID, cur string) ([]domain.OrderLine, error) {
	rows, err := q.tx.Query(ctx, `
		SELECT id, order_id, variant_id, product_name, variant_name, sku, quantity, is_shipping_required,
		       tax_class_name, unit_net, unit_gross, total_net, total_gross, undiscounted_unit_price,
		       unit_discount, tax_rate
		FROM order_lines WHERE order_id=$1 ORDER BY position`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.OrderLine
	for rows.Next() {
		var (
			l                                    domain.OrderLine
			unitNet, unitGross, totNet, totGross decimal.Decimal
			undiscounted, discount               decimal.Decimal
		)
		if err := rows.Scan(&l.ID, &l.OrderID, &l.VariantID, &l.ProductName, &l.VariantName, &l.SKU, &l.Quantity,
			&l.IsShippingRequired, &l.TaxClassName, &unitNet, &unitGross, &totNet, &totGross, &undiscounted,
			&discount, &l.TaxRate); err != nil {
			return nil, err
		}
		l.UnitPrice = taxed(unitNet, unitGross, cur)
		l.TotalPrice = taxed(totNet, totGross, cur)
		l.UndiscountedUnitPrice = money.New(undiscounted, cur)
		l.UnitDiscount = money.New(discount, cur)
		out = append(out, l)
	}
	return out, rows.Err()
}

func (q *queries) orderDiscounts(ctx context.Context, orderID uuid.UUID, cur string) ([]domain.OrderDiscount, error) {
	rows, err := q.tx.Query(ctx, `SELECT type, name, voucher_code, amount FROM order_discounts WHERE order_id=$1`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.OrderDiscount
	for rows.Next() {
		var (
			d      domain.OrderDiscount
			amount decimal.Decimal
		)
		if err := rows.Scan(&d.Type, &d.Name, &d.VoucherCode, &amount); err != nil {
			return nil, err
		}
		d.Amount = money.New(amount, cur)
		out = append(out, d)
	}
	return out, rows.Err()
}

func (q *queries) orderGiftCards(ctx context.Context, orderID uuid.UUID, cur string) ([]domain.OrderGiftCard, error) {
	rows, err := q.tx.Query(ctx, `SELECT code, amount FROM order_gift_cards WHERE order_id=$1 ORDER BY code`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.OrderGiftCard
	for rows.Next() {
		var (
			g      domain.OrderGiftCard
			amount decimal.Decimal
		)
		if err := rows.Scan(&g.Code, &amount); err != nil {
			return nil, err
		}
		g.Amount = money.New(amount, cur)
		out = append(out, g)
	}
	return out, rows.Err()
}

// InsertOrder writes the order with its lines, discounts and gift cards.
// A second order for the same checkout token fails with domain.ErrOrderExists.
func (q *queries) InsertOrder(ctx context.Context, o *domain.Order) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	err := q.tx.QueryRow(ctx, `
		INSERT INTO orders(id, checkout_token, channel_id, status, currency, email, user_id,
			billing_address, shipping_address, shipping_method_id, shipping_method, voucher_code, customer_note,
			shipping_net, shipping_gross, shipping_tax_rate, subtotal_net, subtotal_gross, total_net, total_gross,
			undiscounted_net, undiscounted_gross, authorize_status, charge_status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26)
		RETURNING number`,
		o.ID, o.CheckoutToken, o.ChannelID, string(o.Status), o.Currency, o.Email, o.UserID,
		o.BillingAddress, o.ShippingAddress, o.ShippingMethodID, o.ShippingMethod, o.VoucherCode, o.CustomerNote,
		o.ShippingPrice.Net.Amount, o.ShippingPrice.Gross.Amount, o.ShippingTaxRate,
		o.Subtotal.Net.Amount, o.Subtotal.Gross.Amount, o.Total.Net.Amount, o.Total.Gross.Amount,
		o.UndiscountedTotal.Net.Amount, o.UndiscountedTotal.Gross.Amount,
		string(o.AuthorizeStatus), string(o.ChargeStatus), o.CreatedAt, o.UpdatedAt,
	).Scan(&o.Number)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrOrderExists
		}
		return fmt.Errorf("insert order: %w", err)
	}

	b := &pgx.Batch{}
	for i := range o.Lines {
		l := &o.Lines[i]
		if l.ID == uuid.Nil {
			l.ID = uuid.New()
		}
		l.OrderID = o.ID
		b.Queue(`
			INSERT INTO order_lines(id, order_id, position, variant_id, product_name, variant_name, sku, quantity,
				is_shipping_required, tax_class_name, unit_net, unit_gross, total_net, total_gross,
				undiscounted_unit_price, unit_discount, tax_rate)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`,
			l.ID, o.ID, i, l.VariantID, l.ProductName, l.VariantName, l.SKU, l.Quantity,
			l.IsShippingRequired, l.TaxClassName, l.UnitPrice.Net.Amount, l.UnitPrice.Gross.Amount,
			l.TotalPrice.Net.Amount, l.TotalPrice.Gross.Amount, l.UndiscountedUnitPrice.Amount,
			l.UnitDiscount.Amount, l.TaxRate)
	}
	for _, d := range o.Discounts {
		b.Queue(`INSERT INTO order_discounts(order_id, type, name, voucher_code, amount) VALUES ($1,$2,$3,$4,$5)`,
			o.ID, d.Type, d.Name, d.VoucherCode, d.Amount.Amount)
	}
	for _, g := range o.GiftCards {
		b.Queue(`INSERT INTO order_gift_cards(order_id, code, amount) VALUES ($1,$2,$3)`, o.ID, g.Code, g.Amount.Amount)
	}
	if b.Len() == 0 {
		return nil
	}
	if err := q.tx.SendBatch(ctx, b).Close(); err != nil {
		return fmt.Errorf("insert order rows: %w", err)
	}
	return nil
}
