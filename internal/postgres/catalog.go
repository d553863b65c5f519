package postgres

import (
	"context"

	"github.com/ariefcatur/go-checkout-orders/internal/domain"
	"github.com/ariefcatur/go-checkout-orders/internal/money"
	"github.com/shopspring/decimal"
)

func (q *queries) GetChannel(ctx context.Context, id string) (*domain.Channel, error) {
	var c domain.Channel
	err := q.tx.QueryRow(ctx, `
		SELECT id, slug, currency, default_country, is_active, allow_unpaid_orders, auto_confirm_orders
		FROM channels WHERE id=$1`, id).
		Scan(&c.ID, &c.Slug, &c.Currency, &c.DefaultCountry, &c.IsActive, &c.AllowUnpaidOrders, &c.AutoConfirmOrders)
	if err != nil {
		return nil, noRows(err, domain.ErrNotFound)
	}
	return &c, nil
}

func (q *queries) GetShippingMethod(ctx context.Context, id string) (*domain.ShippingMethod, error) {
	var (
		m     domain.ShippingMethod
		price decimal.Decimal
		cur   string
	)
	err := q.tx.QueryRow(ctx, `
		SELECT id, name, channel_id, price, currency, active, countries
		FROM shipping_methods WHERE id=$1`, id).
		Scan(&m.ID, &m.Name, &m.ChannelID, &price, &cur, &m.Active, &m.Countries)
	if err != nil {
		return nil, noRows(err, domain.ErrNotFound)
	}
	m.Price = money.New(price, cur)
	return &m, nil
}

func (q *queries) GetVoucherByCode(ctx context.Context, code string) (*domain.Voucher, *domain.VoucherCode, error) {
	var (
		v  domain.Voucher
		vc domain.VoucherCode
	)
	err := q.tx.QueryRow(ctx, `
		SELECT v.id, v.name, v.type, v.value_type, v.value, v.usage_limit, v.apply_once_per_customer,
		       v.start_date, v.end_date, v.channel_ids, c.code, c.used, c.is_active
		FROM voucher_codes c JOIN vouchers v ON v.id = c.voucher_id
		WHERE c.code=$1`, code).
		Scan(&v.ID, &v.Name, &v.Type, &v.ValueType, &v.Value, &v.UsageLimit, &v.ApplyOncePerCustomer,
			&v.StartDate, &v.EndDate, &v.ChannelIDs, &vc.Code, &vc.Used, &vc.IsActive)
	if err != nil {
		return nil, nil, noRows(err, domain.ErrNotFound)
	}
	vc.VoucherID = v.ID
	return &v, &vc, nil
}

func (q *queries) LockVoucherCode(ctx context.Context, code string) (*domain.VoucherCode, error) {
	var vc domain.VoucherCode
	err := q.tx.QueryRow(ctx, `
		SELECT code, voucher_id, used, is_active FROM voucher_codes WHERE code=$1 FOR UPDATE`, code).
		Scan(&vc.Code, &vc.VoucherID, &vc.Used, &vc.IsActive)
	if err != nil {
		return nil, noRows(err, domain.ErrNotFound)
	}
	return &vc, nil
}

func (q *queries) AddVoucherCodeUsage(ctx context.Context, code string, delta int) error {
	ct, err := q.tx.Exec(ctx, `UPDATE voucher_codes SET used = GREATEST(used + $2, 0) WHERE code=$1`, code, delta)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (q *queries) VoucherCustomerExists(ctx context.Context, code, email string) (bool, error) {
	var ok bool
	err := q.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM voucher_customers WHERE code=$1 AND email=$2)`, code, email).Scan(&ok)
	return ok, err
}

func (q *queries) AddVoucherCustomer(ctx context.Context, code, email string) error {
	_, err := q.tx.Exec(ctx, `INSERT INTO voucher_customers(code, email) VALUES ($1,$2) ON CONFLICT DO NOTHING`, code, email)
	return err
}

func (q *queries) RemoveVoucherCustomer(ctx context.Context, code, email string) error {
	_, err := q.tx.Exec(ctx, `DELETE FROM voucher_customers WHERE code=$1 AND email=$2`, code, email)
	return err
}
