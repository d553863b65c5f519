package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/ariefcatur/go-checkout-orders/internal/domain"
	"github.com/ariefcatur/go-checkout-orders/internal/store"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// tx works on a private copy of the state; locks are implicit because the
// store mutex is held for the whole transaction.
type tx struct {
	store.Hooks
	st *state
}

var _ store.Queries = (*tx)(nil)

// ---- checkout ----

func (t *tx) GetCheckout(_ context.Context, token uuid.UUID) (*domain.Checkout, error) {
	c, ok := t.st.checkouts[token]
	if !ok {
		return nil, domain.ErrCheckoutNotFound
	}
	c = cloneCheckout(c)
	return &c, nil
}

func (t *tx) LockCheckout(ctx context.Context, token uuid.UUID) (*domain.Checkout, error) {
	return t.GetCheckout(ctx, token)
}

func (t *tx) ListCheckoutLines(_ context.Context, token uuid.UUID) ([]domain.CheckoutLine, error) {
	ls := t.st.lines[token]
	out := make([]domain.CheckoutLine, len(ls))
	copy(out, ls)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (t *tx) UpdateCheckoutPrices(_ context.Context, c *domain.Checkout) error {
	cur, ok := t.st.checkouts[c.Token]
	if !ok {
		return domain.ErrCheckoutNotFound
	}
	cur.Subtotal = c.Subtotal
	cur.ShippingPrice = c.ShippingPrice
	cur.Total = c.Total
	cur.Discount = c.Discount
	cur.TaxError = c.TaxError
	cur.PriceExpiration = c.PriceExpiration
	t.st.checkouts[c.Token] = cur
	return nil
}

func (t *tx) UpdateCheckoutLinePrices(_ context.Context, lines []domain.CheckoutLine) error {
	byID := make(map[uuid.UUID]domain.CheckoutLine, len(lines))
	for _, l := range lines {
		byID[l.ID] = l
	}
	touched := map[uuid.UUID]bool{}
	for _, l := range lines {
		touched[l.CheckoutToken] = true
	}
	for token := range touched {
		cur := t.st.lines[token]
		next := make([]domain.CheckoutLine, len(cur))
		for i, l := range cur {
			if u, ok := byID[l.ID]; ok {
				l.UndiscountedUnitPrice = u.UndiscountedUnitPrice
				l.UnitPrice = u.UnitPrice
				l.TotalPrice = u.TotalPrice
				l.VoucherDiscount = u.VoucherDiscount
				l.TaxRate = u.TaxRate
			}
			next[i] = l
		}
		t.st.lines[token] = next
	}
	return nil
}

func (t *tx) UpdateCheckoutPaymentStatus(_ context.Context, token uuid.UUID, a domain.AuthorizeStatus, c domain.ChargeStatus) error {
	cur, ok := t.st.checkouts[token]
	if !ok {
		return domain.ErrCheckoutNotFound
	}
	cur.AuthorizeStatus = a
	cur.ChargeStatus = c
	t.st.checkouts[token] = cur
	return nil
}

func (t *tx) SetVoucherUsageIncreased(_ context.Context, token uuid.UUID, increased bool) error {
	cur, ok := t.st.checkouts[token]
	if !ok {
		return domain.ErrCheckoutNotFound
	}
	cur.IsVoucherUsageIncreased = increased
	t.st.checkouts[token] = cur
	return nil
}

func (t *tx) SetCompletionLease(_ context.Context, token uuid.UUID, startedAt *time.Time, owner string, until *time.Time) error {
	cur, ok := t.st.checkouts[token]
	if !ok {
		return domain.ErrCheckoutNotFound
	}
	cur.CompletingStartedAt = copyTime(startedAt)
	cur.CompletingOwner = owner
	cur.CompletingUntil = copyTime(until)
	t.st.checkouts[token] = cur
	return nil
}

func (t *tx) ClearExpiredLeases(_ context.Context, now time.Time) (int, error) {
	n := 0
	for token, c := range t.st.checkouts {
		if c.CompletingUntil != nil && !c.CompletingUntil.After(now) {
			c.CompletingStartedAt = nil
			c.CompletingOwner = ""
			c.CompletingUntil = nil
			t.st.checkouts[token] = c
			n++
		}
	}
	return n, nil
}

func (t *tx) DeleteCheckout(_ context.Context, token uuid.UUID) error {
	if _, ok := t.st.checkouts[token]; !ok {
		return domain.ErrCheckoutNotFound
	}
	delete(t.st.checkouts, token)
	delete(t.st.lines, token)
	for id, r := range t.st.reservations {
		if r.CheckoutToken == token {
			delete(t.st.reservations, id)
		}
	}
	return nil
}

// ---- catalog ----

func (t *tx) GetChannel(_ context.Context, id string) (*domain.Channel, error) {
	c, ok := t.st.channels[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &c, nil
}

func (t *tx) GetShippingMethod(_ context.Context, id string) (*domain.ShippingMethod, error) {
	m, ok := t.st.shipping[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	m.Countries = append([]string(nil), m.Countries...)
	return &m, nil
}

// ---- vouchers ----

func (t *tx) GetVoucherByCode(_ context.Context, code string) (*domain.Voucher, *domain.VoucherCode, error) {
	vc, ok := t.st.codes[code]
	if !ok {
		return nil, nil, domain.ErrNotFound
	}
	v, ok := t.st.vouchers[vc.VoucherID]
	if !ok {
		return nil, nil, domain.ErrNotFound
	}
	v.ChannelIDs = append([]string(nil), v.ChannelIDs...)
	return &v, &vc, nil
}

func (t *tx) LockVoucherCode(_ context.Context, code string) (*domain.VoucherCode, error) {
	vc, ok := t.st.codes[code]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &vc, nil
}

func (t *tx) AddVoucherCodeUsage(_ context.Context, code string, delta int) error {
	vc, ok := t.st.codes[code]
	if !ok {
		return domain.ErrNotFound
	}
	vc.Used += delta
	if vc.Used < 0 {
		vc.Used = 0
	}
	t.st.codes[code] = vc
	return nil
}

func (t *tx) VoucherCustomerExists(_ context.Context, code, email string) (bool, error) {
	_, ok := t.st.voucherCustomers[customerKey(code, email)]
	return ok, nil
}

func (t *tx) AddVoucherCustomer(_ context.Context, code, email string) error {
	t.st.voucherCustomers[customerKey(code, email)] = struct{}{}
	return nil
}

func (t *tx) RemoveVoucherCustomer(_ context.Context, code, email string) error {
	delete(t.st.voucherCustomers, customerKey(code, email))
	return nil
}

// ---- ledger ----

func (t *tx) ListTransactionItems(_ context.Context, checkoutToken uuid.UUID) ([]domain.TransactionItem, error) {
	var out []domain.TransactionItem
	for _, it := range t.st.transactions {
		if it.CheckoutToken != nil && *it.CheckoutToken == checkoutToken {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (t *tx) InsertTransactionItem(_ context.Context, item *domain.TransactionItem) error {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	t.st.transactions[item.ID] = *item
	return nil
}

func (t *tx) ReassignTransactionItems(_ context.Context, checkoutToken, orderID uuid.UUID) (int, error) {
	n := 0
	for id, it := range t.st.transactions {
		if it.CheckoutToken != nil && *it.CheckoutToken == checkoutToken {
			oid := orderID
			it.CheckoutToken = nil
			it.OrderID = &oid
			t.st.transactions[id] = it
			n++
		}
	}
	return n, nil
}

func (t *tx) GetActivePayment(_ context.Context, checkoutToken uuid.UUID) (*domain.Payment, error) {
	var found *domain.Payment
	for _, p := range t.st.payments {
		if !p.IsActive || p.CheckoutToken == nil || *p.CheckoutToken != checkoutToken {
			continue
		}
		if found == nil || p.CreatedAt.After(found.CreatedAt) {
			p := p
			found = &p
		}
	}
	return found, nil
}

func (t *tx) UpdatePaymentCapture(_ context.Context, id uuid.UUID, captured decimal.Decimal, status domain.PaymentChargeStatus, pspRef string) error {
	p, ok := t.st.payments[id]
	if !ok {
		return domain.ErrNotFound
	}
	p.CapturedAmount = captured
	p.ChargeStatus = status
	if pspRef != "" {
		p.PSPReference = pspRef
	}
	t.st.payments[id] = p
	return nil
}

func (t *tx) ReassignPayments(_ context.Context, checkoutToken, orderID uuid.UUID) error {
	for id, p := range t.st.payments {
		if p.CheckoutToken != nil && *p.CheckoutToken == checkoutToken {
			oid := orderID
			p.OrderID = &oid
			t.st.payments[id] = p
		}
	}
	return nil
}

// ---- orders ----

func (t *tx) GetOrder(_ context.Context, id uuid.UUID) (*domain.Order, error) {
	o, ok := t.st.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	o = cloneOrder(o)
	return &o, nil
}

func (t *tx) GetOrderByCheckoutToken(ctx context.Context, token uuid.UUID) (*domain.Order, error) {
	id, ok := t.st.ordersByToken[token]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return t.GetOrder(ctx, id)
}

func (t *tx) InsertOrder(_ context.Context, o *domain.Order) error {
	if _, ok := t.st.ordersByToken[o.CheckoutToken]; ok {
		return domain.ErrOrderExists
	}
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	t.st.orderSeq++
	o.Number = t.st.orderSeq
	for i := range o.Lines {
		if o.Lines[i].ID == uuid.Nil {
			o.Lines[i].ID = uuid.New()
		}
		o.Lines[i].OrderID = o.ID
	}
	t.st.orders[o.ID] = cloneOrder(*o)
	t.st.ordersByToken[o.CheckoutToken] = o.ID
	return nil
}

// ---- stock ----

func (t *tx) LockStocks(_ context.Context, variantIDs []string) ([]domain.Stock, error) {
	want := make(map[string]bool, len(variantIDs))
	for _, v := range variantIDs {
		want[v] = true
	}
	var out []domain.Stock
	for _, s := range t.st.stocks {
		if want[s.VariantID] {
			s.Countries = append([]string(nil), s.Countries...)
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].VariantID != out[j].VariantID {
			return out[i].VariantID < out[j].VariantID
		}
		return out[i].WarehouseID < out[j].WarehouseID
	})
	return out, nil
}

func (t *tx) ListActiveReservations(_ context.Context, variantIDs []string, excludeToken uuid.UUID, now time.Time) ([]domain.Reservation, error) {
	want := make(map[string]bool, len(variantIDs))
	for _, v := range variantIDs {
		want[v] = true
	}
	var out []domain.Reservation
	for _, r := range t.st.reservations {
		if want[r.VariantID] && r.CheckoutToken != excludeToken && r.ExpiresAt.After(now) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (t *tx) ListCheckoutReservations(_ context.Context, token uuid.UUID) ([]domain.Reservation, error) {
	var out []domain.Reservation
	for _, r := range t.st.reservations {
		if r.CheckoutToken == token {
			out = append(out, r)
		}
	}
	return out, nil
}

func (t *tx) ReplaceCheckoutReservations(_ context.Context, token uuid.UUID, rs []domain.Reservation) error {
	for id, r := range t.st.reservations {
		if r.CheckoutToken == token {
			delete(t.st.reservations, id)
		}
	}
	for _, r := range rs {
		if r.ID == uuid.Nil {
			r.ID = uuid.New()
		}
		r.CheckoutToken = token
		t.st.reservations[r.ID] = r
	}
	return nil
}

func (t *tx) DeleteExpiredReservations(_ context.Context, now time.Time) (int, error) {
	n := 0
	for id, r := range t.st.reservations {
		if !r.ExpiresAt.After(now) {
			delete(t.st.reservations, id)
			n++
		}
	}
	return n, nil
}

func (t *tx) AddAllocated(_ context.Context, stockID uuid.UUID, delta int) error {
	s, ok := t.st.stocks[stockID]
	if !ok {
		return domain.ErrNotFound
	}
	s.QuantityAllocated += delta
	t.st.stocks[stockID] = s
	return nil
}

func (t *tx) InsertAllocations(_ context.Context, as []domain.Allocation) error {
	for _, a := range as {
		if a.ID == uuid.Nil {
			a.ID = uuid.New()
		}
		t.st.allocations[a.ID] = a
	}
	return nil
}

// ---- gift cards ----

func (t *tx) GetGiftCards(_ context.Context, codes []string) ([]domain.GiftCard, error) {
	out := make([]domain.GiftCard, 0, len(codes))
	for _, c := range codes {
		if g, ok := t.st.giftCards[c]; ok {
			out = append(out, g)
		}
	}
	return out, nil
}

func (t *tx) LockGiftCards(ctx context.Context, codes []string) ([]domain.GiftCard, error) {
	return t.GetGiftCards(ctx, codes)
}

func (t *tx) UpdateGiftCardBalance(_ context.Context, code string, balance decimal.Decimal, usedBy string, usedOn time.Time) error {
	g, ok := t.st.giftCards[code]
	if !ok {
		return domain.ErrNotFound
	}
	g.CurrentBalance = decimalMax(balance, decimal.Zero)
	g.UsedByEmail = usedBy
	g.LastUsedOn = timePtr(usedOn)
	t.st.giftCards[code] = g
	return nil
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	return timePtr(*t)
}
