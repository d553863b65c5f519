// Package memstore is an in-memory implementation of store.TxRunner.
//
// Every transaction holds a single store-wide mutex and works on a copy of the
// state, which is swapped in on commit. That serialises all transactions, a
// stronger guarantee than the row locks the Postgres store takes, so the
// completion flow behaves the same under concurrency.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ariefcatur/go-checkout-orders/internal/domain"
	"github.com/ariefcatur/go-checkout-orders/internal/store"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type state struct {
	checkouts        map[uuid.UUID]domain.Checkout
	lines            map[uuid.UUID][]domain.CheckoutLine
	channels         map[string]domain.Channel
	shipping         map[string]domain.ShippingMethod
	vouchers         map[string]domain.Voucher
	codes            map[string]domain.VoucherCode
	voucherCustomers map[string]struct{}
	transactions     map[uuid.UUID]domain.TransactionItem
	payments         map[uuid.UUID]domain.Payment
	orders           map[uuid.UUID]domain.Order
	ordersByToken    map[uuid.UUID]uuid.UUID
	orderSeq         int64
	stocks           map[uuid.UUID]domain.Stock
	reservations     map[uuid.UUID]domain.Reservation
	allocations      map[uuid.UUID]domain.Allocation
	giftCards        map[string]domain.GiftCard
}

func newState() *state {
	return &state{
		checkouts:        map[uuid.UUID]domain.Checkout{},
		lines:            map[uuid.UUID][]domain.CheckoutLine{},
		channels:         map[string]domain.Channel{},
		shipping:         map[string]domain.ShippingMethod{},
		vouchers:         map[string]domain.Voucher{},
		codes:            map[string]domain.VoucherCode{},
		voucherCustomers: map[string]struct{}{},
		transactions:     map[uuid.UUID]domain.TransactionItem{},
		payments:         map[uuid.UUID]domain.Payment{},
		orders:           map[uuid.UUID]domain.Order{},
		ordersByToken:    map[uuid.UUID]uuid.UUID{},
		stocks:           map[uuid.UUID]domain.Stock{},
		reservations:     map[uuid.UUID]domain.Reservation{},
		allocations:      map[uuid.UUID]domain.Allocation{},
		giftCards:        map[string]domain.GiftCard{},
	}
}

// clone copies every map. Values are never mutated in place, so sharing the
// slices inside them between the copies is safe.
func (s *state) clone() *state {
	return &state{
		checkouts:        copyMap(s.checkouts),
		lines:            copyMap(s.lines),
		channels:         copyMap(s.channels),
		shipping:         copyMap(s.shipping),
		vouchers:         copyMap(s.vouchers),
		codes:            copyMap(s.codes),
		voucherCustomers: copyMap(s.voucherCustomers),
		transactions:     copyMap(s.transactions),
		payments:         copyMap(s.payments),
		orders:           copyMap(s.orders),
		ordersByToken:    copyMap(s.ordersByToken),
		orderSeq:         s.orderSeq,
		stocks:           copyMap(s.stocks),
		reservations:     copyMap(s.reservations),
		allocations:      copyMap(s.allocations),
		giftCards:        copyMap(s.giftCards),
	}
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

type MemoryStore struct {
	mu sync.Mutex
	st *state
}

func New() *MemoryStore {
	return &MemoryStore{st: newState()}
}

var _ store.TxRunner = (*MemoryStore)(nil)

func (s *MemoryStore) WithTx(ctx context.Context, fn func(ctx context.Context, q store.Queries) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var (
		q         *tx
		err       error
		committed bool
	)
	func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		q = &tx{st: s.st.clone()}
		if err = fn(ctx, q); err == nil {
			s.st = q.st
			committed = true
		}
	}()
	if !committed {
		q.Discard()
		return err
	}
	q.Run(ctx)
	return nil
}

// ---- seeding and inspection, outside any transaction ----

func (s *MemoryStore) PutChannel(c domain.Channel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.channels[c.ID] = c
}

func (s *MemoryStore) PutShippingMethod(m domain.ShippingMethod) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.shipping[m.ID] = m
}

func (s *MemoryStore) PutVoucher(v domain.Voucher, codes ...domain.VoucherCode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.vouchers[v.ID] = v
	for _, c := range codes {
		c.VoucherID = v.ID
		s.st.codes[c.Code] = c
	}
}

func (s *MemoryStore) PutCheckout(c domain.Checkout, lines []domain.CheckoutLine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.checkouts[c.Token] = cloneCheckout(c)
	ls := make([]domain.CheckoutLine, len(lines))
	for i, l := range lines {
		l.CheckoutToken = c.Token
		if l.ID == uuid.Nil {
			l.ID = uuid.New()
		}
		ls[i] = l
	}
	s.st.lines[c.Token] = ls
}

func (s *MemoryStore) PutStock(st domain.Stock) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st.ID == uuid.Nil {
		st.ID = uuid.New()
	}
	s.st.stocks[st.ID] = st
	return st.ID
}

func (s *MemoryStore) PutGiftCard(g domain.GiftCard) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.giftCards[g.Code] = g
}

func (s *MemoryStore) PutPayment(p domain.Payment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	s.st.payments[p.ID] = p
}

func (s *MemoryStore) PutTransactionItem(t domain.TransactionItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	s.st.transactions[t.ID] = t
}

func (s *MemoryStore) VoucherCode(code string) domain.VoucherCode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.codes[code]
}

func (s *MemoryStore) Stock(id uuid.UUID) domain.Stock {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.stocks[id]
}

func (s *MemoryStore) GiftCard(code string) domain.GiftCard {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.giftCards[code]
}

func (s *MemoryStore) Payment(id uuid.UUID) domain.Payment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.payments[id]
}

func (s *MemoryStore) Checkout(token uuid.UUID) (domain.Checkout, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.st.checkouts[token]
	return cloneCheckout(c), ok
}

func (s *MemoryStore) Orders() []domain.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Order, 0, len(s.st.orders))
	for _, o := range s.st.orders {
		out = append(out, cloneOrder(o))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}

func (s *MemoryStore) Reservations(token uuid.UUID) []domain.Reservation {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Reservation
	for _, r := range s.st.reservations {
		if r.CheckoutToken == token {
			out = append(out, r)
		}
	}
	return out
}

func (s *MemoryStore) Allocations() []domain.Allocation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Allocation, 0, len(s.st.allocations))
	for _, a := range s.st.allocations {
		out = append(out, a)
	}
	return out
}

func (s *MemoryStore) TransactionItems() []domain.TransactionItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.TransactionItem, 0, len(s.st.transactions))
	for _, t := range s.st.transactions {
		out = append(out, t)
	}
	return out
}

func cloneCheckout(c domain.Checkout) domain.Checkout {
	c.GiftCardCodes = append([]string(nil), c.GiftCardCodes...)
	if c.BillingAddress != nil {
		a := *c.BillingAddress
		c.BillingAddress = &a
	}
	if c.ShippingAddress != nil {
		a := *c.ShippingAddress
		c.ShippingAddress = &a
	}
	return c
}

func cloneOrder(o domain.Order) domain.Order {
	o.Lines = append([]domain.OrderLine(nil), o.Lines...)
	o.Discounts = append([]domain.OrderDiscount(nil), o.Discounts...)
	o.GiftCards = append([]domain.OrderGiftCard(nil), o.GiftCards...)
	return o
}

func customerKey(code, email string) string { return code + "\x00" + email }

func decimalMax(a, b decimal.Decimal) decimal.Decimal {
	if a.GreaterThan(b) {
		return a
	}
	return b
}

func timePtr(t time.Time) *time.Time { return &t }
