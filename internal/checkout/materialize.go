package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-checkout-orders/internal/domain"
	"github.com/ariefcatur/go-checkout-orders/internal/money"
	"github.com/ariefcatur/go-checkout-orders/internal/store"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// materialize creates the order, allocates stock, moves the payment ledger
// to the order and deletes the checkout, all in one transaction. Events are
// emitted only after it committed.
func (c *Completer) materialize(ctx context.Context, a *attempt) (*domain.Order, bool, error) {
	var (
		order   *domain.Order
		existed bool
	)
	err := c.Tx.WithTx(ctx, func(ctx context.Context, q store.Queries) error {
		if o, err := q.GetOrderByCheckoutToken(ctx, a.token); err == nil {
			order, existed = o, true
			return nil
		} else if !errors.Is(err, domain.ErrOrderNotFound) {
			return err
		}

		co, lines, err := c.lockOwned(ctx, q, a)
		if err != nil {
			return err
		}
		co, lines, err = c.fresh(ctx, q, co, lines)
		if err != nil {
			return err
		}
		if !co.Total.Equal(a.checkout.Total) {
			return fmt.Errorf("total moved from %s to %s: %w", a.checkout.Total.Gross, co.Total.Gross, domain.ErrCheckoutChanged)
		}
		if len(lines) == 0 {
			return domain.Invalid("no_lines", "lines", "cannot create order without product")
		}

		ch, err := q.GetChannel(ctx, co.ChannelID)
		if err != nil {
			return err
		}
		if err := c.Vouchers.Validate(ctx, q, co); err != nil {
			return err
		}
		if err := c.Vouchers.IncreaseTx(ctx, q, co); err != nil {
			return err
		}

		var method *domain.ShippingMethod
		if co.ShippingMethodID != "" && domain.IsShippingRequired(lines) {
			if method, err = q.GetShippingMethod(ctx, co.ShippingMethodID); err != nil {
				return fmt.Errorf("shipping method %q: %w", co.ShippingMethodID, err)
			}
		}
		var voucher *domain.Voucher
		if co.VoucherCode != "" {
			if voucher, _, err = q.GetVoucherByCode(ctx, co.VoucherCode); err != nil {
				return err
			}
		}

		o := buildOrder(co, lines, ch, method, voucher, a.charged, c.now())
		if err := c.applyGiftCards(ctx, q, co, o); err != nil {
			return err
		}
		if err := q.InsertOrder(ctx, o); err != nil {
			return err
		}

		if _, err := c.Stock.Allocate(ctx, q, co.Token, o.Lines, taxCountry(co, lines)); err != nil {
			return err
		}

		if _, err := q.ReassignTransactionItems(ctx, co.Token, o.ID); err != nil {
			return err
		}
		if err := q.ReassignPayments(ctx, co.Token, o.ID); err != nil {
			return err
		}
		if err := q.DeleteCheckout(ctx, co.Token); err != nil {
			return err
		}

		if c.Notifier != nil {
			q.AfterCommit(func(ctx context.Context) {
				c.Notifier.OrderCreated(ctx, o)
				c.Notifier.OrderConfirmation(ctx, o)
			})
		}
		order = o
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return order, existed, nil
}

func buildOrder(co *domain.Checkout, lines []domain.CheckoutLine, ch *domain.Channel, method *domain.ShippingMethod, voucher *domain.Voucher, charged *domain.Payment, now time.Time) *domain.Order {
	status := domain.OrderUnconfirmed
	if ch.AutoConfirmOrders {
		status = domain.OrderUnfulfilled
	}

	o := &domain.Order{
		ID:              uuid.New(),
		CheckoutToken:   co.Token,
		ChannelID:       co.ChannelID,
		Status:          status,
		Currency:        co.Currency,
		Email:           co.Email,
		UserID:          co.UserID,
		BillingAddress:  co.BillingAddress,
		ShippingAddress: co.ShippingAddress,
		VoucherCode:     co.VoucherCode,
		CustomerNote:    co.CustomerNote,
		Subtotal:        co.Subtotal,
		ShippingPrice:   money.ZeroTaxed(co.Currency),
		AuthorizeStatus: co.AuthorizeStatus,
		ChargeStatus:    co.ChargeStatus,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if method != nil {
		o.ShippingMethodID = method.ID
		o.ShippingMethod = method.Name
		o.ShippingPrice = co.ShippingPrice
		o.ShippingTaxRate = rateOf(co.ShippingPrice)
	}
	// Total is what the customer owes before gift cards; GiftCards records
	// how much of it they covered.
	o.Total = o.Subtotal.Add(o.ShippingPrice)
	o.UndiscountedTotal = money.TaxedMoney{
		Net:   o.Total.Net.Add(co.Discount),
		Gross: o.Total.Gross.Add(co.Discount),
	}

	if charged != nil && money.New(charged.CapturedAmount, co.Currency).Cmp(co.Total.Gross) >= 0 {
		o.AuthorizeStatus = domain.AuthorizeFull
		o.ChargeStatus = domain.ChargeFull
	}

	o.Lines = make([]domain.OrderLine, 0, len(lines))
	for _, l := range lines {
		unitDiscount := money.Zero(co.Currency)
		if l.Quantity > 0 && l.VoucherDiscount.IsPositive() {
			unitDiscount = money.New(l.VoucherDiscount.Amount.DivRound(decimal.NewFromInt(int64(l.Quantity)), 2), co.Currency)
		}
		o.Lines = append(o.Lines, domain.OrderLine{
			VariantID:             l.VariantID,
			ProductName:           l.ProductName,
			VariantName:           l.VariantName,
			SKU:                   l.SKU,
			Quantity:              l.Quantity,
			IsShippingRequired:    l.IsShippingRequired,
			TaxClassName:          l.TaxClassName,
			UnitPrice:             l.UnitPrice,
			TotalPrice:            l.TotalPrice,
			UndiscountedUnitPrice: l.UndiscountedUnitPrice,
			UnitDiscount:          unitDiscount,
			TaxRate:               l.TaxRate,
		})
	}

	if voucher != nil && co.Discount.IsPositive() {
		o.Discounts = append(o.Discounts, domain.OrderDiscount{
			Type:        "VOUCHER",
			Name:        voucher.Name,
			VoucherCode: co.VoucherCode,
			Amount:      co.Discount,
		})
	}
	return o
}

func rateOf(p money.TaxedMoney) decimal.Decimal {
	if !p.Net.IsPositive() {
		return decimal.Zero
	}
	return p.Gross.Amount.Div(p.Net.Amount).Sub(decimal.NewFromInt(1)).Round(4)
}

// applyGiftCards draws the amount pricing assumed covered from the locked
// cards. A card that expired or lost balance since the price snapshot fails
// the order.
func (c *Completer) applyGiftCards(ctx context.Context, q store.Queries, co *domain.Checkout, o *domain.Order) error {
	if len(co.GiftCardCodes) == 0 {
		return nil
	}
	cards, err := q.LockGiftCards(ctx, co.GiftCardCodes)
	if err != nil {
		return err
	}
	if len(cards) != len(co.GiftCardCodes) {
		return fmt.Errorf("gift card removed: %w", domain.ErrGiftCardNotApplicable)
	}

	now := c.now()
	remaining := o.Total.Gross.Sub(co.Total.Gross)
	for _, g := range cards {
		if !g.UsableAt(now, co.Currency) {
			return fmt.Errorf("gift card %s: %w", g.Code, domain.ErrGiftCardNotApplicable)
		}
		if !remaining.IsPositive() {
			continue
		}
		balance := money.New(g.CurrentBalance, g.Currency)
		use := balance.Min(remaining)
		if !use.IsPositive() {
			continue
		}
		if err := q.UpdateGiftCardBalance(ctx, g.Code, balance.Sub(use).Amount, co.Email, now); err != nil {
			return err
		}
		o.GiftCards = append(o.GiftCards, domain.OrderGiftCard{Code: g.Code, Amount: use})
		remaining = remaining.Sub(use)
	}
	if remaining.IsPositive() {
		return fmt.Errorf("gift cards short by %s: %w", remaining, domain.ErrGiftCardNotApplicable)
	}
	return nil
}
