package checkout

import (
	"context"
	"errors"

	"github.com/ariefcatur/go-checkout-orders/internal/domain"
	"github.com/ariefcatur/go-checkout-orders/internal/store"
)

// validateCheckout rejects checkouts that cannot become an order. Nothing
// is locked or written.
func (c *Completer) validateCheckout(ctx context.Context, q store.Queries, co *domain.Checkout, lines []domain.CheckoutLine) error {
	if len(lines) == 0 {
		return domain.Invalid("no_lines", "lines", "cannot create order without product")
	}

	ch, err := q.GetChannel(ctx, co.ChannelID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Invalid("channel_inactive", "channel", "channel does not exist")
	}
	if err != nil {
		return err
	}
	if !ch.IsActive {
		return domain.Invalid("channel_inactive", "channel", "cannot complete checkout with inactive channel")
	}

	if co.Email == "" && co.UserID == "" {
		return domain.Invalid("email_not_set", "email", "email or user is required")
	}
	if co.BillingAddress == nil {
		return domain.Invalid("billing_address_not_set", "billing_address", "billing address is not set")
	}

	if domain.IsShippingRequired(lines) {
		if err := c.validateShipping(ctx, q, co); err != nil {
			return err
		}
	}

	if co.VoucherCode != "" {
		v, code, err := q.GetVoucherByCode(ctx, co.VoucherCode)
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Invalid("voucher_not_applicable", "voucher_code", "voucher code does not exist")
		}
		if err != nil {
			return err
		}
		if !code.IsActive || !v.ActiveAt(c.now(), co.ChannelID) {
			return domain.Invalid("voucher_not_applicable", "voucher_code", "voucher is not active")
		}
	}

	if len(co.GiftCardCodes) > 0 {
		cards, err := q.GetGiftCards(ctx, co.GiftCardCodes)
		if err != nil {
			return err
		}
		if len(cards) != len(co.GiftCardCodes) {
			return domain.Invalid("gift_card_not_applicable", "gift_cards", "gift card does not exist")
		}
		now := c.now()
		for _, g := range cards {
			if !g.UsableAt(now, co.Currency) {
				return domain.Invalid("gift_card_not_applicable", "gift_cards", "gift card "+g.Code+" cannot be used")
			}
		}
	}
	return nil
}

func (c *Completer) validateShipping(ctx context.Context, q store.Queries, co *domain.Checkout) error {
	if co.ShippingMethodID == "" {
		return domain.Invalid("shipping_method_not_set", "shipping_method", "shipping method is not set")
	}
	if co.ShippingAddress == nil {
		return domain.Invalid("shipping_address_not_set", "shipping_address", "shipping address is not set")
	}
	m, err := q.GetShippingMethod(ctx, co.ShippingMethodID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Invalid("shipping_method_not_applicable", "shipping_method", "shipping method does not exist")
	}
	if err != nil {
		return err
	}
	if !m.Active || m.ChannelID != co.ChannelID || !m.ShipsTo(co.ShippingAddress.Country) {
		return domain.Invalid("shipping_method_not_applicable", "shipping_method", "shipping method is not valid for the chosen shipping address")
	}
	return nil
}
