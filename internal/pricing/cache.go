package pricing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ariefcatur/go-checkout-orders/internal/domain"
	"github.com/ariefcatur/go-checkout-orders/internal/store"
	"github.com/google/uuid"
)

// EmptyTaxDataError is stored on the checkout when taxes could not be computed.
const EmptyTaxDataError = "Empty tax data."

type Config struct {
	// TTL is how long a computed snapshot stays valid.
	TTL                  time.Duration
	PricesEnteredWithTax bool
	ChargeTaxes          bool
}

// StatusRefresher recomputes the authorize/charge statuses of a checkout
// after its total changed. payments.Refresher satisfies it.
type StatusRefresher interface {
	Refresh(ctx context.Context, q store.Queries, c *domain.Checkout, hasLines bool) error
}

type Cache struct {
	calc      Calculator
	cfg       Config
	refresher StatusRefresher
	log       *slog.Logger
	now       func() time.Time
}

func NewCache(calc Calculator, cfg Config, refresher StatusRefresher, log *slog.Logger) *Cache {
	if log == nil {
		log = slog.Default()
	}
	return &Cache{calc: calc, cfg: cfg, refresher: refresher, log: log, now: time.Now}
}

// WithClock replaces the time source; tests use it to move past the TTL.
func (c *Cache) WithClock(now func() time.Time) *Cache {
	c.now = now
	return c
}

// EnsureFresh returns the checkout and lines with prices that are valid now.
// A snapshot that has not expired is returned untouched unless force is set.
// Otherwise prices are recomputed, persisted through q, and the payment
// statuses are refreshed when the total moved or force is set. The returned
// values are copies; co and lines are not modified.
func (c *Cache) EnsureFresh(ctx context.Context, q store.Queries, co *domain.Checkout, lines []domain.CheckoutLine, address *domain.Address, force bool) (*domain.Checkout, []domain.CheckoutLine, error) {
	now := c.now()
	if !force && co.PriceExpiration.After(now) {
		return co, lines, nil
	}

	in, err := c.input(ctx, q, co, lines)
	if err != nil {
		return nil, nil, err
	}
	prices, taxErr, err := c.compute(ctx, in, address)
	if err != nil {
		return nil, nil, fmt.Errorf("compute prices: %w", err)
	}
	if len(co.GiftCardCodes) > 0 {
		cards, err := q.GetGiftCards(ctx, co.GiftCardCodes)
		if err != nil {
			return nil, nil, fmt.Errorf("load gift cards: %w", err)
		}
		prices.Total = CoverWithGiftCards(prices.Total, cards, now, co.Currency)
	}

	out := *co
	outLines := make([]domain.CheckoutLine, len(lines))
	copy(outLines, lines)
	prices.apply(&out, outLines)
	out.TaxError = taxErr
	out.PriceExpiration = now.Add(c.cfg.TTL)
	out.LastChange = now

	if err := q.UpdateCheckoutPrices(ctx, &out); err != nil {
		return nil, nil, fmt.Errorf("persist checkout prices: %w", err)
	}
	if err := q.UpdateCheckoutLinePrices(ctx, outLines); err != nil {
		return nil, nil, fmt.Errorf("persist line prices: %w", err)
	}

	totalChanged := !co.Total.Equal(out.Total)
	c.log.DebugContext(ctx, "checkout prices recomputed",
		"token", co.Token, "total", out.Total.Gross.String(), "total_changed", totalChanged, "forced", force)

	if (totalChanged || force) && c.refresher != nil {
		if err := c.refresher.Refresh(ctx, q, &out, len(outLines) > 0); err != nil {
			return nil, nil, fmt.Errorf("refresh payment status: %w", err)
		}
	}
	return &out, outLines, nil
}

// Recalculate locks the checkout and runs EnsureFresh in its own transaction.
func (c *Cache) Recalculate(ctx context.Context, tx store.TxRunner, token uuid.UUID, force bool) (*domain.Checkout, error) {
	var res *domain.Checkout
	err := tx.WithTx(ctx, func(ctx context.Context, q store.Queries) error {
		co, err := q.LockCheckout(ctx, token)
		if err != nil {
			return err
		}
		lines, err := q.ListCheckoutLines(ctx, token)
		if err != nil {
			return err
		}
		res, _, err = c.EnsureFresh(ctx, q, co, lines, domain.TaxAddress(co, lines), force)
		return err
	})
	return res, err
}

func (c *Cache) input(ctx context.Context, q store.Queries, co *domain.Checkout, lines []domain.CheckoutLine) (Input, error) {
	in := Input{Checkout: co, Lines: lines, PricesEnteredWithTax: c.cfg.PricesEnteredWithTax}
	if co.ShippingMethodID != "" {
		m, err := q.GetShippingMethod(ctx, co.ShippingMethodID)
		switch {
		case err == nil:
			in.Shipping = m
		case !errors.Is(err, domain.ErrNotFound):
			return Input{}, err
		}
	}
	if co.VoucherCode != "" {
		v, _, err := q.GetVoucherByCode(ctx, co.VoucherCode)
		switch {
		case err == nil:
			if v.ActiveAt(c.now(), co.ChannelID) {
				in.Voucher = v
			}
		case !errors.Is(err, domain.ErrNotFound):
			return Input{}, err
		}
	}
	return in, nil
}

// compute applies the tax policy. The returned string is the checkout-level
// tax error, empty when taxes were computed or not requested.
func (c *Cache) compute(ctx context.Context, in Input, address *domain.Address) (Prices, string, error) {
	if !c.cfg.PricesEnteredWithTax && !c.cfg.ChargeTaxes {
		p, err := c.calc.ComputeNetPrices(ctx, in)
		return p, "", err
	}

	p, err := c.calc.ComputeCheckoutPrices(ctx, in, address)
	if errors.Is(err, domain.ErrTaxEmptyData) {
		c.log.WarnContext(ctx, "tax data unavailable, using net prices", "token", in.Checkout.Token)
		p, err = c.calc.ComputeNetPrices(ctx, in)
		return p, EmptyTaxDataError, err
	}
	if err != nil {
		return Prices{}, "", err
	}
	if !c.cfg.ChargeTaxes {
		p = p.StripTaxes()
	}
	return p, "", nil
}
