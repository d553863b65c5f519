package httpx

import (
	"time"

	"github.com/ariefcatur/go-checkout-orders/internal/domain"
	"github.com/ariefcatur/go-checkout-orders/internal/money"
)

type moneyView struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

type taxedView struct {
	Net   moneyView `json:"net"`
	Gross moneyView `json:"gross"`
}

func mv(m money.Money) moneyView {
	q := m.Quantize()
	return moneyView{Amount: q.Amount.StringFixed(2), Currency: q.Currency}
}

func tv(t money.TaxedMoney) taxedView { return taxedView{Net: mv(t.Net), Gross: mv(t.Gross)} }

type orderLineView struct {
	VariantID  string    `json:"variant_id"`
	SKU        string    `json:"sku"`
	Name       string    `json:"name"`
	Quantity   int       `json:"quantity"`
	UnitPrice  taxedView `json:"unit_price"`
	TotalPrice taxedView `json:"total_price"`
}

type orderView struct {
	ID              string          `json:"id"`
	Number          int64           `json:"number"`
	CheckoutToken   string          `json:"checkout_token"`
	Status          string          `json:"status"`
	ChannelID       string          `json:"channel_id"`
	Email           string          `json:"email,omitempty"`
	ShippingMethod  string          `json:"shipping_method,omitempty"`
	VoucherCode     string          `json:"voucher_code,omitempty"`
	Subtotal        taxedView       `json:"subtotal"`
	Shipping        taxedView       `json:"shipping"`
	Total           taxedView       `json:"total"`
	AuthorizeStatus string          `json:"authorize_status"`
	ChargeStatus    string          `json:"charge_status"`
	Lines           []orderLineView `json:"lines"`
	CreatedAt       time.Time       `json:"created_at"`
}

func newOrderView(o *domain.Order) orderView {
	v := orderView{
		ID:              o.ID.String(),
		Number:          o.Number,
		CheckoutToken:   o.CheckoutToken.String(),
		Status:          string(o.Status),
		ChannelID:       o.ChannelID,
		Email:           o.Email,
		ShippingMethod:  o.ShippingMethod,
		VoucherCode:     o.VoucherCode,
		Subtotal:        tv(o.Subtotal),
		Shipping:        tv(o.ShippingPrice),
		Total:           tv(o.Total),
		AuthorizeStatus: string(o.AuthorizeStatus),
		ChargeStatus:    string(o.ChargeStatus),
		Lines:           make([]orderLineView, 0, len(o.Lines)),
		CreatedAt:       o.CreatedAt,
	}
	for _, l := range o.Lines {
		v.Lines = append(v.Lines, orderLineView{
			VariantID:  l.VariantID,
			SKU:        l.SKU,
			Name:       l.ProductName,
			Quantity:   l.Quantity,
			UnitPrice:  tv(l.UnitPrice),
			TotalPrice: tv(l.TotalPrice),
		})
	}
	return v
}

type completeResp struct {
	Order    orderView `json:"order"`
	Existing bool      `json:"existing"`
}

type pricesView struct {
	Token           string    `json:"token"`
	Subtotal        taxedView `json:"subtotal"`
	Shipping        taxedView `json:"shipping"`
	Total           taxedView `json:"total"`
	Discount        moneyView `json:"discount"`
	TaxError        string    `json:"tax_error,omitempty"`
	PriceExpiration time.Time `json:"price_expiration"`
}

func newPricesView(c *domain.Checkout) pricesView {
	return pricesView{
		Token:           c.Token.String(),
		Subtotal:        tv(c.Subtotal),
		Shipping:        tv(c.ShippingPrice),
		Total:           tv(c.Total),
		Discount:        mv(c.Discount),
		TaxError:        c.TaxError,
		PriceExpiration: c.PriceExpiration,
	}
}

type paymentStatusView struct {
	Token           string `json:"token"`
	AuthorizeStatus string `json:"authorize_status"`
	ChargeStatus    string `json:"charge_status"`
}
