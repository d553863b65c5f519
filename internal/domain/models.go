package domain

import (
	"time"

	"github.com/ariefcatur/go-checkout-orders/internal/money"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Address struct {
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Street     string `json:"street"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"` // ISO 3166-1 alpha-2
}

type Channel struct {
	ID                string
	Slug              string
	Currency          string
	DefaultCountry    string
	IsActive          bool
	AllowUnpaidOrders bool
	// AutoConfirmOrders puts new orders straight into UNFULFILLED.
	AutoConfirmOrders bool
}

type ShippingMethod struct {
	ID        string
	Name      string
	ChannelID string
	Price     money.Money
	Active    bool
	Countries []string // empty means every country
}

func (m *ShippingMethod) ShipsTo(country string) bool {
	if len(m.Countries) == 0 {
		return true
	}
	for _, c := range m.Countries {
		if c == country {
			return true
		}
	}
	return false
}

type Checkout struct {
	Token            uuid.UUID
	ChannelID        string
	Currency         string
	Email            string
	UserID           string
	BillingAddress   *Address
	ShippingAddress  *Address
	ShippingMethodID string
	VoucherCode      string
	GiftCardCodes    []string
	CustomerNote     string

	Subtotal      money.TaxedMoney
	ShippingPrice money.TaxedMoney
	Total         money.TaxedMoney
	Discount      money.Money
	TaxError      string

	PriceExpiration time.Time
	AuthorizeStatus AuthorizeStatus
	ChargeStatus    ChargeStatus

	IsVoucherUsageIncreased bool
	AutomaticallyRefundable bool

	// Completion lease. CompletingStartedAt doubles as the diagnostic marker.
	CompletingStartedAt *time.Time
	CompletingOwner     string
	CompletingUntil     *time.Time

	CreatedAt  time.Time
	LastChange time.Time
}

// LeaseHeldBy reports whether a live completion lease exists for someone other than owner.
func (c *Checkout) LeaseHeldBy(owner string, now time.Time) bool {
	if c.CompletingStartedAt == nil || c.CompletingUntil == nil {
		return false
	}
	return c.CompletingOwner != owner && c.CompletingUntil.After(now)
}

type CheckoutLine struct {
	ID                 uuid.UUID
	CheckoutToken      uuid.UUID
	VariantID          string
	ProductName        string
	VariantName        string
	SKU                string
	Quantity           int
	IsShippingRequired bool
	TaxClassName       string

	// BasePrice is the catalog unit price for the checkout's channel.
	BasePrice             money.Money
	UndiscountedUnitPrice money.Money
	UnitPrice             money.TaxedMoney
	TotalPrice            money.TaxedMoney
	VoucherDiscount       money.Money
	TaxRate               decimal.Decimal
	CreatedAt             time.Time
}

func IsShippingRequired(lines []CheckoutLine) bool {
	for _, l := range lines {
		if l.IsShippingRequired {
			return true
		}
	}
	return false
}

// TaxAddress is the address taxes are computed for.
func TaxAddress(c *Checkout, lines []CheckoutLine) *Address {
	if IsShippingRequired(lines) && c.ShippingAddress != nil {
		return c.ShippingAddress
	}
	return c.BillingAddress
}

// TransactionItem is a payment ledger entry owned by either a checkout or an order.
type TransactionItem struct {
	ID             uuid.UUID
	CheckoutToken  *uuid.UUID
	OrderID        *uuid.UUID
	PSPReference   string
	AppID          string
	Currency       string
	Authorized     decimal.Decimal
	AuthorizePend  decimal.Decimal
	Charged        decimal.Decimal
	ChargePend     decimal.Decimal
	Refunded       decimal.Decimal
	Canceled       decimal.Decimal
	CreatedAt      time.Time
	LastModifiedAt time.Time
}

type PaymentChargeStatus string

const (
	PaymentNotCharged      PaymentChargeStatus = "NOT_CHARGED"
	PaymentPending         PaymentChargeStatus = "PENDING"
	PaymentPartiallyCharge PaymentChargeStatus = "PARTIALLY_CHARGED"
	PaymentFullyCharged    PaymentChargeStatus = "FULLY_CHARGED"
	PaymentFullyRefunded   PaymentChargeStatus = "FULLY_REFUNDED"
	PaymentRefused         PaymentChargeStatus = "REFUSED"
)

// Payment is the legacy single-gateway payment attached to a checkout.
type Payment struct {
	ID             uuid.UUID
	CheckoutToken  *uuid.UUID
	OrderID        *uuid.UUID
	Gateway        string
	Currency       string
	Total          decimal.Decimal
	CapturedAmount decimal.Decimal
	ChargeStatus   PaymentChargeStatus
	PSPReference   string
	IsActive       bool
	CreatedAt      time.Time
}

type VoucherType string

const (
	VoucherEntireOrder VoucherType = "ENTIRE_ORDER"
	VoucherShipping    VoucherType = "SHIPPING"
)

type DiscountValueType string

const (
	DiscountFixed      DiscountValueType = "FIXED"
	DiscountPercentage DiscountValueType = "PERCENTAGE"
)

type Voucher struct {
	ID                   string
	Name                 string
	Type                 VoucherType
	ValueType            DiscountValueType
	Value                decimal.Decimal
	UsageLimit           *int
	ApplyOncePerCustomer bool
	StartDate            time.Time
	EndDate              *time.Time
	ChannelIDs           []string
}

// ActiveAt reports whether the voucher can be used at t in the given channel.
func (v *Voucher) ActiveAt(t time.Time, channelID string) bool {
	if t.Before(v.StartDate) {
		return false
	}
	if v.EndDate != nil && !t.Before(*v.EndDate) {
		return false
	}
	if len(v.ChannelIDs) == 0 {
		return true
	}
	for _, id := range v.ChannelIDs {
		if id == channelID {
			return true
		}
	}
	return false
}

type VoucherCode struct {
	Code      string
	VoucherID string
	Used      int
	IsActive  bool
}

type GiftCard struct {
	Code           string
	Currency       string
	InitialBalance decimal.Decimal
	CurrentBalance decimal.Decimal
	IsActive       bool
	ExpiryDate     *time.Time
	UsedByEmail    string
	LastUsedOn     *time.Time
}

func (g *GiftCard) UsableAt(t time.Time, currency string) bool {
	if !g.IsActive || g.Currency != currency {
		return false
	}
	return g.ExpiryDate == nil || t.Before(*g.ExpiryDate)
}

type Stock struct {
	ID                uuid.UUID
	VariantID         string
	WarehouseID       string
	Quantity          int
	QuantityAllocated int
	Countries         []string // countries the warehouse ships to; empty means all
}

func (s *Stock) ShipsTo(country string) bool {
	if len(s.Countries) == 0 || country == "" {
		return true
	}
	for _, c := range s.Countries {
		if c == country {
			return true
		}
	}
	return false
}

type Reservation struct {
	ID             uuid.UUID
	CheckoutToken  uuid.UUID
	CheckoutLineID uuid.UUID
	StockID        uuid.UUID
	VariantID      string
	Quantity       int
	ExpiresAt      time.Time
}

type Allocation struct {
	ID          uuid.UUID
	OrderLineID uuid.UUID
	StockID     uuid.UUID
	Quantity    int
}

type Order struct {
	ID               uuid.UUID
	Number           int64
	CheckoutToken    uuid.UUID
	ChannelID        string
	Status           OrderStatus
	Currency         string
	Email            string
	UserID           string
	BillingAddress   *Address
	ShippingAddress  *Address
	ShippingMethodID string
	ShippingMethod   string
	VoucherCode      string
	CustomerNote     string

	ShippingPrice     money.TaxedMoney
	ShippingTaxRate   decimal.Decimal
	Subtotal          money.TaxedMoney
	Total             money.TaxedMoney
	UndiscountedTotal money.TaxedMoney

	AuthorizeStatus AuthorizeStatus
	ChargeStatus    ChargeStatus

	Lines     []OrderLine
	Discounts []OrderDiscount
	GiftCards []OrderGiftCard

	CreatedAt time.Time
	UpdatedAt time.Time
}

type OrderLine struct {
	ID                    uuid.UUID
	OrderID               uuid.UUID
	VariantID             string
	ProductName           string
	VariantName           string
	SKU                   string
	Quantity              int
	IsShippingRequired    bool
	TaxClassName          string
	UnitPrice             money.TaxedMoney
	TotalPrice            money.TaxedMoney
	UndiscountedUnitPrice money.Money
	UnitDiscount          money.Money
	TaxRate               decimal.Decimal
}

type OrderDiscount struct {
	Type        string // VOUCHER
	Name        string
	VoucherCode string
	Amount      money.Money
}

type OrderGiftCard struct {
	Code   string
	Amount money.Money
}
