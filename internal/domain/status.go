package domain

type AuthorizeStatus string

const (
	AuthorizeNone    AuthorizeStatus = "NONE"
	AuthorizePartial AuthorizeStatus = "PARTIAL"
	AuthorizeFull    AuthorizeStatus = "FULL"
)

type ChargeStatus string

const (
	ChargeNone        ChargeStatus = "NONE"
	ChargePartial     ChargeStatus = "PARTIAL"
	ChargeFull        ChargeStatus = "FULL"
	ChargeOvercharged ChargeStatus = "OVERCHARGED"
)

type OrderStatus string

const (
	OrderUnconfirmed OrderStatus = "UNCONFIRMED"
	OrderUnfulfilled OrderStatus = "UNFULFILLED"
)
