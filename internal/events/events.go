package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/trace"
)

const (
	EventOrderCreated      = "OrderCreated"
	EventOrderConfirmation = "OrderConfirmation"
	EventTransaction       = "TransactionReported"
)

const (
	TopicOrderCreated      = "checkout.order.created"
	TopicOrderConfirmation = "checkout.order.confirmation"
	TopicTransactionEvents = "payment.transaction.events"
)

// PartitionKey keeps every event of one order (or checkout) on one partition.
func PartitionKey(id string) []byte { return []byte(id) }

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// NewEnvelope wraps payload, taking the trace id from the span in ctx if any.
func NewEnvelope(ctx context.Context, eventType, producer, correlationID string, payload any) (Envelope, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	env := Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		CorrelationID: correlationID,
		Payload:       b,
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		env.TraceID = sc.TraceID().String()
	}
	return env, nil
}

// ---- payloads ----

type OrderLinePayload struct {
	VariantID  string `json:"variant_id"`
	SKU        string `json:"sku,omitempty"`
	Quantity   int    `json:"quantity"`
	UnitGross  string `json:"unit_gross"`
	TotalGross string `json:"total_gross"`
}

type OrderCreatedPayload struct {
	OrderID       string             `json:"order_id"`
	Number        int64              `json:"number"`
	CheckoutToken string             `json:"checkout_token"`
	ChannelID     string             `json:"channel_id"`
	Status        string             `json:"status"`
	Email         string             `json:"email"`
	Currency      string             `json:"currency"`
	TotalNet      string             `json:"total_net"`
	TotalGross    string             `json:"total_gross"`
	Lines         []OrderLinePayload `json:"lines"`
}

type OrderConfirmationPayload struct {
	OrderID    string `json:"order_id"`
	Number     int64  `json:"number"`
	Email      string `json:"email"`
	TotalGross string `json:"total_gross"`
	Currency   string `json:"currency"`
}

// TransactionEventPayload is a ledger entry reported by a payment app.
// Exactly one of CheckoutToken and OrderID is set.
type TransactionEventPayload struct {
	CheckoutToken    string          `json:"checkout_token,omitempty"`
	OrderID          string          `json:"order_id,omitempty"`
	PSPReference     string          `json:"psp_reference"`
	AppID            string          `json:"app_id"`
	Currency         string          `json:"currency"`
	Authorized       decimal.Decimal `json:"authorized"`
	AuthorizePending decimal.Decimal `json:"authorize_pending"`
	Charged          decimal.Decimal `json:"charged"`
	ChargePending    decimal.Decimal `json:"charge_pending"`
	Refunded         decimal.Decimal `json:"refunded"`
	Canceled         decimal.Decimal `json:"canceled"`
}
