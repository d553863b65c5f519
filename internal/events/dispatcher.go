// Package events publishes order notifications after a completion commits.
//
// Handlers are looked up by Kind in a table filled at construction time;
// extra handlers can be registered before the dispatcher is shared.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/ariefcatur/go-checkout-orders/internal/domain"
	kafkax "github.com/ariefcatur/go-checkout-orders/internal/kafka"
	kafkago "github.com/segmentio/kafka-go"
)

type Kind string

const (
	KindOrderCreated      Kind = "order_created"
	KindOrderConfirmation Kind = "order_confirmation"
)

type Handler func(ctx context.Context, o *domain.Order) error

// Publisher is satisfied by kafka.Producer.
type Publisher interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

type Dispatcher struct {
	service  string
	handlers map[Kind][]Handler
	log      *slog.Logger
}

// NewDispatcher wires the Kafka publishers for both notification kinds.
// A nil publisher leaves its kind without a default handler.
func NewDispatcher(service string, created, confirmation Publisher, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	d := &Dispatcher{service: service, handlers: map[Kind][]Handler{}, log: log}
	if created != nil {
		d.Register(KindOrderCreated, d.publishOrderCreated(created))
	}
	if confirmation != nil {
		d.Register(KindOrderConfirmation, d.publishOrderConfirmation(confirmation))
	}
	return d
}

func (d *Dispatcher) Register(kind Kind, h Handler) {
	d.handlers[kind] = append(d.handlers[kind], h)
}

// Dispatch runs every handler for kind. All handlers run even if one fails.
func (d *Dispatcher) Dispatch(ctx context.Context, kind Kind, o *domain.Order) error {
	hs, ok := d.handlers[kind]
	if !ok {
		return fmt.Errorf("no handler for event kind %q", kind)
	}
	var errs []error
	for _, h := range hs {
		if err := h(ctx, o); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (d *Dispatcher) OrderCreated(ctx context.Context, o *domain.Order) {
	if err := d.Dispatch(ctx, KindOrderCreated, o); err != nil {
		d.log.ErrorContext(ctx, "order created notification failed", "order_id", o.ID, "err", err)
	}
}

func (d *Dispatcher) OrderConfirmation(ctx context.Context, o *domain.Order) {
	if err := d.Dispatch(ctx, KindOrderConfirmation, o); err != nil {
		d.log.ErrorContext(ctx, "order confirmation failed", "order_id", o.ID, "err", err)
	}
}

func (d *Dispatcher) publishOrderCreated(p Publisher) Handler {
	return func(ctx context.Context, o *domain.Order) error {
		lines := make([]OrderLinePayload, 0, len(o.Lines))
		for _, l := range o.Lines {
			lines = append(lines, OrderLinePayload{
				VariantID:  l.VariantID,
				SKU:        l.SKU,
				Quantity:   l.Quantity,
				UnitGross:  l.UnitPrice.Gross.Amount.StringFixed(2),
				TotalGross: l.TotalPrice.Gross.Amount.StringFixed(2),
			})
		}
		return d.publish(ctx, p, EventOrderCreated, o.ID.String(), OrderCreatedPayload{
			OrderID:       o.ID.String(),
			Number:        o.Number,
			CheckoutToken: o.CheckoutToken.String(),
			ChannelID:     o.ChannelID,
			Status:        string(o.Status),
			Email:         o.Email,
			Currency:      o.Currency,
			TotalNet:      o.Total.Net.Amount.StringFixed(2),
			TotalGross:    o.Total.Gross.Amount.StringFixed(2),
			Lines:         lines,
		})
	}
}

func (d *Dispatcher) publishOrderConfirmation(p Publisher) Handler {
	return func(ctx context.Context, o *domain.Order) error {
		if o.Email == "" {
			return nil
		}
		return d.publish(ctx, p, EventOrderConfirmation, o.ID.String(), OrderConfirmationPayload{
			OrderID:    o.ID.String(),
			Number:     o.Number,
			Email:      o.Email,
			TotalGross: o.Total.Gross.Amount.StringFixed(2),
			Currency:   o.Currency,
		})
	}
}

func (d *Dispatcher) publish(ctx context.Context, p Publisher, eventType, key string, payload any) error {
	env, err := NewEnvelope(ctx, eventType, d.service, key, payload)
	if err != nil {
		return fmt.Errorf("build %s envelope: %w", eventType, err)
	}
	b, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal %s envelope: %w", eventType, err)
	}
	p.Publish(PartitionKey(key), b,
		kafkax.Header("x-event-type", eventType),
		kafkax.Header("x-event-version", strconv.Itoa(env.EventVersion)),
	)
	return nil
}
