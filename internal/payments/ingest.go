package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ariefcatur/go-checkout-orders/internal/domain"
	"github.com/ariefcatur/go-checkout-orders/internal/events"
	kafkax "github.com/ariefcatur/go-checkout-orders/internal/kafka"
	"github.com/ariefcatur/go-checkout-orders/internal/redisx"
	"github.com/ariefcatur/go-checkout-orders/internal/store"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
)

// Ingestor appends transaction events reported by payment apps to the
// ledger and refreshes the owning checkout's statuses. It is installed as
// a Kafka consumer handler.
type Ingestor struct {
	Tx          store.TxRunner
	Redis       *redis.Client
	Refresher   *Refresher
	ServiceName string
	Log         *slog.Logger
}

// HandleTransactionEvent returns nil once the event is recorded, already
// seen, or unusable, so that the consumer commits its offset.
func (s *Ingestor) HandleTransactionEvent(ctx context.Context, m kafkago.Message) error {
	env, err := kafkax.Decode[events.Envelope](m.Value)
	if err != nil {
		s.log().WarnContext(ctx, "dropping undecodable transaction event", "offset", m.Offset, "err", err)
		return nil
	}
	if env.EventType != events.EventTransaction {
		return nil
	}

	dkey := fmt.Sprintf(redisx.KeyDedup, s.ServiceName, env.EventID)
	if s.Redis != nil {
		seen, err := redisx.Exists(ctx, s.Redis, dkey)
		if err != nil {
			s.log().WarnContext(ctx, "dedup lookup failed, processing event", "event_id", env.EventID, "err", err)
		}
		if seen {
			return nil
		}
	}

	p, err := kafkax.Decode[events.TransactionEventPayload](env.Payload)
	if err != nil {
		s.log().WarnContext(ctx, "dropping transaction event with bad payload", "event_id", env.EventID, "err", err)
		return nil
	}

	err = s.Record(ctx, p)
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr), errors.Is(err, domain.ErrOrderNotFound):
		s.log().WarnContext(ctx, "dropping transaction event", "event_id", env.EventID, "err", err)
		return nil
	case err != nil:
		return err
	}

	if s.Redis != nil {
		if err := s.Redis.Set(ctx, dkey, "1", redisx.TTLDedup).Err(); err != nil {
			s.log().WarnContext(ctx, "dedup mark failed", "event_id", env.EventID, "err", err)
		}
	}
	return nil
}

// Record stores one ledger entry. An entry for a checkout that was already
// completed is attached to the order created from it.
func (s *Ingestor) Record(ctx context.Context, p events.TransactionEventPayload) error {
	now := time.Now().UTC()
	item := domain.TransactionItem{
		ID:             uuid.New(),
		PSPReference:   p.PSPReference,
		AppID:          p.AppID,
		Currency:       p.Currency,
		Authorized:     p.Authorized,
		AuthorizePend:  p.AuthorizePending,
		Charged:        p.Charged,
		ChargePend:     p.ChargePending,
		Refunded:       p.Refunded,
		Canceled:       p.Canceled,
		CreatedAt:      now,
		LastModifiedAt: now,
	}

	return s.Tx.WithTx(ctx, func(ctx context.Context, q store.Queries) error {
		switch {
		case p.CheckoutToken != "":
			token, err := uuid.Parse(p.CheckoutToken)
			if err != nil {
				return domain.Invalid("invalid", "checkout_token", err.Error())
			}
			return s.recordForCheckout(ctx, q, token, item)
		case p.OrderID != "":
			id, err := uuid.Parse(p.OrderID)
			if err != nil {
				return domain.Invalid("invalid", "order_id", err.Error())
			}
			if _, err := q.GetOrder(ctx, id); err != nil {
				return err
			}
			item.OrderID = &id
			return q.InsertTransactionItem(ctx, &item)
		default:
			return domain.Invalid("required", "checkout_token", "transaction event has no owner")
		}
	})
}

func (s *Ingestor) recordForCheckout(ctx context.Context, q store.Queries, token uuid.UUID, item domain.TransactionItem) error {
	co, err := q.LockCheckout(ctx, token)
	if errors.Is(err, domain.ErrCheckoutNotFound) {
		o, err := q.GetOrderByCheckoutToken(ctx, token)
		if err != nil {
			return err
		}
		item.OrderID = &o.ID
		return q.InsertTransactionItem(ctx, &item)
	}
	if err != nil {
		return err
	}

	item.CheckoutToken = &token
	if err := q.InsertTransactionItem(ctx, &item); err != nil {
		return err
	}
	lines, err := q.ListCheckoutLines(ctx, token)
	if err != nil {
		return err
	}
	return s.Refresher.Refresh(ctx, q, co, len(lines) > 0)
}

func (s *Ingestor) log() *slog.Logger {
	if s.Log == nil {
		return slog.Default()
	}
	return s.Log
}
