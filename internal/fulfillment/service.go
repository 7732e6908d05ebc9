// Package fulfillment applies order status updates published by the external
// fulfillment system.
package fulfillment

import (
	"context"
	"encoding/json"
	"errors"

	kafkax "github.com/ariefcatur/go-realtime-checkout/internal/kafka"
	"github.com/ariefcatur/go-realtime-checkout/internal/market"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type Advancer interface {
	AdvanceStatus(ctx context.Context, id string, to market.Status) (market.Order, error)
}

type Service struct {
	Orders Advancer
	Logger *zap.Logger
}

// HandleStatus is installed as the consumer handler. Messages that can never
// apply (bad JSON, unknown order, illegal transition) are logged and
// acknowledged; only transient failures are returned, and the consumer retries
// those before moving on.
func (s *Service) HandleStatus(ctx context.Context, m kafkago.Message) error {
	var env market.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		s.Logger.Warn("drop undecodable message", zap.Int64("offset", m.Offset), zap.Error(err))
		return nil
	}
	if env.EventType != market.EventFulfillmentStatus {
		return nil // ignore
	}
	p, err := kafkax.UnwrapPayload[market.FulfillmentStatusPayload](env.Payload)
	if err != nil {
		s.Logger.Warn("drop bad payload", zap.String("event_id", env.EventID), zap.Error(err))
		return nil
	}

	_, err = s.Orders.AdvanceStatus(ctx, p.OrderID, p.Status)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, market.ErrInvalidTransition), errors.Is(err, market.ErrNotFound):
		s.Logger.Warn("skip status update",
			zap.String("event_id", env.EventID),
			zap.String("order_id", p.OrderID),
			zap.String("status", string(p.Status)),
			zap.Error(err))
		return nil
	default:
		return err
	}
}
