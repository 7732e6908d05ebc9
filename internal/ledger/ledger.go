// Package ledger owns the per-product stock counter. Stock is only ever
// decremented through a conditional update evaluated by the store.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/ariefcatur/go-realtime-checkout/internal/market"
	"github.com/ariefcatur/go-realtime-checkout/internal/storage"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Counter is the transactional half of the store the ledger drives.
type Counter interface {
	ReserveStock(ctx context.Context, productID string, qty int) (storage.Reservation, error)
	ReleaseStock(ctx context.Context, productID string, qty int) error
}

type ProductReader interface {
	Product(ctx context.Context, id string) (market.Product, error)
}

var ErrOutOfOrder = errors.New("reservations must be taken in ascending product order")

type Ledger struct {
	catalog ProductReader
	logger  *zap.Logger
	tracer  trace.Tracer
}

func New(catalog ProductReader, logger *zap.Logger) *Ledger {
	return &Ledger{catalog: catalog, logger: logger, tracer: otel.Tracer("ledger")}
}

// Available is the read-only stock figure shown to buyers.
func (l *Ledger) Available(ctx context.Context, productID string) (int, error) {
	p, err := l.catalog.Product(ctx, productID)
	if err != nil {
		return 0, err
	}
	return p.Stock, nil
}

// Begin opens a reservation session bound to one transaction.
func (l *Ledger) Begin(c Counter) *Session {
	return &Session{c: c, ledger: l}
}

// Session tracks the reservations taken within one checkout attempt so they
// can be released exactly once if the attempt aborts.
type Session struct {
	c        Counter
	ledger   *Ledger
	held     []storage.Reservation
	released bool
}

// TryReserve takes qty units of productID. Product ids must be strictly
// ascending within a session; that fixed lock order is what keeps two
// multi-product checkouts from deadlocking.
func (s *Session) TryReserve(ctx context.Context, productID string, qty int) (storage.Reservation, error) {
	if s.released {
		return storage.Reservation{}, errors.New("ledger session already released")
	}
	if qty < 1 {
		return storage.Reservation{}, market.ErrInvalidQuantity
	}
	if n := len(s.held); n > 0 && productID <= s.held[n-1].ProductID {
		return storage.Reservation{}, fmt.Errorf("%w: %s after %s", ErrOutOfOrder, productID, s.held[n-1].ProductID)
	}

	ctx, span := s.ledger.tracer.Start(ctx, "ledger.try_reserve")
	defer span.End()
	span.SetAttributes(attribute.String("product.id", productID), attribute.Int("reserve.qty", qty))

	r, err := s.c.ReserveStock(ctx, productID, qty)
	if err != nil {
		span.RecordError(err)
		return storage.Reservation{}, err
	}
	s.held = append(s.held, r)
	return r, nil
}

// ReleaseAll undoes every reservation of the session in reverse order. A
// second call is a no-op.
func (s *Session) ReleaseAll(ctx context.Context) error {
	if s.released {
		return nil
	}
	s.released = true
	var errs error
	for i := len(s.held) - 1; i >= 0; i-- {
		r := s.held[i]
		if err := s.c.ReleaseStock(ctx, r.ProductID, r.Quantity); err != nil {
			s.ledger.logger.Error("release reservation",
				zap.String("product_id", r.ProductID), zap.Int("qty", r.Quantity), zap.Error(err))
			errs = errors.Join(errs, err)
		}
	}
	s.held = nil
	return errs
}

func (s *Session) Held() []storage.Reservation {
	return append([]storage.Reservation(nil), s.held...)
}
