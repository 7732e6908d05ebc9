// Package checkout turns a buyer's cart into an order in one transaction:
// lock the cart, reserve stock in ascending product order, write the order
// graph with price snapshots, clear the cart and queue the OrderPlaced event.
// Either all of it commits or none of it does.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/ariefcatur/go-realtime-checkout/internal/cart"
	kafkax "github.com/ariefcatur/go-realtime-checkout/internal/kafka"
	"github.com/ariefcatur/go-realtime-checkout/internal/ledger"
	"github.com/ariefcatur/go-realtime-checkout/internal/market"
	"github.com/ariefcatur/go-realtime-checkout/internal/orders"
	"github.com/ariefcatur/go-realtime-checkout/internal/storage"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ErrCheckoutFailed wraps store failures that are neither transient nor a
// business refusal. The underlying driver error is not exposed.
var ErrCheckoutFailed = errors.New("checkout failed")

const DefaultTimeout = 5 * time.Second

type Store interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error
}

type Recorder interface {
	ObserveCheckout(outcome string, d time.Duration)
}

type Orchestrator struct {
	store   Store
	ledger  *ledger.Ledger
	logger  *zap.Logger
	tracer  trace.Tracer
	metrics Recorder
	timeout time.Duration
	service string
	now     func() time.Time
}

type Option func(*Orchestrator)

func WithTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.timeout = d
		}
	}
}

func WithMetrics(r Recorder) Option { return func(o *Orchestrator) { o.metrics = r } }

func WithServiceName(name string) Option { return func(o *Orchestrator) { o.service = name } }

func WithClock(now func() time.Time) Option { return func(o *Orchestrator) { o.now = now } }

func New(store Store, l *ledger.Ledger, logger *zap.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:   store,
		ledger:  l,
		logger:  logger,
		tracer:  otel.Tracer("checkout"),
		timeout: DefaultTimeout,
		service: "checkout-api",
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Checkout places an order from the buyer's cart. Errors are one of
// market.ErrCartEmpty, *market.InsufficientStockError,
// *market.ProductUnavailableError, market.ErrUnavailable (retryable),
// *market.InvariantViolationError or ErrCheckoutFailed.
func (o *Orchestrator) Checkout(ctx context.Context, buyerID string) (market.Order, error) {
	start := time.Now()
	ctx, span := o.tracer.Start(ctx, "checkout")
	defer span.End()
	span.SetAttributes(attribute.String("buyer.id", buyerID))

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	var placed market.Order
	err := o.store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		placed, err = o.place(ctx, tx, buyerID, span.SpanContext().TraceID().String())
		return err
	})
	err = o.classify(ctx, buyerID, err)

	outcome := outcomeOf(err)
	if o.metrics != nil {
		o.metrics.ObserveCheckout(outcome, time.Since(start))
	}
	span.SetAttributes(attribute.String("checkout.outcome", outcome))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		return market.Order{}, err
	}

	span.SetAttributes(attribute.String("order.id", placed.ID))
	o.logger.Info("order placed",
		zap.String("order_id", placed.ID),
		zap.String("buyer_id", buyerID),
		zap.Int("lines", len(placed.Lines)),
		zap.String("total", placed.Total.StringFixed(2)),
		zap.Duration("took", time.Since(start)),
	)
	return placed, nil
}

func (o *Orchestrator) place(ctx context.Context, tx storage.Tx, buyerID, traceID string) (market.Order, error) {
	items, err := tx.LockCartItems(ctx, buyerID)
	if err != nil {
		return market.Order{}, err
	}
	if len(items) == 0 {
		return market.Order{}, market.ErrCartEmpty
	}
	// The store already returns this order; sorting again keeps the lock
	// order independent of any backend.
	sort.SliceStable(items, func(i, j int) bool { return items[i].ProductID < items[j].ProductID })

	order := market.Order{
		ID:        uuid.NewString(),
		BuyerID:   buyerID,
		Status:    market.StatusConfirmed,
		Total:     decimal.Zero,
		CreatedAt: o.now().UTC(),
	}

	session := o.ledger.Begin(tx)
	for _, it := range items {
		res, err := session.TryReserve(ctx, it.ProductID, it.Quantity)
		if err != nil {
			if errors.Is(err, market.ErrInsufficientStock) || errors.Is(err, market.ErrProductUnavailable) {
				if rerr := session.ReleaseAll(ctx); rerr != nil {
					o.logger.Warn("release after refused reservation", zap.String("buyer_id", buyerID), zap.Error(rerr))
				}
			}
			return market.Order{}, err
		}
		line := market.OrderLine{
			ID:          uuid.NewString(),
			OrderID:     order.ID,
			ProductID:   res.ProductID,
			SellerID:    res.SellerID,
			ProductName: res.Name,
			Quantity:    res.Quantity,
			UnitPrice:   res.UnitPrice,
		}
		order.Lines = append(order.Lines, line)
		order.Total = order.Total.Add(line.LineTotal())
	}

	if err := orders.Save(ctx, tx, order); err != nil {
		return market.Order{}, err
	}
	cleared, err := cart.Clear(ctx, tx, buyerID)
	if err != nil {
		return market.Order{}, err
	}
	if err := verify(buyerID, len(items), session.Held(), order, cleared); err != nil {
		return market.Order{}, err
	}

	if err := tx.AppendOutbox(ctx, o.placedEvent(order, traceID)); err != nil {
		return market.Order{}, err
	}
	return order, nil
}

// verify checks that the graph about to commit is complete: one reservation
// and one order line per cart line, and the whole cart cleared.
func verify(buyerID string, cartLines int, held []storage.Reservation, order market.Order, cleared int) error {
	switch {
	case len(held) != cartLines:
		return &market.InvariantViolationError{BuyerID: buyerID,
			Detail: fmt.Sprintf("%d reservations for %d cart lines", len(held), cartLines)}
	case len(order.Lines) != len(held):
		return &market.InvariantViolationError{BuyerID: buyerID,
			Detail: fmt.Sprintf("%d order lines for %d reservations", len(order.Lines), len(held))}
	case cleared != cartLines:
		return &market.InvariantViolationError{BuyerID: buyerID,
			Detail: fmt.Sprintf("cleared %d of %d cart lines", cleared, cartLines)}
	}
	for i, r := range held {
		l := order.Lines[i]
		if l.ProductID != r.ProductID || l.Quantity != r.Quantity {
			return &market.InvariantViolationError{BuyerID: buyerID,
				Detail: fmt.Sprintf("line %d (%s x%d) does not match reservation (%s x%d)",
					i, l.ProductID, l.Quantity, r.ProductID, r.Quantity)}
		}
	}
	return nil
}

func (o *Orchestrator) placedEvent(order market.Order, traceID string) storage.OutboxRecord {
	lines := make([]market.PlacedLine, 0, len(order.Lines))
	for _, l := range order.Lines {
		lines = append(lines, market.PlacedLine{
			ProductID: l.ProductID,
			SellerID:  l.SellerID,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice.StringFixed(2),
		})
	}
	ev := market.Envelope{
		EventID:       uuid.NewString(),
		EventType:     market.EventOrderPlaced,
		EventVersion:  1,
		OccurredAt:    order.CreatedAt,
		Producer:      o.service,
		TraceID:       traceID,
		CorrelationID: order.ID,
		Payload: kafkax.MustMarshal(market.OrderPlacedPayload{
			OrderID: order.ID,
			BuyerID: order.BuyerID,
			Status:  order.Status,
			Total:   order.Total.StringFixed(2),
			Lines:   lines,
		}),
	}
	return storage.OutboxRecord{
		EventID: ev.EventID,
		Topic:   market.TopicOrderPlaced,
		Key:     order.ID,
		Payload: kafkax.MustMarshal(ev),
	}
}

// classify is the error boundary of the orchestrator: business refusals pass
// through, transient failures become market.ErrUnavailable and anything else
// is logged and reported as ErrCheckoutFailed.
func (o *Orchestrator) classify(ctx context.Context, buyerID string, err error) error {
	if err == nil {
		return nil
	}
	var inv *market.InvariantViolationError
	switch {
	case errors.Is(err, market.ErrCartEmpty),
		errors.Is(err, market.ErrInsufficientStock),
		errors.Is(err, market.ErrProductUnavailable),
		errors.Is(err, market.ErrUnavailable):
		return err
	case errors.As(err, &inv):
		o.logger.Error("checkout invariant violated; transaction rolled back",
			zap.String("buyer_id", buyerID), zap.String("detail", inv.Detail))
		return inv
	case ctx.Err() != nil:
		return fmt.Errorf("%w: %w", market.ErrUnavailable, ctx.Err())
	}
	o.logger.Error("checkout failed", zap.String("buyer_id", buyerID), zap.Error(err))
	return fmt.Errorf("%w: %v", ErrCheckoutFailed, err)
}

func outcomeOf(err error) string {
	var inv *market.InvariantViolationError
	switch {
	case err == nil:
		return "placed"
	case errors.Is(err, market.ErrCartEmpty):
		return "cart_empty"
	case errors.Is(err, market.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, market.ErrProductUnavailable):
		return "product_unavailable"
	case errors.Is(err, market.ErrUnavailable):
		return "unavailable"
	case errors.As(err, &inv):
		return "invariant_violation"
	default:
		return "failed"
	}
}
