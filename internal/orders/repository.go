// Package orders is the order repository: append-only creation inside the
// checkout transaction, authorized reads and the narrow status mutation used
// by fulfillment.
package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/ariefcatur/go-realtime-checkout/internal/auth"
	"github.com/ariefcatur/go-realtime-checkout/internal/market"
	"go.uber.org/zap"
)

type Store interface {
	Order(ctx context.Context, id string) (market.Order, error)
	OrdersByBuyer(ctx context.Context, buyerID string) ([]market.Order, error)
	OrdersBySeller(ctx context.Context, sellerID string) ([]market.Order, error)
	SellerSummary(ctx context.Context, sellerID string) (market.SellerSummary, error)
	UpdateOrderStatus(ctx context.Context, id string, from, to market.Status) error
}

// Inserter is the transactional write path; only the checkout holds one.
type Inserter interface {
	InsertOrder(ctx context.Context, o market.Order) error
}

// Cache is a read-through order cache. Misses return ok=false. Set must not
// replace an entry whose status is later than the one being written.
type Cache interface {
	Get(ctx context.Context, id string) (market.Order, bool, error)
	Set(ctx context.Context, o market.Order) error
	Invalidate(ctx context.Context, id string) error
}

type Repository struct {
	store  Store
	cache  Cache
	logger *zap.Logger
}

// NewRepository builds a repository; cache may be nil.
func NewRepository(store Store, cache Cache, logger *zap.Logger) *Repository {
	return &Repository{store: store, cache: cache, logger: logger}
}

// Save writes a complete order graph. It refuses graphs the checkout should
// never produce.
func Save(ctx context.Context, tx Inserter, o market.Order) error {
	if o.ID == "" || o.BuyerID == "" {
		return errors.New("order id and buyer are required")
	}
	if len(o.Lines) == 0 {
		return errors.New("order has no lines")
	}
	if !o.Status.Valid() {
		return fmt.Errorf("unknown order status %q", o.Status)
	}
	for _, l := range o.Lines {
		if l.Quantity < 1 {
			return fmt.Errorf("order line %s: %w", l.ProductID, market.ErrInvalidQuantity)
		}
	}
	return tx.InsertOrder(ctx, o)
}

// Get returns the order if requester placed it or is an admin.
func (r *Repository) Get(ctx context.Context, id string, requester auth.Principal) (market.Order, error) {
	o, err := r.load(ctx, id)
	if err != nil {
		return market.Order{}, err
	}
	if o.BuyerID != requester.UserID && !requester.IsAdmin() {
		return market.Order{}, market.ErrNotAuthorized
	}
	return o, nil
}

func (r *Repository) load(ctx context.Context, id string) (market.Order, error) {
	if r.cache != nil {
		o, ok, err := r.cache.Get(ctx, id)
		if err != nil {
			r.logger.Warn("order cache get", zap.String("order_id", id), zap.Error(err))
		} else if ok {
			return o, nil
		}
	}
	o, err := r.store.Order(ctx, id)
	if err != nil {
		return market.Order{}, err
	}
	if r.cache != nil {
		if err := r.cache.Set(ctx, o); err != nil {
			r.logger.Warn("order cache set", zap.String("order_id", id), zap.Error(err))
		}
	}
	return o, nil
}

func (r *Repository) ListForBuyer(ctx context.Context, buyerID string) ([]market.Order, error) {
	return r.store.OrdersByBuyer(ctx, buyerID)
}

func (r *Repository) ListForSeller(ctx context.Context, sellerID string) ([]market.Order, error) {
	return r.store.OrdersBySeller(ctx, sellerID)
}

func (r *Repository) SellerSummary(ctx context.Context, sellerID string) (market.SellerSummary, error) {
	return r.store.SellerSummary(ctx, sellerID)
}

// AdvanceStatus moves an order along the fulfillment state machine. The
// write is a compare-and-set, so a concurrent transition surfaces as
// market.ErrInvalidTransition rather than being overwritten.
func (r *Repository) AdvanceStatus(ctx context.Context, id string, to market.Status) (market.Order, error) {
	if !to.Valid() {
		return market.Order{}, fmt.Errorf("%w: unknown status %q", market.ErrInvalidTransition, to)
	}
	o, err := r.store.Order(ctx, id)
	if err != nil {
		return market.Order{}, err
	}
	if !market.CanTransition(o.Status, to) {
		return market.Order{}, fmt.Errorf("%w: %s -> %s", market.ErrInvalidTransition, o.Status, to)
	}
	if err := r.store.UpdateOrderStatus(ctx, id, o.Status, to); err != nil {
		return market.Order{}, err
	}
	from := o.Status
	o.Status = to
	if r.cache != nil {
		// overwrite rather than delete: a concurrent read-through fill holding
		// the old status is refused by the cache once the newer rank is in
		if err := r.cache.Set(ctx, o); err != nil {
			r.logger.Warn("order cache refresh", zap.String("order_id", id), zap.Error(err))
			if err := r.cache.Invalidate(ctx, id); err != nil {
				r.logger.Warn("order cache invalidate", zap.String("order_id", id), zap.Error(err))
			}
		}
	}
	r.logger.Info("order status advanced",
		zap.String("order_id", id), zap.String("from", string(from)), zap.String("to", string(to)))
	return o, nil
}
