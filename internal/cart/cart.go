// Package cart keeps a buyer's pending selections. Nothing here touches
// stock: a cart line is a wish, not a reservation.
package cart

import (
	"context"
	"errors"

	"github.com/ariefcatur/go-realtime-checkout/internal/market"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Store interface {
	Product(ctx context.Context, id string) (market.Product, error)
	AddCartLine(ctx context.Context, buyerID, productID string, qty int) (market.CartLine, error)
	DeleteCartLine(ctx context.Context, buyerID, lineID string) error
	CartItems(ctx context.Context, buyerID string) ([]market.CartItem, error)
}

// Clearer empties a cart inside the checkout transaction.
type Clearer interface {
	ClearCart(ctx context.Context, buyerID string) (int, error)
}

type View struct {
	Items []market.CartItem
	Total decimal.Decimal
}

type Service struct {
	store  Store
	logger *zap.Logger
}

func NewService(store Store, logger *zap.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// AddLine adds qty of a product, incrementing the buyer's existing line for
// that product if there is one.
func (s *Service) AddLine(ctx context.Context, buyerID, productID string, qty int) (market.CartLine, error) {
	if qty < 1 || qty > market.MaxLineQuantity {
		return market.CartLine{}, market.ErrInvalidQuantity
	}
	p, err := s.store.Product(ctx, productID)
	if errors.Is(err, market.ErrNotFound) {
		return market.CartLine{}, &market.ProductUnavailableError{ProductID: productID}
	}
	if err != nil {
		return market.CartLine{}, err
	}
	if !p.Active {
		return market.CartLine{}, &market.ProductUnavailableError{ProductID: productID}
	}

	line, err := s.store.AddCartLine(ctx, buyerID, productID, qty)
	if err != nil {
		return market.CartLine{}, err
	}
	s.logger.Debug("cart line added",
		zap.String("buyer_id", buyerID), zap.String("product_id", productID), zap.Int("quantity", line.Quantity))
	return line, nil
}

// RemoveLine fails with market.ErrNotFound or market.ErrNotOwned.
func (s *Service) RemoveLine(ctx context.Context, buyerID, lineID string) error {
	return s.store.DeleteCartLine(ctx, buyerID, lineID)
}

// Snapshot prices the cart at current catalog prices.
func (s *Service) Snapshot(ctx context.Context, buyerID string) (View, error) {
	items, err := s.store.CartItems(ctx, buyerID)
	if err != nil {
		return View{}, err
	}
	return View{Items: items, Total: Total(items)}, nil
}

// Clear empties the buyer's cart; only the checkout calls it, within its
// transaction.
func Clear(ctx context.Context, c Clearer, buyerID string) (int, error) {
	return c.ClearCart(ctx, buyerID)
}

func Total(items []market.CartItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.LineTotal())
	}
	return total
}
