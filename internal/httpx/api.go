package httpx

import (
	"context"

	"github.com/ariefcatur/go-realtime-checkout/internal/auth"
	"github.com/ariefcatur/go-realtime-checkout/internal/cart"
	"github.com/ariefcatur/go-realtime-checkout/internal/market"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type Checkouter interface {
	Checkout(ctx context.Context, buyerID string) (market.Order, error)
}

type CartService interface {
	AddLine(ctx context.Context, buyerID, productID string, qty int) (market.CartLine, error)
	RemoveLine(ctx context.Context, buyerID, lineID string) error
	Snapshot(ctx context.Context, buyerID string) (cart.View, error)
}

type OrderReader interface {
	Get(ctx context.Context, id string, requester auth.Principal) (market.Order, error)
	ListForBuyer(ctx context.Context, buyerID string) ([]market.Order, error)
	ListForSeller(ctx context.Context, sellerID string) ([]market.Order, error)
	SellerSummary(ctx context.Context, sellerID string) (market.SellerSummary, error)
}

type ProductLister interface {
	ListProducts(ctx context.Context) ([]market.Product, error)
}

// StockReader is the read-only stock figure for presentation.
type StockReader interface {
	Available(ctx context.Context, productID string) (int, error)
}

// Idempotency dedupes checkout submissions carrying an Idempotency-Key.
type Idempotency interface {
	Claim(ctx context.Context, buyerID, key string) (orderID string, err error)
	Complete(ctx context.Context, buyerID, key, orderID string) error
	Abandon(ctx context.Context, buyerID, key string) error
}

// API is the presentation adapter over the cart, checkout and order
// repository. Idem may be nil, in which case Idempotency-Key is ignored.
type API struct {
	Checkout Checkouter
	Cart     CartService
	Orders   OrderReader
	Products ProductLister
	Stock    StockReader
	Idem     Idempotency
	Verifier *auth.Verifier
	Logger   *zap.Logger
}

func (h *API) Register(r *chi.Mux) {
	r.Get("/products", h.listProducts)
	r.Get("/products/{id}/stock", h.productStock)

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(h.Verifier))

		r.Get("/cart", h.getCart)
		r.Post("/cart/add", h.addToCart)
		r.Delete("/cart/lines/{lineID}", h.removeCartLine)
		r.Post("/checkout", h.checkout)

		r.Get("/orders", h.listOrders)
		r.Get("/orders/{id}", h.getOrder)

		r.With(auth.RequireRole(auth.RoleSeller)).Get("/seller/orders", h.listSellerOrders)
		r.With(auth.RequireRole(auth.RoleSeller)).Get("/seller/summary", h.sellerSummary)
	})
}

// principal is only called behind auth.Middleware.
func principal(ctx context.Context) auth.Principal {
	p, _ := auth.FromContext(ctx)
	return p
}
