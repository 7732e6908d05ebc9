// Package storage defines the persistence contracts shared by the stock
// ledger, the cart, the order repository and the outbox relay. The postgres
// and sqlite subpackages implement them.
package storage

import (
	"context"
	"time"

	"github.com/ariefcatur/go-realtime-checkout/internal/market"
	"github.com/shopspring/decimal"
)

// Store is a backing store. Every method outside InTx runs in its own
// implicit transaction.
type Store interface {
	// InTx runs fn inside one isolated transaction. The transaction is rolled
	// back on every exit path except fn returning nil and commit succeeding.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	Catalog
	Carts
	Orders
	Outbox

	Close() error
}

// Tx is the unit of work a checkout runs in.
type Tx interface {
	// LockCartItems returns the buyer's cart ordered by product id and keeps
	// the rows locked until the transaction ends.
	LockCartItems(ctx context.Context, buyerID string) ([]market.CartItem, error)
	// ReserveStock decrements stock by qty in one conditional update. It
	// returns *market.InsufficientStockError or *market.ProductUnavailableError
	// and leaves the row untouched when the decrement is refused.
	ReserveStock(ctx context.Context, productID string, qty int) (Reservation, error)
	ReleaseStock(ctx context.Context, productID string, qty int) error
	InsertOrder(ctx context.Context, o market.Order) error
	ClearCart(ctx context.Context, buyerID string) (int, error)
	AppendOutbox(ctx context.Context, rec OutboxRecord) error
}

// Reservation is the result of a granted decrement. Name, SellerID and
// UnitPrice are read under the same row lock.
type Reservation struct {
	ProductID string
	SellerID  string
	Name      string
	Quantity  int
	UnitPrice decimal.Decimal
}

// Catalog is read access to products plus the narrow authoring calls the
// catalog collaborator and seed tooling use.
type Catalog interface {
	Product(ctx context.Context, id string) (market.Product, error)
	ListProducts(ctx context.Context) ([]market.Product, error)
	PutProduct(ctx context.Context, p market.Product) error
	DeleteProduct(ctx context.Context, id string) error
}

type Carts interface {
	// AddCartLine inserts the line or increments the existing one for the
	// same (buyer, product) pair in a single statement.
	AddCartLine(ctx context.Context, buyerID, productID string, qty int) (market.CartLine, error)
	// DeleteCartLine returns market.ErrNotFound or market.ErrNotOwned.
	DeleteCartLine(ctx context.Context, buyerID, lineID string) error
	CartItems(ctx context.Context, buyerID string) ([]market.CartItem, error)
}

type Orders interface {
	Order(ctx context.Context, id string) (market.Order, error)
	OrdersByBuyer(ctx context.Context, buyerID string) ([]market.Order, error)
	// OrdersBySeller returns orders holding at least one line of the seller,
	// with Lines restricted to that seller.
	OrdersBySeller(ctx context.Context, sellerID string) ([]market.Order, error)
	SellerSummary(ctx context.Context, sellerID string) (market.SellerSummary, error)
	// UpdateOrderStatus is a compare-and-set from -> to.
	UpdateOrderStatus(ctx context.Context, id string, from, to market.Status) error
}

type Outbox interface {
	PendingOutbox(ctx context.Context, limit int) ([]OutboxRecord, error)
	MarkOutboxSent(ctx context.Context, id int64) error
}

type OutboxRecord struct {
	ID        int64
	EventID   string
	Topic     string
	Key       string
	Payload   []byte
	CreatedAt time.Time
	SentAt    *time.Time
}
