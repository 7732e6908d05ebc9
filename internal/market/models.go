package market

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is owned by the catalog. Stock is only ever changed through the
// ledger's conditional decrement.
type Product struct {
	ID        string
	SellerID  string
	Name      string
	Price     decimal.Decimal
	Stock     int
	Active    bool
	CreatedAt time.Time
}

type CartLine struct {
	ID        string
	BuyerID   string
	ProductID string
	Quantity  int
	CreatedAt time.Time
}

// CartItem is a cart line joined with the live catalog row.
type CartItem struct {
	LineID        string
	ProductID     string
	SellerID      string
	Name          string
	UnitPrice     decimal.Decimal // live, not frozen until checkout
	Quantity      int
	ProductActive bool
	CreatedAt     time.Time
}

func (c CartItem) LineTotal() decimal.Decimal {
	return c.UnitPrice.Mul(decimal.NewFromInt(int64(c.Quantity)))
}

type Order struct {
	ID        string
	BuyerID   string
	Status    Status // lihat status.go
	Total     decimal.Decimal
	CreatedAt time.Time
	Lines     []OrderLine
}

// OrderLine is immutable once written. ProductID is empty when the product
// has since been removed from the catalog; the name, seller and price are
// snapshots taken under the reservation lock.
type OrderLine struct {
	ID          string
	OrderID     string
	ProductID   string
	SellerID    string
	ProductName string
	Quantity    int
	UnitPrice   decimal.Decimal
}

func (l OrderLine) LineTotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// SellerSummary aggregates the order lines of one seller's products.
type SellerSummary struct {
	SellerID     string
	TotalRevenue decimal.Decimal
	TotalOrders  int
}
