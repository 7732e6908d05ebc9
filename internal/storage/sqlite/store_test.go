package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/ariefcatur/go-realtime-checkout/internal/market"
	"github.com/ariefcatur/go-realtime-checkout/internal/storage"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTempStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "checkout.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func putProduct(t *testing.T, s *Store, id, seller, price string, stock int) {
	t.Helper()
	require.NoError(t, s.PutProduct(context.Background(), market.Product{
		ID: id, SellerID: seller, Name: "product " + id,
		Price: decimal.RequireFromString(price), Stock: stock, Active: true,
	}))
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open("  ")
	require.Error(t, err)
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkout.db")
	s, err := Open(path)
	require.NoError(t, err)
	putProduct(t, s, "p1", "s1", "1.00", 1)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	p, err := s.Product(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, 1, p.Stock)
}

func TestProductRoundTrip(t *testing.T) {
	s := openTempStore(t)
	ctx := context.Background()
	putProduct(t, s, "p1", "s1", "12.50", 7)

	p, err := s.Product(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "s1", p.SellerID)
	assert.True(t, p.Price.Equal(decimal.RequireFromString("12.5")))
	assert.Equal(t, 7, p.Stock)
	assert.True(t, p.Active)

	_, err = s.Product(ctx, "missing")
	assert.ErrorIs(t, err, market.ErrNotFound)

	require.NoError(t, s.DeleteProduct(ctx, "p1"))
	assert.ErrorIs(t, s.DeleteProduct(ctx, "p1"), market.ErrNotFound)
}

func TestListProductsSkipsInactive(t *testing.T) {
	s := openTempStore(t)
	ctx := context.Background()
	putProduct(t, s, "p1", "s1", "1.00", 1)
	require.NoError(t, s.PutProduct(ctx, market.Product{ID: "p2", SellerID: "s1", Name: "gone",
		Price: decimal.NewFromInt(1), Stock: 1, Active: false}))

	ps, err := s.ListProducts(ctx)
	require.NoError(t, err)
	require.Len(t, ps, 1)
	assert.Equal(t, "p1", ps[0].ID)
}

func TestAddCartLineIncrements(t *testing.T) {
	s := openTempStore(t)
	ctx := context.Background()
	putProduct(t, s, "p1", "s1", "3.00", 10)

	first, err := s.AddCartLine(ctx, "b1", "p1", 1)
	require.NoError(t, err)
	second, err := s.AddCartLine(ctx, "b1", "p1", 2)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 3, second.Quantity)

	items, err := s.CartItems(ctx, "b1")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 3, items[0].Quantity)
	assert.Equal(t, "9.00", items[0].LineTotal().StringFixed(2))
}

func TestAddCartLineUnknownProduct(t *testing.T) {
	s := openTempStore(t)
	_, err := s.AddCartLine(context.Background(), "b1", "nope", 1)
	assert.ErrorIs(t, err, market.ErrProductUnavailable)
}

func TestDeleteCartLine(t *testing.T) {
	s := openTempStore(t)
	ctx := context.Background()
	putProduct(t, s, "p1", "s1", "3.00", 10)
	line, err := s.AddCartLine(ctx, "b1", "p1", 1)
	require.NoError(t, err)

	assert.ErrorIs(t, s.DeleteCartLine(ctx, "b2", line.ID), market.ErrNotOwned)
	assert.ErrorIs(t, s.DeleteCartLine(ctx, "b1", uuid.NewString()), market.ErrNotFound)
	require.NoError(t, s.DeleteCartLine(ctx, "b1", line.ID))

	items, err := s.CartItems(ctx, "b1")
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestReserveStockIsConditional(t *testing.T) {
	s := openTempStore(t)
	ctx := context.Background()
	putProduct(t, s, "p1", "s1", "4.00", 5)
	require.NoError(t, s.PutProduct(ctx, market.Product{ID: "p2", SellerID: "s1", Name: "off",
		Price: decimal.NewFromInt(1), Stock: 5, Active: false}))

	err := s.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		r, err := tx.ReserveStock(ctx, "p1", 3)
		require.NoError(t, err)
		assert.Equal(t, "s1", r.SellerID)
		assert.True(t, r.UnitPrice.Equal(decimal.NewFromInt(4)))

		_, err = tx.ReserveStock(ctx, "p1", 3)
		var ise *market.InsufficientStockError
		require.True(t, errors.As(err, &ise))
		assert.Equal(t, "p1", ise.ProductID)

		_, err = tx.ReserveStock(ctx, "p2", 1)
		assert.ErrorIs(t, err, market.ErrProductUnavailable)
		_, err = tx.ReserveStock(ctx, "missing", 1)
		assert.ErrorIs(t, err, market.ErrProductUnavailable)
		return nil
	})
	require.NoError(t, err)

	p, err := s.Product(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 2, p.Stock)
}

func TestInTxRollsBack(t *testing.T) {
	s := openTempStore(t)
	ctx := context.Background()
	putProduct(t, s, "p1", "s1", "4.00", 5)
	boom := errors.New("boom")

	err := s.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		if _, err := tx.ReserveStock(ctx, "p1", 5); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	p, err := s.Product(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 5, p.Stock)
}

func TestInTxCancelledContextIsUnavailable(t *testing.T) {
	s := openTempStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.InTx(ctx, func(context.Context, storage.Tx) error { return nil })
	assert.ErrorIs(t, err, market.ErrUnavailable)
}

func placeOrder(t *testing.T, s *Store, buyer string, created time.Time, lines ...market.OrderLine) market.Order {
	t.Helper()
	o := market.Order{ID: uuid.NewString(), BuyerID: buyer, Status: market.StatusConfirmed,
		Total: decimal.Zero, CreatedAt: created}
	for _, l := range lines {
		l.ID = uuid.NewString()
		l.OrderID = o.ID
		o.Lines = append(o.Lines, l)
		o.Total = o.Total.Add(l.LineTotal())
	}
	require.NoError(t, s.InTx(context.Background(), func(ctx context.Context, tx storage.Tx) error {
		return tx.InsertOrder(ctx, o)
	}))
	return o
}

func TestOrdersReadBack(t *testing.T) {
	s := openTempStore(t)
	ctx := context.Background()
	putProduct(t, s, "p1", "s1", "10.00", 5)
	putProduct(t, s, "p2", "s2", "5.00", 5)
	now := time.Now().UTC().Truncate(time.Millisecond)

	older := placeOrder(t, s, "b1", now.Add(-time.Minute),
		market.OrderLine{ProductID: "p1", SellerID: "s1", ProductName: "P", Quantity: 2, UnitPrice: decimal.NewFromInt(10)})
	newer := placeOrder(t, s, "b1", now,
		market.OrderLine{ProductID: "p1", SellerID: "s1", ProductName: "P", Quantity: 1, UnitPrice: decimal.NewFromInt(10)},
		market.OrderLine{ProductID: "p2", SellerID: "s2", ProductName: "Q", Quantity: 3, UnitPrice: decimal.NewFromInt(5)})

	got, err := s.Order(ctx, newer.ID)
	require.NoError(t, err)
	assert.Equal(t, "25.00", got.Total.StringFixed(2))
	assert.True(t, now.Equal(got.CreatedAt))
	require.Len(t, got.Lines, 2)
	assert.Equal(t, "p1", got.Lines[0].ProductID)

	byBuyer, err := s.OrdersByBuyer(ctx, "b1")
	require.NoError(t, err)
	require.Len(t, byBuyer, 2)
	assert.Equal(t, newer.ID, byBuyer[0].ID)
	assert.Equal(t, older.ID, byBuyer[1].ID)

	bySeller, err := s.OrdersBySeller(ctx, "s2")
	require.NoError(t, err)
	require.Len(t, bySeller, 1)
	require.Len(t, bySeller[0].Lines, 1)
	assert.Equal(t, "s2", bySeller[0].Lines[0].SellerID)

	sum, err := s.SellerSummary(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 2, sum.TotalOrders)
	assert.Equal(t, "30.00", sum.TotalRevenue.StringFixed(2))

	_, err = s.Order(ctx, "missing")
	assert.ErrorIs(t, err, market.ErrNotFound)
}

func TestOrderLineSurvivesProductDeletion(t *testing.T) {
	s := openTempStore(t)
	ctx := context.Background()
	putProduct(t, s, "p1", "s1", "10.00", 5)
	o := placeOrder(t, s, "b1", time.Now(),
		market.OrderLine{ProductID: "p1", SellerID: "s1", ProductName: "Lamp", Quantity: 1, UnitPrice: decimal.NewFromInt(10)})

	require.NoError(t, s.DeleteProduct(ctx, "p1"))

	got, err := s.Order(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, got.Lines, 1)
	assert.Empty(t, got.Lines[0].ProductID)
	assert.Equal(t, "Lamp", got.Lines[0].ProductName)
	assert.Equal(t, "10.00", got.Lines[0].UnitPrice.StringFixed(2))
}

func TestInsertOrderWithoutProductStoresNull(t *testing.T) {
	s := openTempStore(t)
	ctx := context.Background()
	o := placeOrder(t, s, "b1", time.Now(),
		market.OrderLine{SellerID: "s1", ProductName: "Retired", Quantity: 2, UnitPrice: decimal.NewFromInt(4)})

	var isNull bool
	require.NoError(t, s.sqlDB.QueryRowContext(ctx,
		`SELECT product_id IS NULL FROM order_lines WHERE order_id = ?`, o.ID).Scan(&isNull))
	assert.True(t, isNull)

	got, err := s.Order(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, got.Lines, 1)
	assert.Empty(t, got.Lines[0].ProductID)
	assert.Equal(t, "8.00", got.Total.StringFixed(2))
}

func TestUpdateOrderStatusCompareAndSet(t *testing.T) {
	s := openTempStore(t)
	ctx := context.Background()
	putProduct(t, s, "p1", "s1", "10.00", 5)
	o := placeOrder(t, s, "b1", time.Now(),
		market.OrderLine{ProductID: "p1", SellerID: "s1", ProductName: "P", Quantity: 1, UnitPrice: decimal.NewFromInt(10)})

	require.NoError(t, s.UpdateOrderStatus(ctx, o.ID, market.StatusConfirmed, market.StatusShipped))
	assert.ErrorIs(t, s.UpdateOrderStatus(ctx, o.ID, market.StatusConfirmed, market.StatusCancelled), market.ErrInvalidTransition)
	assert.ErrorIs(t, s.UpdateOrderStatus(ctx, "missing", market.StatusConfirmed, market.StatusShipped), market.ErrNotFound)

	got, err := s.Order(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, market.StatusShipped, got.Status)
}

func TestOutbox(t *testing.T) {
	s := openTempStore(t)
	ctx := context.Background()
	require.NoError(t, s.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		for _, key := range []string{"o1", "o2"} {
			if err := tx.AppendOutbox(ctx, storage.OutboxRecord{
				EventID: uuid.NewString(), Topic: market.TopicOrderPlaced, Key: key, Payload: []byte(`{}`),
			}); err != nil {
				return err
			}
		}
		return nil
	}))

	recs, err := s.PendingOutbox(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "o1", recs[0].Key)
	assert.Less(t, recs[0].ID, recs[1].ID)
	assert.Nil(t, recs[0].SentAt)

	require.NoError(t, s.MarkOutboxSent(ctx, recs[0].ID))
	recs, err = s.PendingOutbox(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "o2", recs[0].Key)
}

func TestUpSection(t *testing.T) {
	in := "-- +migrate Up\nCREATE TABLE a (x INT);\n-- +migrate Down\nDROP TABLE a;\n"
	assert.Equal(t, "\nCREATE TABLE a (x INT);\n", upSection(in))
	assert.Equal(t, "SELECT 1;", upSection("SELECT 1;"))
}
