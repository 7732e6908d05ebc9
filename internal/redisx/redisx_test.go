package redisx

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ariefcatur/go-realtime-checkout/internal/market"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := New(mr.Addr())
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb, mr
}

func TestIdempotencyLifecycle(t *testing.T) {
	rdb, mr := newClient(t)
	idem := NewIdempotency(rdb)
	ctx := context.Background()

	id, err := idem.Claim(ctx, "b1", "k1")
	require.NoError(t, err)
	assert.Empty(t, id)

	_, err = idem.Claim(ctx, "b1", "k1")
	assert.ErrorIs(t, err, ErrInFlight)

	// keys are scoped per buyer
	id, err = idem.Claim(ctx, "b2", "k1")
	require.NoError(t, err)
	assert.Empty(t, id)

	require.NoError(t, idem.Complete(ctx, "b1", "k1", "order-1"))
	id, err = idem.Claim(ctx, "b1", "k1")
	require.NoError(t, err)
	assert.Equal(t, "order-1", id)
	assert.InDelta(t, TTLIdempotency.Seconds(), mr.TTL("idem:checkout:b1:k1").Seconds(), 1)
}

func TestIdempotencyAbandonAndExpiry(t *testing.T) {
	rdb, mr := newClient(t)
	idem := NewIdempotency(rdb)
	ctx := context.Background()

	_, err := idem.Claim(ctx, "b1", "k1")
	require.NoError(t, err)
	require.NoError(t, idem.Abandon(ctx, "b1", "k1"))
	id, err := idem.Claim(ctx, "b1", "k1")
	require.NoError(t, err)
	assert.Empty(t, id)

	// a crashed request frees its key once the pending marker expires
	mr.FastForward(TTLPending + time.Second)
	id, err = idem.Claim(ctx, "b1", "k1")
	require.NoError(t, err)
	assert.Empty(t, id)
}

func TestOrderCache(t *testing.T) {
	rdb, _ := newClient(t)
	c := NewOrderCache(rdb)
	ctx := context.Background()

	_, ok, err := c.Get(ctx, "o1")
	require.NoError(t, err)
	assert.False(t, ok)

	o := market.Order{
		ID: "o1", BuyerID: "b1", Status: market.StatusConfirmed,
		Total:     decimal.RequireFromString("12.30"),
		CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Lines: []market.OrderLine{{ID: "l1", OrderID: "o1", ProductID: "p1", SellerID: "s1",
			ProductName: "Pen", Quantity: 3, UnitPrice: decimal.RequireFromString("4.10")}},
	}
	require.NoError(t, c.Set(ctx, o))

	got, ok, err := c.Get(ctx, "o1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "b1", got.BuyerID)
	assert.True(t, got.Total.Equal(o.Total))
	assert.True(t, got.CreatedAt.Equal(o.CreatedAt))
	require.Len(t, got.Lines, 1)
	assert.Equal(t, "Pen", got.Lines[0].ProductName)
	assert.True(t, got.Lines[0].UnitPrice.Equal(o.Lines[0].UnitPrice))

	require.NoError(t, c.Invalidate(ctx, "o1"))
	_, ok, err = c.Get(ctx, "o1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOrderCacheKeepsLaterStatus(t *testing.T) {
	rdb, mr := newClient(t)
	c := NewOrderCache(rdb)
	ctx := context.Background()
	confirmed := market.Order{ID: "o1", BuyerID: "b1", Status: market.StatusConfirmed, Total: decimal.NewFromInt(3)}
	shipped := confirmed
	shipped.Status = market.StatusShipped

	require.NoError(t, c.Set(ctx, confirmed))
	require.NoError(t, c.Set(ctx, shipped))
	require.NoError(t, c.Set(ctx, confirmed))

	got, ok, err := c.Get(ctx, "o1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, market.StatusShipped, got.Status)
	assert.Equal(t, TTLOrderCache, mr.TTL("order:o1"))
}

func TestOrderCacheCorruptEntry(t *testing.T) {
	rdb, mr := newClient(t)
	mr.HSet("order:o1", "rank", "2", "body", "not json")
	_, _, err := NewOrderCache(rdb).Get(context.Background(), "o1")
	assert.Error(t, err)
}
