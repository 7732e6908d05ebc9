package market

import (
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypedErrorsMatchSentinels(t *testing.T) {
	var err error = fmt.Errorf("reserve: %w", &InsufficientStockError{ProductID: "p-1", Requested: 3})
	assert.ErrorIs(t, err, ErrInsufficientStock)
	assert.NotErrorIs(t, err, ErrProductUnavailable)
	assert.Equal(t, "p-1", ProductIDOf(err))

	err = &ProductUnavailableError{ProductID: "p-2"}
	assert.ErrorIs(t, err, ErrProductUnavailable)
	assert.Equal(t, "p-2", ProductIDOf(err))

	assert.Empty(t, ProductIDOf(ErrCartEmpty))
}

func TestInvariantViolationError(t *testing.T) {
	err := fmt.Errorf("place: %w", &InvariantViolationError{BuyerID: "b-1", Detail: "cleared 1 of 2 cart lines"})
	var inv *InvariantViolationError
	require.True(t, errors.As(err, &inv))
	assert.Equal(t, "b-1", inv.BuyerID)
	assert.Contains(t, err.Error(), "cleared 1 of 2")
}

func TestLineTotals(t *testing.T) {
	l := OrderLine{Quantity: 3, UnitPrice: decimal.RequireFromString("19.99")}
	assert.Equal(t, "59.97", l.LineTotal().StringFixed(2))

	c := CartItem{Quantity: 2, UnitPrice: decimal.RequireFromString("0.10")}
	assert.Equal(t, "0.20", c.LineTotal().StringFixed(2))
}
