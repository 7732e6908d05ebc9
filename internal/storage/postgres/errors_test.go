package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/ariefcatur/go-realtime-checkout/internal/market"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	assert.NoError(t, classify(nil))

	transient := []error{
		&pgconn.PgError{Code: "40001"},
		&pgconn.PgError{Code: "40P01"},
		&pgconn.PgError{Code: "55P03"},
		&pgconn.PgError{Code: "57014"},
		&pgconn.PgError{Code: "08006"},
		context.DeadlineExceeded,
		fmt.Errorf("query: %w", context.Canceled),
	}
	for _, err := range transient {
		got := classify(err)
		assert.ErrorIs(t, got, market.ErrUnavailable, "%v", err)
		assert.ErrorIs(t, got, err)
	}

	permanent := []error{
		&pgconn.PgError{Code: "23505"},
		errors.New("boom"),
	}
	for _, err := range permanent {
		assert.NotErrorIs(t, classify(err), market.ErrUnavailable, "%v", err)
	}

	already := fmt.Errorf("%w: lock", market.ErrUnavailable)
	assert.Equal(t, already, classify(already))
}

func TestIsForeignKeyViolation(t *testing.T) {
	assert.True(t, isForeignKeyViolation(fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23503"})))
	assert.False(t, isForeignKeyViolation(&pgconn.PgError{Code: "23505"}))
	assert.False(t, isForeignKeyViolation(nil))
}
