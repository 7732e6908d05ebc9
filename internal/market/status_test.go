package market

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		ok       bool
	}{
		{StatusPending, StatusConfirmed, true},
		{StatusPending, StatusCancelled, true},
		{StatusConfirmed, StatusShipped, true},
		{StatusConfirmed, StatusCancelled, true},
		{StatusShipped, StatusDelivered, true},
		{StatusPending, StatusShipped, false},
		{StatusConfirmed, StatusPending, false},
		{StatusShipped, StatusCancelled, false},
		{StatusDelivered, StatusCancelled, false},
		{StatusCancelled, StatusConfirmed, false},
		{Status("LOST"), StatusConfirmed, false},
	}
	for _, c := range cases {
		assert.Equal(t, c.ok, CanTransition(c.from, c.to), "%s -> %s", c.from, c.to)
	}
}

func TestStatusValid(t *testing.T) {
	assert.True(t, StatusDelivered.Valid())
	assert.False(t, Status("").Valid())
	assert.False(t, Status("confirmed").Valid())
}

func TestRankIncreasesAlongTransitions(t *testing.T) {
	for from, next := range validNext {
		for to := range next {
			assert.Greater(t, to.Rank(), from.Rank(), "%s -> %s", from, to)
		}
	}
	assert.Zero(t, Status("LOST").Rank())
}
