package redisx

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const pendingMarker = "pending"

var ErrInFlight = errors.New("request with this idempotency key is still in flight")

// Idempotency dedupes checkout submissions per (buyer, key). The database
// stays the source of truth; this only short-circuits replays.
type Idempotency struct {
	rdb *redis.Client
}

func NewIdempotency(rdb *redis.Client) *Idempotency {
	return &Idempotency{rdb: rdb}
}

// Claim reserves the key. When a previous request already completed it
// returns that order id; when one is still running it returns ErrInFlight.
func (i *Idempotency) Claim(ctx context.Context, buyerID, key string) (orderID string, err error) {
	k := fmt.Sprintf(KeyIdemCheckout, buyerID, key)
	ok, err := i.rdb.SetNX(ctx, k, pendingMarker, TTLPending).Result()
	if err != nil {
		return "", err
	}
	if ok {
		return "", nil
	}
	v, err := i.rdb.Get(ctx, k).Result()
	if errors.Is(err, redis.Nil) {
		// expired between SETNX and GET; claim again
		return i.Claim(ctx, buyerID, key)
	}
	if err != nil {
		return "", err
	}
	if v == pendingMarker {
		return "", ErrInFlight
	}
	return v, nil
}

func (i *Idempotency) Complete(ctx context.Context, buyerID, key, orderID string) error {
	return i.rdb.Set(ctx, fmt.Sprintf(KeyIdemCheckout, buyerID, key), orderID, TTLIdempotency).Err()
}

// Abandon frees the key after a failed checkout so the buyer can retry.
func (i *Idempotency) Abandon(ctx context.Context, buyerID, key string) error {
	return i.rdb.Del(ctx, fmt.Sprintf(KeyIdemCheckout, buyerID, key)).Err()
}
