package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ariefcatur/go-realtime-checkout/internal/market"
	"github.com/redis/go-redis/v9"
)

// storeOrder writes the entry unless the cached copy already holds a later
// status. A read-through fill racing a status change can then never put the
// older state back.
var storeOrder = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'rank')
if cur and tonumber(cur) > tonumber(ARGV[1]) then
	return 0
end
redis.call('HSET', KEYS[1], 'rank', ARGV[1], 'body', ARGV[2])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return 1
`)

// OrderCache stores whole order graphs; line items never change, so entries
// are versioned by the rank of their status.
type OrderCache struct {
	rdb *redis.Client
}

func NewOrderCache(rdb *redis.Client) *OrderCache {
	return &OrderCache{rdb: rdb}
}

func (c *OrderCache) Get(ctx context.Context, id string) (market.Order, bool, error) {
	b, err := c.rdb.HGet(ctx, fmt.Sprintf(KeyOrder, id), "body").Bytes()
	if errors.Is(err, redis.Nil) {
		return market.Order{}, false, nil
	}
	if err != nil {
		return market.Order{}, false, err
	}
	var o market.Order
	if err := json.Unmarshal(b, &o); err != nil {
		return market.Order{}, false, fmt.Errorf("decode cached order %s: %w", id, err)
	}
	return o, true, nil
}

// Set caches o unless a later status is already cached.
func (c *OrderCache) Set(ctx context.Context, o market.Order) error {
	b, err := json.Marshal(o)
	if err != nil {
		return err
	}
	return storeOrder.Run(ctx, c.rdb, []string{fmt.Sprintf(KeyOrder, o.ID)},
		o.Status.Rank(), b, TTLOrderCache.Milliseconds()).Err()
}

func (c *OrderCache) Invalidate(ctx context.Context, id string) error {
	return c.rdb.Del(ctx, fmt.Sprintf(KeyOrder, id)).Err()
}
