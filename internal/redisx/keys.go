package redisx

import "time"

const (
	// Idempotency checkout: idem:checkout:{buyer_id}:{key} -> order_id | "pending"
	KeyIdemCheckout = "idem:checkout:%s:%s"

	// Cache order: order:{order_id} -> hash {rank, body: JSON order graph}
	KeyOrder = "order:%s"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLPending     = 30 * time.Second
	TTLOrderCache  = 5 * time.Minute
)
