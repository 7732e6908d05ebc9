package market

import (
	"encoding/json"
	"time"
)

const (
	EventOrderPlaced       = "OrderPlaced"
	EventFulfillmentStatus = "FulfillmentStatus"
)

const (
	TopicOrderPlaced       = "order.placed"
	TopicFulfillmentStatus = "fulfillment.status"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order_id
	Payload       json.RawMessage `json:"payload"`
}

type PlacedLine struct {
	ProductID string `json:"product_id"`
	SellerID  string `json:"seller_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unit_price"`
}

type OrderPlacedPayload struct {
	OrderID string       `json:"order_id"`
	BuyerID string       `json:"buyer_id"`
	Status  Status       `json:"status"`
	Total   string       `json:"total"`
	Lines   []PlacedLine `json:"lines"`
}

// FulfillmentStatusPayload is published by the external fulfillment system.
type FulfillmentStatusPayload struct {
	OrderID string `json:"order_id"`
	Status  Status `json:"status"`
}

// PartitionKey keeps every event of one order on the same partition.
func PartitionKey(orderID string) []byte { return []byte(orderID) }
