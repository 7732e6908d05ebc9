package market

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusShipped   Status = "SHIPPED"
	StatusDelivered Status = "DELIVERED"
	StatusCancelled Status = "CANCELLED"
)

var validNext = map[Status]map[Status]bool{
	StatusPending:   {StatusConfirmed: true, StatusCancelled: true},
	StatusConfirmed: {StatusShipped: true, StatusCancelled: true},
	StatusShipped:   {StatusDelivered: true},
	StatusDelivered: {},
	StatusCancelled: {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

func (s Status) Valid() bool {
	_, ok := validNext[s]
	return ok
}

var rank = map[Status]int{
	StatusPending:   1,
	StatusConfirmed: 2,
	StatusShipped:   3,
	StatusDelivered: 4,
	StatusCancelled: 4,
}

// Rank strictly increases along every legal transition, so a higher rank is
// always the newer state of an order. Unknown statuses rank 0.
func (s Status) Rank() int { return rank[s] }
