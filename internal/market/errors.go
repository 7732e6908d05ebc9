package market

import (
	"errors"
	"fmt"
)

// MaxLineQuantity caps a single cart line, across repeated adds.
const MaxLineQuantity = 10000

var (
	ErrCartEmpty          = errors.New("cart is empty")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrProductUnavailable = errors.New("product unavailable")
	ErrNotFound           = errors.New("not found")
	ErrNotOwned           = errors.New("not owned by requester")
	ErrNotAuthorized      = errors.New("not authorized")
	ErrInvalidQuantity    = errors.New("quantity out of range")
	ErrInvalidTransition  = errors.New("invalid status transition")
	// ErrUnavailable marks transient store failures; callers may retry.
	ErrUnavailable = errors.New("store unavailable")
)

// InsufficientStockError names the first product whose reservation failed.
type InsufficientStockError struct {
	ProductID string
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s (requested %d)", e.ProductID, e.Requested)
}

func (e *InsufficientStockError) Is(target error) bool { return target == ErrInsufficientStock }

// ProductUnavailableError names a product that is inactive or gone.
type ProductUnavailableError struct {
	ProductID string
}

func (e *ProductUnavailableError) Error() string {
	return fmt.Sprintf("product %s is unavailable", e.ProductID)
}

func (e *ProductUnavailableError) Is(target error) bool { return target == ErrProductUnavailable }

// InvariantViolationError means a checkout would have committed a partial
// order graph. It is never retryable.
type InvariantViolationError struct {
	BuyerID string
	Detail  string
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("checkout invariant violated for buyer %s: %s", e.BuyerID, e.Detail)
}

// ProductIDOf extracts the product id carried by a stock or availability
// error, if any.
func ProductIDOf(err error) string {
	var ise *InsufficientStockError
	if errors.As(err, &ise) {
		return ise.ProductID
	}
	var pue *ProductUnavailableError
	if errors.As(err, &pue) {
		return pue.ProductID
	}
	return ""
}
