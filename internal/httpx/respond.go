package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/ariefcatur/go-realtime-checkout/internal/market"
	"go.uber.org/zap"
)

// Error kinds returned in the "kind" field of every error body.
const (
	KindCartEmpty          = "CART_EMPTY"
	KindInsufficientStock  = "INSUFFICIENT_STOCK"
	KindProductUnavailable = "PRODUCT_UNAVAILABLE"
	KindUnavailable        = "UNAVAILABLE"
	KindInternal           = "INTERNAL"
	KindInvalidRequest     = "INVALID_REQUEST"
	KindNotFound           = "NOT_FOUND"
	KindNotOwned           = "NOT_OWNED"
	KindNotAuthorized      = "NOT_AUTHORIZED"
	KindInvalidTransition  = "INVALID_TRANSITION"
	KindDuplicateRequest   = "DUPLICATE_REQUEST"
)

type errorResp struct {
	Kind      string `json:"kind"`
	ProductID string `json:"product_id,omitempty"`
	Error     string `json:"error"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResp{Kind: KindInvalidRequest, Error: msg})
}

// writeError maps a domain error onto a status code and error kind. Anything
// unrecognised is logged and answered with a generic 500.
func writeError(w http.ResponseWriter, logger *zap.Logger, err error) {
	var inv *market.InvariantViolationError
	switch {
	case errors.Is(err, market.ErrCartEmpty):
		writeJSON(w, http.StatusConflict, errorResp{Kind: KindCartEmpty, Error: "cart is empty"})
	case errors.Is(err, market.ErrInsufficientStock):
		writeJSON(w, http.StatusConflict, errorResp{Kind: KindInsufficientStock,
			ProductID: market.ProductIDOf(err), Error: "insufficient stock"})
	case errors.Is(err, market.ErrProductUnavailable):
		writeJSON(w, http.StatusUnprocessableEntity, errorResp{Kind: KindProductUnavailable,
			ProductID: market.ProductIDOf(err), Error: "product unavailable"})
	case errors.Is(err, market.ErrUnavailable):
		w.Header().Set("Retry-After", "1")
		writeJSON(w, http.StatusServiceUnavailable, errorResp{Kind: KindUnavailable, Error: "temporarily unavailable, retry"})
	case errors.Is(err, market.ErrInvalidQuantity):
		badRequest(w, fmt.Sprintf("quantity must be between 1 and %d", market.MaxLineQuantity))
	case errors.Is(err, market.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResp{Kind: KindNotFound, Error: "not found"})
	case errors.Is(err, market.ErrNotOwned):
		writeJSON(w, http.StatusForbidden, errorResp{Kind: KindNotOwned, Error: "not owned by caller"})
	case errors.Is(err, market.ErrNotAuthorized):
		writeJSON(w, http.StatusForbidden, errorResp{Kind: KindNotAuthorized, Error: "forbidden"})
	case errors.Is(err, market.ErrInvalidTransition):
		writeJSON(w, http.StatusConflict, errorResp{Kind: KindInvalidTransition, Error: err.Error()})
	case errors.As(err, &inv):
		// already logged at the checkout boundary
		writeJSON(w, http.StatusInternalServerError, errorResp{Kind: KindInternal, Error: "internal error"})
	default:
		logger.Error("request failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResp{Kind: KindInternal, Error: "internal error"})
	}
}
