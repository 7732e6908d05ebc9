package httpx

import (
	"errors"
	"net/http"
	"strings"

	"github.com/ariefcatur/go-realtime-checkout/internal/redisx"
	"go.uber.org/zap"
)

const IdempotencyHeader = "Idempotency-Key"

type CheckoutResp struct {
	OrderID    string `json:"order_id"`
	Status     string `json:"status,omitempty"`
	Total      string `json:"total,omitempty"`
	Idempotent bool   `json:"idempotent"`
}

func (h *API) checkout(w http.ResponseWriter, r *http.Request) {
	p := principal(r.Context())
	ctx := r.Context()

	key := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
	if h.Idem == nil {
		key = ""
	}
	if key != "" {
		orderID, err := h.Idem.Claim(ctx, p.UserID, key)
		switch {
		case errors.Is(err, redisx.ErrInFlight):
			writeJSON(w, http.StatusConflict, errorResp{Kind: KindDuplicateRequest, Error: "checkout with this key is in progress"})
			return
		case err != nil:
			// Redis is only a shortcut; the cart lock still prevents a double order
			h.Logger.Warn("idempotency claim", zap.String("buyer_id", p.UserID), zap.Error(err))
			key = ""
		case orderID != "":
			writeJSON(w, http.StatusOK, CheckoutResp{OrderID: orderID, Idempotent: true})
			return
		}
	}

	order, err := h.Checkout.Checkout(ctx, p.UserID)
	if err != nil {
		if key != "" {
			if aerr := h.Idem.Abandon(ctx, p.UserID, key); aerr != nil {
				h.Logger.Warn("idempotency abandon", zap.String("buyer_id", p.UserID), zap.Error(aerr))
			}
		}
		writeError(w, h.Logger, err)
		return
	}
	if key != "" {
		if cerr := h.Idem.Complete(ctx, p.UserID, key, order.ID); cerr != nil {
			h.Logger.Warn("idempotency complete", zap.String("order_id", order.ID), zap.Error(cerr))
		}
	}

	writeJSON(w, http.StatusCreated, CheckoutResp{
		OrderID: order.ID,
		Status:  string(order.Status),
		Total:   order.Total.StringFixed(2),
	})
}
