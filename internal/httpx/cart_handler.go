package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/ariefcatur/go-realtime-checkout/internal/cart"
	"github.com/go-chi/chi/v5"
)

type AddToCartReq struct {
	ProductID string `json:"product_id"`
	Qty       *int   `json:"qty"`
}

type CartLineResp struct {
	LineID    string `json:"line_id"`
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	UnitPrice string `json:"unit_price"`
	Quantity  int    `json:"quantity"`
	LineTotal string `json:"line_total"`
}

type CartResp struct {
	Lines     []CartLineResp `json:"lines"`
	CartTotal string         `json:"cart_total"`
}

type AddToCartResp struct {
	LineID    string `json:"line_id"`
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

func (h *API) getCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	view, err := h.Cart.Snapshot(ctx, principal(ctx).UserID)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartResp(view))
}

func toCartResp(v cart.View) CartResp {
	out := CartResp{Lines: make([]CartLineResp, 0, len(v.Items)), CartTotal: v.Total.StringFixed(2)}
	for _, it := range v.Items {
		out.Lines = append(out.Lines, CartLineResp{
			LineID:    it.LineID,
			ProductID: it.ProductID,
			Name:      it.Name,
			UnitPrice: it.UnitPrice.StringFixed(2),
			Quantity:  it.Quantity,
			LineTotal: it.LineTotal().StringFixed(2),
		})
	}
	return out
}

func (h *API) addToCart(w http.ResponseWriter, r *http.Request) {
	var req AddToCartReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid json")
		return
	}
	req.ProductID = strings.TrimSpace(req.ProductID)
	if req.ProductID == "" {
		badRequest(w, "missing product_id")
		return
	}
	qty := 1
	if req.Qty != nil {
		qty = *req.Qty
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	line, err := h.Cart.AddLine(ctx, principal(ctx).UserID, req.ProductID, qty)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, AddToCartResp{LineID: line.ID, ProductID: line.ProductID, Quantity: line.Quantity})
}

func (h *API) removeCartLine(w http.ResponseWriter, r *http.Request) {
	lineID := chi.URLParam(r, "lineID")
	if lineID == "" {
		badRequest(w, "missing line id")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.Cart.RemoveLine(ctx, principal(ctx).UserID, lineID); err != nil {
		writeError(w, h.Logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
