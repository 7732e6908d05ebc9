package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/ariefcatur/go-realtime-checkout/internal/market"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type OrderLineResp struct {
	ProductID string `json:"product_id,omitempty"`
	SellerID  string `json:"seller_id"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unit_price"`
	LineTotal string `json:"line_total"`
}

type OrderResp struct {
	OrderID   string          `json:"order_id"`
	BuyerID   string          `json:"buyer_id"`
	Status    string          `json:"status"`
	Total     string          `json:"total"`
	CreatedAt time.Time       `json:"created_at"`
	Lines     []OrderLineResp `json:"lines"`
}

type SellerSummaryResp struct {
	SellerID     string `json:"seller_id"`
	TotalRevenue string `json:"total_revenue"`
	TotalOrders  int    `json:"total_orders"`
}

type ProductResp struct {
	ProductID string `json:"product_id"`
	SellerID  string `json:"seller_id"`
	Name      string `json:"name"`
	Price     string `json:"price"`
	Stock     int    `json:"stock"`
}

func toOrderResp(o market.Order) OrderResp {
	out := OrderResp{
		OrderID:   o.ID,
		BuyerID:   o.BuyerID,
		Status:    string(o.Status),
		CreatedAt: o.CreatedAt,
		Lines:     make([]OrderLineResp, 0, len(o.Lines)),
	}
	// seller views carry a subset of lines; total what is shown
	total := decimal.Zero
	for _, l := range o.Lines {
		total = total.Add(l.LineTotal())
		out.Lines = append(out.Lines, OrderLineResp{
			ProductID: l.ProductID,
			SellerID:  l.SellerID,
			Name:      l.ProductName,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice.StringFixed(2),
			LineTotal: l.LineTotal().StringFixed(2),
		})
	}
	out.Total = total.StringFixed(2)
	return out
}

func toOrderList(list []market.Order) []OrderResp {
	out := make([]OrderResp, 0, len(list))
	for _, o := range list {
		out = append(out, toOrderResp(o))
	}
	return out
}

func (h *API) getOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	if orderID == "" {
		badRequest(w, "missing id")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	o, err := h.Orders.Get(ctx, orderID, principal(ctx))
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResp(o))
}

func (h *API) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	list, err := h.Orders.ListForBuyer(ctx, principal(ctx).UserID)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderList(list))
}

func (h *API) listSellerOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	list, err := h.Orders.ListForSeller(ctx, principal(ctx).UserID)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderList(list))
}

func (h *API) sellerSummary(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	sellerID := principal(ctx).UserID
	s, err := h.Orders.SellerSummary(ctx, sellerID)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, SellerSummaryResp{
		SellerID:     sellerID,
		TotalRevenue: s.TotalRevenue.StringFixed(2),
		TotalOrders:  s.TotalOrders,
	})
}

func (h *API) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	ps, err := h.Products.ListProducts(ctx)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	out := make([]ProductResp, 0, len(ps))
	for _, p := range ps {
		if !p.Active {
			continue
		}
		out = append(out, ProductResp{
			ProductID: p.ID,
			SellerID:  p.SellerID,
			Name:      p.Name,
			Price:     p.Price.StringFixed(2),
			Stock:     p.Stock,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type StockResp struct {
	ProductID string `json:"product_id"`
	Available int    `json:"available"`
}

func (h *API) productStock(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	n, err := h.Stock.Available(ctx, productID)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, StockResp{ProductID: productID, Available: n})
}
