package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/ariefcatur/go-realtime-checkout/internal/market"
	"github.com/ariefcatur/go-realtime-checkout/internal/storage"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

type pgTx struct{ tx pgx.Tx }

func (t *pgTx) LockCartItems(ctx context.Context, buyerID string) ([]market.CartItem, error) {
	rows, err := t.tx.Query(ctx, cartItemQuery+` ORDER BY c.product_id FOR UPDATE OF c`, buyerID)
	if err != nil {
		return nil, err
	}
	return scanCartItems(rows)
}

// ReserveStock is a single conditional UPDATE, so two transactions racing on
// the same row serialize on its lock and the second re-evaluates the
// predicate against the committed stock.
func (t *pgTx) ReserveStock(ctx context.Context, productID string, qty int) (storage.Reservation, error) {
	r := storage.Reservation{ProductID: productID, Quantity: qty}
	var price string
	err := t.tx.QueryRow(ctx, `
		UPDATE products SET stock = stock - $2
		WHERE id = $1 AND is_active AND stock >= $2
		RETURNING seller_id, name, price::text`, productID, qty,
	).Scan(&r.SellerID, &r.Name, &price)
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.Reservation{}, t.refusal(ctx, productID, qty)
	}
	if err != nil {
		return storage.Reservation{}, err
	}
	d, err := decimal.NewFromString(price)
	if err != nil {
		return storage.Reservation{}, fmt.Errorf("product %s price: %w", productID, err)
	}
	r.UnitPrice = d
	return r, nil
}

// refusal explains why the conditional update matched no row.
func (t *pgTx) refusal(ctx context.Context, productID string, qty int) error {
	var active bool
	err := t.tx.QueryRow(ctx, `SELECT is_active FROM products WHERE id=$1`, productID).Scan(&active)
	if errors.Is(err, pgx.ErrNoRows) || (err == nil && !active) {
		return &market.ProductUnavailableError{ProductID: productID}
	}
	if err != nil {
		return err
	}
	return &market.InsufficientStockError{ProductID: productID, Requested: qty}
}

func (t *pgTx) ReleaseStock(ctx context.Context, productID string, qty int) error {
	ct, err := t.tx.Exec(ctx, `UPDATE products SET stock = stock + $2 WHERE id=$1`, productID, qty)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return fmt.Errorf("release %s: %w", productID, market.ErrNotFound)
	}
	return nil
}

func (t *pgTx) InsertOrder(ctx context.Context, o market.Order) error {
	if _, err := t.tx.Exec(ctx, `
		INSERT INTO orders(id, buyer_id, status, total, created_at)
		VALUES ($1, $2, $3, $4::numeric, $5)`,
		o.ID, o.BuyerID, string(o.Status), o.Total.StringFixed(2), o.CreatedAt); err != nil {
		return err
	}
	for i, l := range o.Lines {
		// empty product id means the product is gone; store NULL for the FK
		var productID *string
		if l.ProductID != "" {
			productID = &l.ProductID
		}
		if _, err := t.tx.Exec(ctx, `
			INSERT INTO order_lines(id, order_id, line_no, product_id, seller_id, product_name, quantity, unit_price)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8::numeric)`,
			l.ID, o.ID, i+1, productID, l.SellerID, l.ProductName, l.Quantity, l.UnitPrice.StringFixed(2)); err != nil {
			return err
		}
	}
	return nil
}

func (t *pgTx) ClearCart(ctx context.Context, buyerID string) (int, error) {
	ct, err := t.tx.Exec(ctx, `DELETE FROM cart_lines WHERE buyer_id=$1`, buyerID)
	if err != nil {
		return 0, err
	}
	return int(ct.RowsAffected()), nil
}

func (t *pgTx) AppendOutbox(ctx context.Context, rec storage.OutboxRecord) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO outbox(event_id, topic, key, payload) VALUES ($1, $2, $3, $4)`,
		rec.EventID, rec.Topic, rec.Key, rec.Payload)
	return err
}
