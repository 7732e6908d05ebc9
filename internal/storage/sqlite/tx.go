package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-realtime-checkout/internal/market"
	"github.com/ariefcatur/go-realtime-checkout/internal/storage"
	"github.com/shopspring/decimal"
)

type sqlTx struct{ tx *sql.Tx }

// LockCartItems needs no row lock: the IMMEDIATE transaction already holds
// the database write lock.
func (t *sqlTx) LockCartItems(ctx context.Context, buyerID string) ([]market.CartItem, error) {
	rows, err := t.tx.QueryContext(ctx, cartItemQuery+` ORDER BY c.product_id`, buyerID)
	if err != nil {
		return nil, err
	}
	return scanCartItems(rows)
}

func (t *sqlTx) ReserveStock(ctx context.Context, productID string, qty int) (storage.Reservation, error) {
	r := storage.Reservation{ProductID: productID, Quantity: qty}
	var price string
	err := t.tx.QueryRowContext(ctx, `
		UPDATE products SET stock = stock - ?
		WHERE id = ? AND is_active = 1 AND stock >= ?
		RETURNING seller_id, name, price`, qty, productID, qty,
	).Scan(&r.SellerID, &r.Name, &price)
	if errors.Is(err, sql.ErrNoRows) {
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

func (t *sqlTx) refusal(ctx context.Context, productID string, qty int) error {
	var active bool
	err := t.tx.QueryRowContext(ctx, `SELECT is_active FROM products WHERE id = ?`, productID).Scan(&active)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !active) {
		return &market.ProductUnavailableError{ProductID: productID}
	}
	if err != nil {
		return err
	}
	return &market.InsufficientStockError{ProductID: productID, Requested: qty}
}

func (t *sqlTx) ReleaseStock(ctx context.Context, productID string, qty int) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE products SET stock = stock + ? WHERE id = ?`, qty, productID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return fmt.Errorf("release %s: %w", productID, market.ErrNotFound)
	}
	return nil
}

func (t *sqlTx) InsertOrder(ctx context.Context, o market.Order) error {
	if _, err := t.tx.ExecContext(ctx, `
		INSERT INTO orders (id, buyer_id, status, total, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		o.ID, o.BuyerID, string(o.Status), o.Total.StringFixed(2), toMillis(o.CreatedAt)); err != nil {
		return err
	}
	for i, l := range o.Lines {
		productID := sql.NullString{String: l.ProductID, Valid: l.ProductID != ""}
		if _, err := t.tx.ExecContext(ctx, `
			INSERT INTO order_lines (id, order_id, line_no, product_id, seller_id, product_name, quantity, unit_price)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			l.ID, o.ID, i+1, productID, l.SellerID, l.ProductName, l.Quantity, l.UnitPrice.StringFixed(2)); err != nil {
			return err
		}
	}
	return nil
}

func (t *sqlTx) ClearCart(ctx context.Context, buyerID string) (int, error) {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM cart_lines WHERE buyer_id = ?`, buyerID)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (t *sqlTx) AppendOutbox(ctx context.Context, rec storage.OutboxRecord) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO outbox (event_id, topic, key, payload, created_at) VALUES (?, ?, ?, ?, ?)`,
		rec.EventID, rec.Topic, rec.Key, rec.Payload, toMillis(time.Now()))
	return err
}
