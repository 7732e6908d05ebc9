// Package postgres is the pgx-backed implementation of storage.Store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-realtime-checkout/internal/market"
	"github.com/ariefcatur/go-realtime-checkout/internal/storage"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type Store struct {
	DB *pgxpool.Pool
	// LockTimeout bounds how long a checkout waits on a contended row.
	LockTimeout time.Duration
}

var _ storage.Store = (*Store)(nil)

func New(db *pgxpool.Pool, lockTimeout time.Duration) *Store {
	return &Store{DB: db, LockTimeout: lockTimeout}
}

func (s *Store) Close() error {
	s.DB.Close()
	return nil
}

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return classify(err)
	}
	defer func() {
		// ctx may already be expired; rollback still needs a live context.
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		_ = tx.Rollback(rctx)
	}()

	if s.LockTimeout > 0 {
		if _, err := tx.Exec(ctx, `SELECT set_config('lock_timeout', $1, true)`,
			fmt.Sprintf("%dms", s.LockTimeout.Milliseconds())); err != nil {
			return classify(err)
		}
	}
	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return classify(err)
	}
	return classify(tx.Commit(ctx))
}

const productCols = `id, seller_id, name, price::text, stock, is_active, created_at`

func scanProduct(row pgx.Row) (market.Product, error) {
	var p market.Product
	var price string
	if err := row.Scan(&p.ID, &p.SellerID, &p.Name, &price, &p.Stock, &p.Active, &p.CreatedAt); err != nil {
		return market.Product{}, err
	}
	d, err := decimal.NewFromString(price)
	if err != nil {
		return market.Product{}, fmt.Errorf("product %s price: %w", p.ID, err)
	}
	p.Price = d
	return p, nil
}

func (s *Store) Product(ctx context.Context, id string) (market.Product, error) {
	p, err := scanProduct(s.DB.QueryRow(ctx, `SELECT `+productCols+` FROM products WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return market.Product{}, market.ErrNotFound
	}
	return p, classify(err)
}

func (s *Store) ListProducts(ctx context.Context) ([]market.Product, error) {
	rows, err := s.DB.Query(ctx, `SELECT `+productCols+` FROM products WHERE is_active ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []market.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, classify(rows.Err())
}

func (s *Store) PutProduct(ctx context.Context, p market.Product) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	_, err := s.DB.Exec(ctx, `
		INSERT INTO products(id, seller_id, name, price, stock, is_active, created_at)
		VALUES ($1, $2, $3, $4::numeric, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			seller_id = EXCLUDED.seller_id,
			name      = EXCLUDED.name,
			price     = EXCLUDED.price,
			stock     = EXCLUDED.stock,
			is_active = EXCLUDED.is_active`,
		p.ID, p.SellerID, p.Name, p.Price.StringFixed(2), p.Stock, p.Active, p.CreatedAt)
	return classify(err)
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	ct, err := s.DB.Exec(ctx, `DELETE FROM products WHERE id=$1`, id)
	if err != nil {
		return classify(err)
	}
	if ct.RowsAffected() == 0 {
		return market.ErrNotFound
	}
	return nil
}

func (s *Store) AddCartLine(ctx context.Context, buyerID, productID string, qty int) (market.CartLine, error) {
	l := market.CartLine{BuyerID: buyerID, ProductID: productID}
	err := s.DB.QueryRow(ctx, `
		INSERT INTO cart_lines(id, buyer_id, product_id, quantity)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (buyer_id, product_id)
		DO UPDATE SET quantity = cart_lines.quantity + EXCLUDED.quantity
		WHERE cart_lines.quantity + EXCLUDED.quantity <= $5
		RETURNING id, quantity, created_at`,
		uuid.NewString(), buyerID, productID, qty, market.MaxLineQuantity,
	).Scan(&l.ID, &l.Quantity, &l.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		// the increment would push the line past the cap
		return market.CartLine{}, fmt.Errorf("%s: %w", productID, market.ErrInvalidQuantity)
	}
	if isForeignKeyViolation(err) {
		return market.CartLine{}, &market.ProductUnavailableError{ProductID: productID}
	}
	if err != nil {
		return market.CartLine{}, classify(err)
	}
	return l, nil
}

func (s *Store) DeleteCartLine(ctx context.Context, buyerID, lineID string) error {
	ct, err := s.DB.Exec(ctx, `DELETE FROM cart_lines WHERE id=$1 AND buyer_id=$2`, lineID, buyerID)
	if err != nil {
		return classify(err)
	}
	if ct.RowsAffected() == 1 {
		return nil
	}
	var owner string
	err = s.DB.QueryRow(ctx, `SELECT buyer_id FROM cart_lines WHERE id=$1`, lineID).Scan(&owner)
	if errors.Is(err, pgx.ErrNoRows) {
		return market.ErrNotFound
	}
	if err != nil {
		return classify(err)
	}
	return market.ErrNotOwned
}

const cartItemQuery = `
	SELECT c.id, c.product_id, p.seller_id, p.name, p.price::text, c.quantity, p.is_active, c.created_at
	FROM cart_lines c JOIN products p ON p.id = c.product_id
	WHERE c.buyer_id = $1`

func scanCartItems(rows pgx.Rows) ([]market.CartItem, error) {
	defer rows.Close()
	var out []market.CartItem
	for rows.Next() {
		var it market.CartItem
		var price string
		if err := rows.Scan(&it.LineID, &it.ProductID, &it.SellerID, &it.Name, &price,
			&it.Quantity, &it.ProductActive, &it.CreatedAt); err != nil {
			return nil, err
		}
		d, err := decimal.NewFromString(price)
		if err != nil {
			return nil, fmt.Errorf("product %s price: %w", it.ProductID, err)
		}
		it.UnitPrice = d
		out = append(out, it)
	}
	return out, rows.Err()
}

func (s *Store) CartItems(ctx context.Context, buyerID string) ([]market.CartItem, error) {
	rows, err := s.DB.Query(ctx, cartItemQuery+` ORDER BY c.created_at, c.id`, buyerID)
	if err != nil {
		return nil, classify(err)
	}
	items, err := scanCartItems(rows)
	return items, classify(err)
}

const orderCols = `o.id, o.buyer_id, o.status, o.total::text, o.created_at`

func scanOrder(row pgx.Row) (market.Order, error) {
	var o market.Order
	var status, total string
	if err := row.Scan(&o.ID, &o.BuyerID, &status, &total, &o.CreatedAt); err != nil {
		return market.Order{}, err
	}
	d, err := decimal.NewFromString(total)
	if err != nil {
		return market.Order{}, fmt.Errorf("order %s total: %w", o.ID, err)
	}
	o.Status = market.Status(status)
	o.Total = d
	return o, nil
}

func (s *Store) Order(ctx context.Context, id string) (market.Order, error) {
	o, err := scanOrder(s.DB.QueryRow(ctx, `SELECT `+orderCols+` FROM orders o WHERE o.id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return market.Order{}, market.ErrNotFound
	}
	if err != nil {
		return market.Order{}, classify(err)
	}
	orders := []market.Order{o}
	if err := s.attachLines(ctx, orders, ""); err != nil {
		return market.Order{}, err
	}
	return orders[0], nil
}

func (s *Store) OrdersByBuyer(ctx context.Context, buyerID string) ([]market.Order, error) {
	return s.listOrders(ctx, `
		SELECT `+orderCols+` FROM orders o
		WHERE o.buyer_id=$1
		ORDER BY o.created_at DESC, o.id DESC`, buyerID, "")
}

func (s *Store) OrdersBySeller(ctx context.Context, sellerID string) ([]market.Order, error) {
	return s.listOrders(ctx, `
		SELECT `+orderCols+` FROM orders o
		WHERE EXISTS (SELECT 1 FROM order_lines l WHERE l.order_id = o.id AND l.seller_id = $1)
		ORDER BY o.created_at DESC, o.id DESC`, sellerID, sellerID)
}

func (s *Store) listOrders(ctx context.Context, query, arg, sellerID string) ([]market.Order, error) {
	rows, err := s.DB.Query(ctx, query, arg)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []market.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	if err := s.attachLines(ctx, out, sellerID); err != nil {
		return nil, err
	}
	return out, nil
}

// attachLines loads lines for every order in one query; a non-empty sellerID
// restricts them to that seller.
func (s *Store) attachLines(ctx context.Context, orders []market.Order, sellerID string) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]string, len(orders))
	idx := make(map[string]int, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		idx[o.ID] = i
	}
	rows, err := s.DB.Query(ctx, `
		SELECT id, order_id, COALESCE(product_id, ''), seller_id, product_name, quantity, unit_price::text
		FROM order_lines
		WHERE order_id = ANY($1) AND ($2::text = '' OR seller_id = $2::text)
		ORDER BY order_id, line_no`, ids, sellerID)
	if err != nil {
		return classify(err)
	}
	defer rows.Close()

	for rows.Next() {
		var l market.OrderLine
		var price string
		if err := rows.Scan(&l.ID, &l.OrderID, &l.ProductID, &l.SellerID, &l.ProductName, &l.Quantity, &price); err != nil {
			return err
		}
		d, err := decimal.NewFromString(price)
		if err != nil {
			return fmt.Errorf("order line %s price: %w", l.ID, err)
		}
		l.UnitPrice = d
		i := idx[l.OrderID]
		orders[i].Lines = append(orders[i].Lines, l)
	}
	return classify(rows.Err())
}

func (s *Store) SellerSummary(ctx context.Context, sellerID string) (market.SellerSummary, error) {
	var revenue string
	var count int
	err := s.DB.QueryRow(ctx, `
		SELECT COALESCE(SUM(unit_price * quantity), 0)::text, COUNT(DISTINCT order_id)
		FROM order_lines WHERE seller_id=$1`, sellerID).Scan(&revenue, &count)
	if err != nil {
		return market.SellerSummary{}, classify(err)
	}
	d, err := decimal.NewFromString(revenue)
	if err != nil {
		return market.SellerSummary{}, fmt.Errorf("seller %s revenue: %w", sellerID, err)
	}
	return market.SellerSummary{SellerID: sellerID, TotalRevenue: d, TotalOrders: count}, nil
}

func (s *Store) UpdateOrderStatus(ctx context.Context, id string, from, to market.Status) error {
	ct, err := s.DB.Exec(ctx, `UPDATE orders SET status=$3 WHERE id=$1 AND status=$2`, id, string(from), string(to))
	if err != nil {
		return classify(err)
	}
	if ct.RowsAffected() == 1 {
		return nil
	}
	var exists bool
	if err := s.DB.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM orders WHERE id=$1)`, id).Scan(&exists); err != nil {
		return classify(err)
	}
	if !exists {
		return market.ErrNotFound
	}
	return market.ErrInvalidTransition
}

func (s *Store) PendingOutbox(ctx context.Context, limit int) ([]storage.OutboxRecord, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT id, event_id, topic, key, payload, created_at, sent_at
		FROM outbox WHERE sent_at IS NULL ORDER BY id LIMIT $1`, limit)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []storage.OutboxRecord
	for rows.Next() {
		var rec storage.OutboxRecord
		if err := rows.Scan(&rec.ID, &rec.EventID, &rec.Topic, &rec.Key, &rec.Payload, &rec.CreatedAt, &rec.SentAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, classify(rows.Err())
}

func (s *Store) MarkOutboxSent(ctx context.Context, id int64) error {
	_, err := s.DB.Exec(ctx, `UPDATE outbox SET sent_at=now() WHERE id=$1`, id)
	return classify(err)
}
