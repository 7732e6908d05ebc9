// Package sqlite provides a SQLite-backed storage.Store for single-node
// deployments and tests.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/ariefcatur/go-realtime-checkout/internal/market"
	"github.com/ariefcatur/go-realtime-checkout/internal/storage"
	"github.com/ariefcatur/go-realtime-checkout/internal/storage/sqlite/migrations"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

// Store persists checkout state in SQLite. Transactions begin IMMEDIATE, so
// writers are serialized by the database lock.
type Store struct {
	sqlDB *sql.DB
}

var _ storage.Store = (*Store)(nil)

func toMillis(t time.Time) int64 { return t.UTC().UnixMilli() }

func fromMillis(v int64) time.Time { return time.UnixMilli(v).UTC() }

// Open opens the database file at path and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) +
		"?_pragma=busy_timeout(10000)&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_txlock=immediate"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return classify(err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(ctx, &sqlTx{tx: tx}); err != nil {
		return classify(err)
	}
	return classify(tx.Commit())
}

type scanner interface {
	Scan(dest ...any) error
}

const productCols = `id, seller_id, name, price, stock, is_active, created_at`

func scanProduct(row scanner) (market.Product, error) {
	var p market.Product
	var price string
	var created int64
	if err := row.Scan(&p.ID, &p.SellerID, &p.Name, &price, &p.Stock, &p.Active, &created); err != nil {
		return market.Product{}, err
	}
	d, err := decimal.NewFromString(price)
	if err != nil {
		return market.Product{}, fmt.Errorf("product %s price: %w", p.ID, err)
	}
	p.Price = d
	p.CreatedAt = fromMillis(created)
	return p, nil
}

func (s *Store) Product(ctx context.Context, id string) (market.Product, error) {
	p, err := scanProduct(s.sqlDB.QueryRowContext(ctx, `SELECT `+productCols+` FROM products WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return market.Product{}, market.ErrNotFound
	}
	return p, classify(err)
}

func (s *Store) ListProducts(ctx context.Context) ([]market.Product, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT `+productCols+` FROM products WHERE is_active = 1 ORDER BY created_at DESC, id`)
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
	_, err := s.sqlDB.ExecContext(ctx, `
		INSERT INTO products (id, seller_id, name, price, stock, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			seller_id = excluded.seller_id,
			name      = excluded.name,
			price     = excluded.price,
			stock     = excluded.stock,
			is_active = excluded.is_active`,
		p.ID, p.SellerID, p.Name, p.Price.StringFixed(2), p.Stock, p.Active, toMillis(p.CreatedAt))
	return classify(err)
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	res, err := s.sqlDB.ExecContext(ctx, `DELETE FROM products WHERE id = ?`, id)
	if err != nil {
		return classify(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return market.ErrNotFound
	}
	return nil
}

func (s *Store) AddCartLine(ctx context.Context, buyerID, productID string, qty int) (market.CartLine, error) {
	l := market.CartLine{BuyerID: buyerID, ProductID: productID}
	var created int64
	err := s.sqlDB.QueryRowContext(ctx, `
		INSERT INTO cart_lines (id, buyer_id, product_id, quantity, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (buyer_id, product_id)
		DO UPDATE SET quantity = cart_lines.quantity + excluded.quantity
		WHERE cart_lines.quantity + excluded.quantity <= ?
		RETURNING id, quantity, created_at`,
		uuid.NewString(), buyerID, productID, qty, toMillis(time.Now()), market.MaxLineQuantity,
	).Scan(&l.ID, &l.Quantity, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return market.CartLine{}, fmt.Errorf("%s: %w", productID, market.ErrInvalidQuantity)
	}
	if isForeignKeyViolation(err) {
		return market.CartLine{}, &market.ProductUnavailableError{ProductID: productID}
	}
	if err != nil {
		return market.CartLine{}, classify(err)
	}
	l.CreatedAt = fromMillis(created)
	return l, nil
}

func (s *Store) DeleteCartLine(ctx context.Context, buyerID, lineID string) error {
	res, err := s.sqlDB.ExecContext(ctx, `DELETE FROM cart_lines WHERE id = ? AND buyer_id = ?`, lineID, buyerID)
	if err != nil {
		return classify(err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}
	var owner string
	err = s.sqlDB.QueryRowContext(ctx, `SELECT buyer_id FROM cart_lines WHERE id = ?`, lineID).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return market.ErrNotFound
	}
	if err != nil {
		return classify(err)
	}
	return market.ErrNotOwned
}

const cartItemQuery = `
	SELECT c.id, c.product_id, p.seller_id, p.name, p.price, c.quantity, p.is_active, c.created_at
	FROM cart_lines c JOIN products p ON p.id = c.product_id
	WHERE c.buyer_id = ?`

func scanCartItems(rows *sql.Rows) ([]market.CartItem, error) {
	defer rows.Close()
	var out []market.CartItem
	for rows.Next() {
		var it market.CartItem
		var price string
		var created int64
		if err := rows.Scan(&it.LineID, &it.ProductID, &it.SellerID, &it.Name, &price,
			&it.Quantity, &it.ProductActive, &created); err != nil {
			return nil, err
		}
		d, err := decimal.NewFromString(price)
		if err != nil {
			return nil, fmt.Errorf("product %s price: %w", it.ProductID, err)
		}
		it.UnitPrice = d
		it.CreatedAt = fromMillis(created)
		out = append(out, it)
	}
	return out, rows.Err()
}

func (s *Store) CartItems(ctx context.Context, buyerID string) ([]market.CartItem, error) {
	rows, err := s.sqlDB.QueryContext(ctx, cartItemQuery+` ORDER BY c.created_at, c.rowid`, buyerID)
	if err != nil {
		return nil, classify(err)
	}
	items, err := scanCartItems(rows)
	return items, classify(err)
}

const orderCols = `o.id, o.buyer_id, o.status, o.total, o.created_at`

func scanOrder(row scanner) (market.Order, error) {
	var o market.Order
	var status, total string
	var created int64
	if err := row.Scan(&o.ID, &o.BuyerID, &status, &total, &created); err != nil {
		return market.Order{}, err
	}
	d, err := decimal.NewFromString(total)
	if err != nil {
		return market.Order{}, fmt.Errorf("order %s total: %w", o.ID, err)
	}
	o.Status = market.Status(status)
	o.Total = d
	o.CreatedAt = fromMillis(created)
	return o, nil
}

func (s *Store) Order(ctx context.Context, id string) (market.Order, error) {
	o, err := scanOrder(s.sqlDB.QueryRowContext(ctx, `SELECT `+orderCols+` FROM orders o WHERE o.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
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
		WHERE o.buyer_id = ?
		ORDER BY o.created_at DESC, o.rowid DESC`, buyerID, "")
}

func (s *Store) OrdersBySeller(ctx context.Context, sellerID string) ([]market.Order, error) {
	return s.listOrders(ctx, `
		SELECT `+orderCols+` FROM orders o
		WHERE EXISTS (SELECT 1 FROM order_lines l WHERE l.order_id = o.id AND l.seller_id = ?)
		ORDER BY o.created_at DESC, o.rowid DESC`, sellerID, sellerID)
}

func (s *Store) listOrders(ctx context.Context, query, arg, sellerID string) ([]market.Order, error) {
	rows, err := s.sqlDB.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, classify(err)
	}
	var out []market.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	if err := s.attachLines(ctx, out, sellerID); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) attachLines(ctx context.Context, orders []market.Order, sellerID string) error {
	if len(orders) == 0 {
		return nil
	}
	args := make([]any, 0, len(orders)+1)
	idx := make(map[string]int, len(orders))
	params := ""
	for i, o := range orders {
		if i > 0 {
			params += ","
		}
		params += "?"
		args = append(args, o.ID)
		idx[o.ID] = i
	}
	query := `
		SELECT id, order_id, product_id, seller_id, product_name, quantity, unit_price
		FROM order_lines WHERE order_id IN (` + params + `)`
	if sellerID != "" {
		query += ` AND seller_id = ?`
		args = append(args, sellerID)
	}
	rows, err := s.sqlDB.QueryContext(ctx, query+` ORDER BY order_id, line_no`, args...)
	if err != nil {
		return classify(err)
	}
	defer rows.Close()

	for rows.Next() {
		var l market.OrderLine
		var productID sql.NullString
		var price string
		if err := rows.Scan(&l.ID, &l.OrderID, &productID, &l.SellerID, &l.ProductName, &l.Quantity, &price); err != nil {
			return err
		}
		d, err := decimal.NewFromString(price)
		if err != nil {
			return fmt.Errorf("order line %s price: %w", l.ID, err)
		}
		l.ProductID = productID.String
		l.UnitPrice = d
		i := idx[l.OrderID]
		orders[i].Lines = append(orders[i].Lines, l)
	}
	return classify(rows.Err())
}

// SellerSummary sums in Go; SQLite arithmetic on TEXT prices would go
// through floating point.
func (s *Store) SellerSummary(ctx context.Context, sellerID string) (market.SellerSummary, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT order_id, quantity, unit_price FROM order_lines WHERE seller_id = ?`, sellerID)
	if err != nil {
		return market.SellerSummary{}, classify(err)
	}
	defer rows.Close()

	sum := market.SellerSummary{SellerID: sellerID, TotalRevenue: decimal.Zero}
	seen := map[string]bool{}
	for rows.Next() {
		var orderID, price string
		var qty int
		if err := rows.Scan(&orderID, &qty, &price); err != nil {
			return market.SellerSummary{}, err
		}
		d, err := decimal.NewFromString(price)
		if err != nil {
			return market.SellerSummary{}, fmt.Errorf("order %s line price: %w", orderID, err)
		}
		sum.TotalRevenue = sum.TotalRevenue.Add(d.Mul(decimal.NewFromInt(int64(qty))))
		seen[orderID] = true
	}
	if err := rows.Err(); err != nil {
		return market.SellerSummary{}, classify(err)
	}
	sum.TotalOrders = len(seen)
	return sum, nil
}

func (s *Store) UpdateOrderStatus(ctx context.Context, id string, from, to market.Status) error {
	res, err := s.sqlDB.ExecContext(ctx, `UPDATE orders SET status = ? WHERE id = ? AND status = ?`, string(to), id, string(from))
	if err != nil {
		return classify(err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}
	var exists int
	if err := s.sqlDB.QueryRowContext(ctx, `SELECT COUNT(1) FROM orders WHERE id = ?`, id).Scan(&exists); err != nil {
		return classify(err)
	}
	if exists == 0 {
		return market.ErrNotFound
	}
	return market.ErrInvalidTransition
}

func (s *Store) PendingOutbox(ctx context.Context, limit int) ([]storage.OutboxRecord, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `
		SELECT id, event_id, topic, key, payload, created_at, sent_at
		FROM outbox WHERE sent_at IS NULL ORDER BY id LIMIT ?`, limit)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []storage.OutboxRecord
	for rows.Next() {
		var rec storage.OutboxRecord
		var created int64
		var sent sql.NullInt64
		if err := rows.Scan(&rec.ID, &rec.EventID, &rec.Topic, &rec.Key, &rec.Payload, &created, &sent); err != nil {
			return nil, err
		}
		rec.CreatedAt = fromMillis(created)
		if sent.Valid {
			t := fromMillis(sent.Int64)
			rec.SentAt = &t
		}
		out = append(out, rec)
	}
	return out, classify(rows.Err())
}

func (s *Store) MarkOutboxSent(ctx context.Context, id int64) error {
	_, err := s.sqlDB.ExecContext(ctx, `UPDATE outbox SET sent_at = ? WHERE id = ?`, toMillis(time.Now()), id)
	return classify(err)
}
