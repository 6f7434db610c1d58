package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/rolandlluka/simple-ecommerce/internal/models"
)

const (
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 5
	defaultConnMaxLifetime = 5 * time.Minute
)

// Postgres is the production Store. The checkout invariant rides on
// DecrementStock's conditional UPDATE: the stock check and the decrement
// are one statement, so concurrent checkouts on the same product serialize
// on the row and can never drive stock negative.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(databaseURL string) (*Postgres, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(defaultMaxOpenConns)
	db.SetMaxIdleConns(defaultMaxIdleConns)
	db.SetConnMaxLifetime(defaultConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Close() error { return p.db.Close() }

func (p *Postgres) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(&pgTx{tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed: %v (original error: %w)", rbErr, err)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (p *Postgres) CreateProduct(ctx context.Context, prod *models.Product) error {
	if prod.ID == uuid.Nil {
		prod.ID = uuid.New()
	}
	now := time.Now()
	if prod.CreatedAt.IsZero() {
		prod.CreatedAt = now
	}
	prod.UpdatedAt = now
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO products (id, name, description, price, stock_quantity, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		prod.ID, prod.Name, prod.Description, prod.Price, prod.StockQuantity, prod.CreatedAt, prod.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert product: %w", err)
	}
	return nil
}

func (p *Postgres) UpdateProduct(ctx context.Context, prod *models.Product) error {
	prod.UpdatedAt = time.Now()
	res, err := p.db.ExecContext(ctx, `
		UPDATE products SET name = $2, description = $3, price = $4, stock_quantity = $5, updated_at = $6
		WHERE id = $1`,
		prod.ID, prod.Name, prod.Description, prod.Price, prod.StockQuantity, prod.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update product: %w", err)
	}
	return checkAffected(res, "product", prod.ID)
}

func (p *Postgres) DeleteProduct(ctx context.Context, id uuid.UUID) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}
	return checkAffected(res, "product", id)
}

func checkAffected(res sql.Result, kind string, id uuid.UUID) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, models.ErrNotFound)
	}
	return nil
}

const productColumns = `id, name, description, price, stock_quantity, created_at, updated_at`

func scanProduct(row interface{ Scan(...any) error }) (models.Product, error) {
	var p models.Product
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.StockQuantity, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func productByID(ctx context.Context, q querier, id uuid.UUID) (models.Product, error) {
	p, err := scanProduct(q.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Product{}, fmt.Errorf("product %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return models.Product{}, fmt.Errorf("failed to load product: %w", err)
	}
	return p, nil
}

func (p *Postgres) ProductByID(ctx context.Context, id uuid.UUID) (models.Product, error) {
	return productByID(ctx, p.db, id)
}

func (p *Postgres) ListProducts(ctx context.Context, opts ListOptions) ([]models.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products`
	if opts.InStockOnly {
		query += ` WHERE stock_quantity > 0`
	}
	query += ` ORDER BY created_at DESC, id`
	args := []any{}
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += fmt.Sprintf(` OFFSET $%d`, len(args))
	}

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	products := []models.Product{}
	for rows.Next() {
		prod, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, prod)
	}
	return products, rows.Err()
}

func (p *Postgres) CreateUser(ctx context.Context, u *models.User) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO users (id, email, name, is_admin, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		u.ID, u.Email, u.Name, u.IsAdmin, u.PasswordHash, u.CreatedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return fmt.Errorf("email %s already registered: %w", u.Email, models.ErrValidation)
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

const userColumns = `id, email, name, is_admin, password_hash, created_at`

func scanUser(row interface{ Scan(...any) error }) (models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.IsAdmin, &u.PasswordHash, &u.CreatedAt)
	return u, err
}

func (p *Postgres) UserByID(ctx context.Context, id uuid.UUID) (models.User, error) {
	u, err := scanUser(p.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, fmt.Errorf("user %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return models.User{}, fmt.Errorf("failed to load user: %w", err)
	}
	return u, nil
}

func (p *Postgres) UserByEmail(ctx context.Context, email string) (models.User, error) {
	u, err := scanUser(p.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, fmt.Errorf("user %s: %w", email, models.ErrNotFound)
	}
	if err != nil {
		return models.User{}, fmt.Errorf("failed to load user: %w", err)
	}
	return u, nil
}

func (p *Postgres) ListAdmins(ctx context.Context) ([]models.User, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users WHERE is_admin ORDER BY email`)
	if err != nil {
		return nil, fmt.Errorf("failed to list admins: %w", err)
	}
	defer rows.Close()

	var admins []models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		admins = append(admins, u)
	}
	return admins, rows.Err()
}

func cartLinesForUser(ctx context.Context, q querier, userID uuid.UUID) ([]models.CartLine, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT ci.id, ci.user_id, ci.product_id, ci.quantity, ci.created_at,
		       p.id, p.name, p.description, p.price, p.stock_quantity, p.created_at, p.updated_at
		FROM cart_items ci
		JOIN products p ON p.id = ci.product_id
		WHERE ci.user_id = $1
		ORDER BY ci.created_at, ci.id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}
	defer rows.Close()

	lines := []models.CartLine{}
	for rows.Next() {
		var l models.CartLine
		err := rows.Scan(
			&l.Item.ID, &l.Item.UserID, &l.Item.ProductID, &l.Item.Quantity, &l.Item.CreatedAt,
			&l.Product.ID, &l.Product.Name, &l.Product.Description, &l.Product.Price,
			&l.Product.StockQuantity, &l.Product.CreatedAt, &l.Product.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cart line: %w", err)
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func (p *Postgres) CartLinesForUser(ctx context.Context, userID uuid.UUID) ([]models.CartLine, error) {
	return cartLinesForUser(ctx, p.db, userID)
}

func cartItemByID(ctx context.Context, q querier, id uuid.UUID) (models.CartItem, error) {
	var item models.CartItem
	err := q.QueryRowContext(ctx, `
		SELECT id, user_id, product_id, quantity, created_at FROM cart_items WHERE id = $1`, id).
		Scan(&item.ID, &item.UserID, &item.ProductID, &item.Quantity, &item.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.CartItem{}, fmt.Errorf("cart item %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return models.CartItem{}, fmt.Errorf("failed to load cart item: %w", err)
	}
	return item, nil
}

func (p *Postgres) CartItemByID(ctx context.Context, id uuid.UUID) (models.CartItem, error) {
	return cartItemByID(ctx, p.db, id)
}

func (p *Postgres) OrderByID(ctx context.Context, id uuid.UUID) (models.Order, error) {
	var o models.Order
	err := p.db.QueryRowContext(ctx, `
		SELECT id, user_id, total, status, created_at FROM orders WHERE id = $1`, id).
		Scan(&o.ID, &o.UserID, &o.Total, &o.Status, &o.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Order{}, fmt.Errorf("order %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return models.Order{}, fmt.Errorf("failed to load order: %w", err)
	}
	return o, nil
}

func (p *Postgres) OrderItems(ctx context.Context, orderID uuid.UUID) ([]models.OrderItem, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, order_id, product_id, quantity, price FROM order_items WHERE order_id = $1`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load order items: %w", err)
	}
	defer rows.Close()

	items := []models.OrderItem{}
	for rows.Next() {
		var item models.OrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.Quantity, &item.Price); err != nil {
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (p *Postgres) OrdersForUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Order, error) {
	query := `SELECT id, user_id, total, status, created_at FROM orders WHERE user_id = $1 ORDER BY created_at DESC, id`
	args := []any{userID}
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}
	if offset > 0 {
		args = append(args, offset)
		query += fmt.Sprintf(` OFFSET $%d`, len(args))
	}
	return p.queryOrders(ctx, query, args...)
}

func (p *Postgres) OrdersBetween(ctx context.Context, from, to time.Time) ([]models.Order, error) {
	return p.queryOrders(ctx, `
		SELECT id, user_id, total, status, created_at FROM orders
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at`, from, to)
}

func (p *Postgres) queryOrders(ctx context.Context, query string, args ...any) ([]models.Order, error) {
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load orders: %w", err)
	}
	defer rows.Close()

	orders := []models.Order{}
	for rows.Next() {
		var o models.Order
		if err := rows.Scan(&o.ID, &o.UserID, &o.Total, &o.Status, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func (p *Postgres) ProductSalesBetween(ctx context.Context, from, to time.Time) ([]models.ProductSales, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT oi.product_id, pr.name, SUM(oi.quantity), SUM(oi.quantity * oi.price)
		FROM order_items oi
		JOIN orders o ON o.id = oi.order_id
		JOIN products pr ON pr.id = oi.product_id
		WHERE o.created_at >= $1 AND o.created_at < $2
		GROUP BY oi.product_id, pr.name`, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate sales: %w", err)
	}
	defer rows.Close()

	sales := []models.ProductSales{}
	for rows.Next() {
		var s models.ProductSales
		if err := rows.Scan(&s.ProductID, &s.Name, &s.QuantitySold, &s.Revenue); err != nil {
			return nil, fmt.Errorf("failed to scan sales row: %w", err)
		}
		sales = append(sales, s)
	}
	return sales, rows.Err()
}

// pgTx adapts *sql.Tx to the Tx interface.
type pgTx struct {
	tx *sql.Tx
}

func (t *pgTx) ProductByID(ctx context.Context, id uuid.UUID) (models.Product, error) {
	return productByID(ctx, t.tx, id)
}

func (t *pgTx) CartLinesForUser(ctx context.Context, userID uuid.UUID) ([]models.CartLine, error) {
	return cartLinesForUser(ctx, t.tx, userID)
}

func (t *pgTx) CartItemByID(ctx context.Context, id uuid.UUID) (models.CartItem, error) {
	return cartItemByID(ctx, t.tx, id)
}

func (t *pgTx) CreateCartItem(ctx context.Context, item *models.CartItem) error {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now()
	}
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO cart_items (id, user_id, product_id, quantity, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		item.ID, item.UserID, item.ProductID, item.Quantity, item.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert cart item: %w", err)
	}
	return nil
}

func (t *pgTx) UpdateCartItemQuantity(ctx context.Context, itemID uuid.UUID, quantity int) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE cart_items SET quantity = $2 WHERE id = $1`, itemID, quantity)
	if err != nil {
		return fmt.Errorf("failed to update cart item: %w", err)
	}
	return checkAffected(res, "cart item", itemID)
}

func (t *pgTx) DeleteCartItem(ctx context.Context, itemID uuid.UUID) error {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM cart_items WHERE id = $1`, itemID)
	if err != nil {
		return fmt.Errorf("failed to delete cart item: %w", err)
	}
	return checkAffected(res, "cart item", itemID)
}

func (t *pgTx) DeleteCartForUser(ctx context.Context, userID uuid.UUID) error {
	_, err := t.tx.ExecContext(ctx, `DELETE FROM cart_items WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("failed to clear cart: %w", err)
	}
	return nil
}

func (t *pgTx) CreateOrder(ctx context.Context, o *models.Order) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now()
	}
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO orders (id, user_id, total, status, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		o.ID, o.UserID, o.Total, o.Status, o.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}
	return nil
}

func (t *pgTx) CreateOrderItem(ctx context.Context, item *models.OrderItem) error {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO order_items (id, order_id, product_id, quantity, price)
		VALUES ($1, $2, $3, $4, $5)`,
		item.ID, item.OrderID, item.ProductID, item.Quantity, item.Price)
	if err != nil {
		return fmt.Errorf("failed to insert order item: %w", err)
	}
	return nil
}

func (t *pgTx) DecrementStock(ctx context.Context, productID uuid.UUID, qty int) (int, error) {
	var remaining int
	err := t.tx.QueryRowContext(ctx, `
		UPDATE products
		SET stock_quantity = stock_quantity - $2, updated_at = now()
		WHERE id = $1 AND stock_quantity >= $2
		RETURNING stock_quantity`, productID, qty).Scan(&remaining)
	if errors.Is(err, sql.ErrNoRows) {
		// Either the product is gone or it holds fewer than qty units.
		p, perr := productByID(ctx, t.tx, productID)
		if perr != nil {
			return 0, perr
		}
		return 0, fmt.Errorf("%s: %w", p.Name, models.ErrInsufficientStock)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to decrement stock: %w", err)
	}
	return remaining, nil
}
