// Package store defines the persistence boundary for the shop. Two
// implementations exist: an in-memory store used for tests and local
// development, and a PostgreSQL store for real deployments.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/rolandlluka/simple-ecommerce/internal/models"
)

// ListOptions controls product listing. Zero Limit means no limit.
type ListOptions struct {
	InStockOnly bool
	Limit       int
	Offset      int
}

// Store is the full persistence surface. Reads outside a transaction see
// committed state only.
type Store interface {
	// Products
	CreateProduct(ctx context.Context, p *models.Product) error
	UpdateProduct(ctx context.Context, p *models.Product) error
	DeleteProduct(ctx context.Context, id uuid.UUID) error
	ProductByID(ctx context.Context, id uuid.UUID) (models.Product, error)
	ListProducts(ctx context.Context, opts ListOptions) ([]models.Product, error)

	// Users
	CreateUser(ctx context.Context, u *models.User) error
	UserByID(ctx context.Context, id uuid.UUID) (models.User, error)
	UserByEmail(ctx context.Context, email string) (models.User, error)
	ListAdmins(ctx context.Context) ([]models.User, error)

	// Cart
	CartLinesForUser(ctx context.Context, userID uuid.UUID) ([]models.CartLine, error)
	CartItemByID(ctx context.Context, id uuid.UUID) (models.CartItem, error)

	// Orders
	OrderByID(ctx context.Context, id uuid.UUID) (models.Order, error)
	OrderItems(ctx context.Context, orderID uuid.UUID) ([]models.OrderItem, error)
	OrdersForUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Order, error)
	OrdersBetween(ctx context.Context, from, to time.Time) ([]models.Order, error)
	ProductSalesBetween(ctx context.Context, from, to time.Time) ([]models.ProductSales, error)

	// WithinTx runs fn inside a single atomic transaction. If fn returns an
	// error every mutation made through the Tx is rolled back and the error
	// is returned unchanged.
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the mutation surface available inside a transaction. Cart and
// checkout writes go through here so that validate-then-write sequences
// are atomic with respect to concurrent requests.
type Tx interface {
	ProductByID(ctx context.Context, id uuid.UUID) (models.Product, error)

	CartLinesForUser(ctx context.Context, userID uuid.UUID) ([]models.CartLine, error)
	CartItemByID(ctx context.Context, id uuid.UUID) (models.CartItem, error)
	CreateCartItem(ctx context.Context, item *models.CartItem) error
	UpdateCartItemQuantity(ctx context.Context, itemID uuid.UUID, quantity int) error
	DeleteCartItem(ctx context.Context, itemID uuid.UUID) error
	DeleteCartForUser(ctx context.Context, userID uuid.UUID) error

	CreateOrder(ctx context.Context, o *models.Order) error
	CreateOrderItem(ctx context.Context, item *models.OrderItem) error

	// DecrementStock atomically checks and decrements a product's stock,
	// returning the remaining quantity. It fails with
	// models.ErrInsufficientStock when the product holds fewer than qty
	// units; concurrent decrements never drive stock negative.
	DecrementStock(ctx context.Context, productID uuid.UUID, qty int) (int, error)
}
