// Package checkout converts a user's cart into an immutable order. The
// whole sequence (validate stock, create the order and its items,
// decrement inventory, clear the cart) runs inside one store transaction,
// so a failure on any line leaves no trace of the attempt.
package checkout

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rolandlluka/simple-ecommerce/internal/models"
	"github.com/rolandlluka/simple-ecommerce/internal/notify"
	"github.com/rolandlluka/simple-ecommerce/internal/store"
)

// DefaultLowStockThreshold is used when the engine is constructed with a
// non-positive threshold.
const DefaultLowStockThreshold = 10

type Engine struct {
	store     store.Store
	publisher notify.Publisher
	threshold int
}

func NewEngine(s store.Store, p notify.Publisher, lowStockThreshold int) *Engine {
	if lowStockThreshold <= 0 {
		lowStockThreshold = DefaultLowStockThreshold
	}
	return &Engine{store: s, publisher: p, threshold: lowStockThreshold}
}

// Checkout places an order for everything in the user's cart.
//
// On success the order is committed, the cart is empty, and every product's
// stock is decremented by the purchased quantity. Low-stock events for
// products that crossed the threshold are published after commit; a publish
// failure is logged and never surfaced to the caller, since the order
// already exists.
//
// Fails with models.ErrEmptyCart when the cart holds no rows and with
// models.ErrInsufficientStock (naming the product) when any line cannot be
// covered by live stock. On failure nothing persists: no order, no order
// items, no decrements, and the cart is untouched.
func (e *Engine) Checkout(ctx context.Context, userID uuid.UUID) (models.Order, error) {
	var (
		order  models.Order
		events []notify.LowStockEvent
	)

	err := e.store.WithinTx(ctx, func(tx store.Tx) error {
		lines, err := tx.CartLinesForUser(ctx, userID)
		if err != nil {
			return err
		}
		if len(lines) == 0 {
			return models.ErrEmptyCart
		}

		total := decimal.Zero
		for _, line := range lines {
			total = total.Add(line.LineTotal())
		}

		order = models.Order{
			UserID: userID,
			Total:  total,
			Status: models.OrderStatusCompleted,
		}
		if err := tx.CreateOrder(ctx, &order); err != nil {
			return err
		}

		for _, line := range lines {
			item := models.OrderItem{
				OrderID:   order.ID,
				ProductID: line.Product.ID,
				Quantity:  line.Item.Quantity,
				Price:     line.Product.Price,
			}
			if err := tx.CreateOrderItem(ctx, &item); err != nil {
				return err
			}

			remaining, err := tx.DecrementStock(ctx, line.Product.ID, line.Item.Quantity)
			if err != nil {
				return err
			}
			if remaining <= e.threshold {
				events = append(events, notify.LowStockEvent{
					ProductID:     line.Product.ID.String(),
					Name:          line.Product.Name,
					Description:   line.Product.Description,
					Price:         line.Product.Price,
					StockQuantity: remaining,
					OccurredAt:    time.Now().Format(time.RFC3339),
				})
			}
		}

		return tx.DeleteCartForUser(ctx, userID)
	})
	if err != nil {
		return models.Order{}, fmt.Errorf("checkout failed: %w", err)
	}

	// The transaction is committed; notification delivery is out of band
	// and must not fail the checkout.
	for _, event := range events {
		if err := e.publisher.Publish(ctx, notify.LowStockRoutingKey, event); err != nil {
			log.Printf("Failed to publish low-stock event for product %s: %v", event.Name, err)
		}
	}

	return order, nil
}
