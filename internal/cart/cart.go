// Package cart implements the per-user shopping cart: add with
// merge-on-repeat, quantity updates, removal, and listing with a computed
// total. Stock is validated against the live product on every mutation but
// never written here; only checkout decrements stock.
package cart

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rolandlluka/simple-ecommerce/internal/models"
	"github.com/rolandlluka/simple-ecommerce/internal/store"
)

type Service struct {
	store store.Store
}

func NewService(s store.Store) *Service {
	return &Service{store: s}
}

// View is the cart listing handed to the rendering layer.
type View struct {
	Lines []models.CartLine `json:"lines"`
	Total decimal.Decimal   `json:"total"`
}

// Add puts quantity units of a product into the user's cart. A repeat add
// of the same product merges by summation. Fails with
// models.ErrInsufficientStock when the product cannot cover the resulting
// quantity; nothing is written in that case.
func (s *Service) Add(ctx context.Context, userID, productID uuid.UUID, quantity int) error {
	if quantity < 1 {
		return fmt.Errorf("quantity must be at least 1: %w", models.ErrValidation)
	}

	return s.store.WithinTx(ctx, func(tx store.Tx) error {
		product, err := tx.ProductByID(ctx, productID)
		if err != nil {
			return err
		}
		if product.StockQuantity < quantity {
			return fmt.Errorf("%s: %w", product.Name, models.ErrInsufficientStock)
		}

		lines, err := tx.CartLinesForUser(ctx, userID)
		if err != nil {
			return err
		}
		for _, line := range lines {
			if line.Item.ProductID != productID {
				continue
			}
			merged := line.Item.Quantity + quantity
			if product.StockQuantity < merged {
				return fmt.Errorf("%s: %w", product.Name, models.ErrInsufficientStock)
			}
			return tx.UpdateCartItemQuantity(ctx, line.Item.ID, merged)
		}

		item := models.CartItem{UserID: userID, ProductID: productID, Quantity: quantity}
		return tx.CreateCartItem(ctx, &item)
	})
}

// SetQuantity replaces the quantity of a cart item the user owns.
func (s *Service) SetQuantity(ctx context.Context, userID, itemID uuid.UUID, quantity int) error {
	if quantity < 1 {
		return fmt.Errorf("quantity must be at least 1: %w", models.ErrValidation)
	}

	return s.store.WithinTx(ctx, func(tx store.Tx) error {
		item, err := tx.CartItemByID(ctx, itemID)
		if err != nil {
			return err
		}
		if item.UserID != userID {
			return fmt.Errorf("cart item %s: %w", itemID, models.ErrForbidden)
		}

		product, err := tx.ProductByID(ctx, item.ProductID)
		if err != nil {
			return err
		}
		if product.StockQuantity < quantity {
			return fmt.Errorf("%s: %w", product.Name, models.ErrInsufficientStock)
		}
		return tx.UpdateCartItemQuantity(ctx, itemID, quantity)
	})
}

// Remove deletes a cart item the user owns.
func (s *Service) Remove(ctx context.Context, userID, itemID uuid.UUID) error {
	return s.store.WithinTx(ctx, func(tx store.Tx) error {
		item, err := tx.CartItemByID(ctx, itemID)
		if err != nil {
			return err
		}
		if item.UserID != userID {
			return fmt.Errorf("cart item %s: %w", itemID, models.ErrForbidden)
		}
		return tx.DeleteCartItem(ctx, itemID)
	})
}

// ListForUser returns the user's cart lines in insertion order together
// with the running total.
func (s *Service) ListForUser(ctx context.Context, userID uuid.UUID) (View, error) {
	lines, err := s.store.CartLinesForUser(ctx, userID)
	if err != nil {
		return View{}, err
	}
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(line.LineTotal())
	}
	return View{Lines: lines, Total: total}, nil
}
