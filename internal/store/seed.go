package store

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/rolandlluka/simple-ecommerce/internal/models"
)

// SeedDemo loads a small demo catalog and two users. Intended for the
// in-memory store in local development; safe to call on an empty database.
func SeedDemo(ctx context.Context, s Store, hashPassword func(string) string) error {
	users := []models.User{
		{Email: "admin@shop.local", Name: "Admin", IsAdmin: true, PasswordHash: hashPassword("admin")},
		{Email: "customer@shop.local", Name: "Customer", PasswordHash: hashPassword("customer")},
	}
	for i := range users {
		if err := s.CreateUser(ctx, &users[i]); err != nil {
			return fmt.Errorf("failed to seed user %s: %w", users[i].Email, err)
		}
	}

	products := []models.Product{
		{Name: "Laptop", Description: "15-inch developer laptop", Price: decimal.RequireFromString("999.99"), StockQuantity: 100},
		{Name: "Smartphone", Description: "Flagship smartphone", Price: decimal.RequireFromString("599.99"), StockQuantity: 200},
		{Name: "Headphones", Description: "Over-ear noise cancelling", Price: decimal.RequireFromString("99.99"), StockQuantity: 150},
	}
	for i := range products {
		if err := s.CreateProduct(ctx, &products[i]); err != nil {
			return fmt.Errorf("failed to seed product %s: %w", products[i].Name, err)
		}
	}
	return nil
}
