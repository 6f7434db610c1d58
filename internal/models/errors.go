package models

import "errors"

// Domain errors. Callers match with errors.Is; the HTTP layer maps them to
// status codes and user-visible messages.
var (
	ErrInsufficientStock = errors.New("not enough stock available")
	ErrEmptyCart         = errors.New("cart is empty")
	ErrForbidden         = errors.New("forbidden")
	ErrNotFound          = errors.New("not found")
	ErrValidation        = errors.New("validation failed")
)
