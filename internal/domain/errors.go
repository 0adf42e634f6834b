package domain

import (
	"errors"
	"fmt"
)

var (
	ErrProductNotFound        = errors.New("product not found")
	ErrInsufficientStock      = errors.New("insufficient stock")
	ErrInvalidQuantity        = errors.New("invalid quantity")
	ErrInvalidPrice           = errors.New("invalid price")
	ErrProductNameRequired    = errors.New("product name required")
	ErrHoldNotFound           = errors.New("hold not found")
	ErrHoldAlreadyRedeemed    = errors.New("hold already redeemed")
	ErrHoldReleased           = errors.New("hold released")
	ErrHoldExpired            = errors.New("hold expired")
	ErrOrderNotFound          = errors.New("order not found")
	ErrIdempotencyKeyRequired = errors.New("idempotency key required")
	ErrIdempotencyConflict    = errors.New("idempotency conflict")
	ErrInvalidOutcome         = errors.New("invalid payment outcome")
	ErrInvalidID              = errors.New("invalid id")
)

// InsufficientStockError reports how much of a product can still be held.
// It matches ErrInsufficientStock with errors.Is.
type InsufficientStockError struct {
	ProductID   string
	ProductName string
	Sellable    int
	Requested   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("only %d unit(s) of '%s' available", e.Sellable, e.ProductName)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}
