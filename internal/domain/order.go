package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus values are persisted verbatim; do not rename them.
type OrderStatus string

const (
	OrderStatusPendingPayment OrderStatus = "pending_payment"
	OrderStatusPaid           OrderStatus = "paid"
	OrderStatusCancelled      OrderStatus = "cancelled"
	// OrderStatusFailed is never produced by payment reconciliation but
	// may exist in stored data.
	OrderStatusFailed OrderStatus = "failed"
)

// IsTerminal reports whether no payment event may move the order further.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusPaid, OrderStatusCancelled, OrderStatusFailed:
		return true
	}
	return false
}

func (s OrderStatus) Valid() bool {
	return s == OrderStatusPendingPayment || s.IsTerminal()
}

// Order is a purchase created from a redeemed hold.
type Order struct {
	ID                    string
	ProductID             string
	HoldID                string
	Quantity              int
	AmountCents           int64
	Status                OrderStatus
	PaymentIdempotencyKey *string
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

var hundred = decimal.NewFromInt(100)

// AmountCents computes quantity * unit price in cents, rounding half away
// from zero.
func AmountCents(quantity int, unitPrice decimal.Decimal) int64 {
	return unitPrice.Mul(hundred).Mul(decimal.NewFromInt(int64(quantity))).Round(0).IntPart()
}
