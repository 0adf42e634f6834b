package postgres

import (
	"context"

	"github.com/cimillas/stockhold/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

const (
	orderColumns = `id, product_id, hold_id, quantity, amount_cents, status, payment_idempotency_key, created_at, updated_at`

	ordersHoldIDKey         = "orders_hold_id_key"
	ordersPaymentKeyKey     = "orders_payment_idempotency_key_key"
	holdsPaymentIntentIDKey = "holds_payment_intent_id_key"
)

// OrderRepository persists orders and the hold transitions tied to them.
type OrderRepository struct {
	conn
}

func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{conn{pool: pool}}
}

// MarkHoldRedeemed links the hold to the order that consumed it.
func (r *OrderRepository) MarkHoldRedeemed(ctx context.Context, holdID, paymentIntentID string) error {
	const stmt = `
UPDATE holds
SET is_redeemed = TRUE, payment_intent_id = $2
WHERE id = $1`
	tag, err := r.exec(ctx, stmt, holdID, paymentIntentID)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		if isUniqueViolation(err) && constraintName(err) == holdsPaymentIntentIDKey {
			return domain.ErrHoldAlreadyRedeemed
		}
		return errors.Wrap(err, "mark hold redeemed")
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrHoldNotFound
	}
	return nil
}

// ResetHoldRedemption clears is_redeemed after a failed payment. The
// payment intent link stays so the hold cannot be ordered or reclaimed again.
func (r *OrderRepository) ResetHoldRedemption(ctx context.Context, holdID string) error {
	tag, err := r.exec(ctx, `UPDATE holds SET is_redeemed = FALSE WHERE id = $1`, holdID)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return errors.Wrap(err, "reset hold redemption")
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrHoldNotFound
	}
	return nil
}

func (r *OrderRepository) CreateOrder(ctx context.Context, order domain.Order) error {
	const stmt = `
INSERT INTO orders (id, product_id, hold_id, quantity, amount_cents, status, payment_idempotency_key, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := r.exec(ctx, stmt,
		order.ID,
		order.ProductID,
		order.HoldID,
		order.Quantity,
		order.AmountCents,
		string(order.Status),
		order.PaymentIdempotencyKey,
		order.CreatedAt,
		order.UpdatedAt,
	)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		if isUniqueViolation(err) {
			switch constraintName(err) {
			case ordersHoldIDKey:
				return domain.ErrHoldAlreadyRedeemed
			case ordersPaymentKeyKey:
				return domain.ErrIdempotencyConflict
			}
		}
		if isForeignKeyViolation(err) {
			return domain.ErrHoldNotFound
		}
		return errors.Wrap(err, "create order")
	}
	return nil
}

func (r *OrderRepository) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	return r.getOrder(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, orderID)
}

// GetOrderForUpdate reads an order and locks its row. Concurrent payment
// events for the same order serialize here.
func (r *OrderRepository) GetOrderForUpdate(ctx context.Context, orderID string) (domain.Order, error) {
	return r.getOrder(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, orderID)
}

func (r *OrderRepository) getOrder(ctx context.Context, query, orderID string) (domain.Order, error) {
	var (
		o      domain.Order
		status string
	)
	err := r.queryRow(ctx, query, orderID).Scan(
		&o.ID,
		&o.ProductID,
		&o.HoldID,
		&o.Quantity,
		&o.AmountCents,
		&status,
		&o.PaymentIdempotencyKey,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.Order{}, domain.ErrInvalidID
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, errors.Wrap(err, "get order")
	}
	o.Status = domain.OrderStatus(status)
	return o, nil
}

// FinalizeOrder stores the terminal status and the idempotency key of the
// event that produced it.
func (r *OrderRepository) FinalizeOrder(ctx context.Context, order domain.Order) error {
	const stmt = `
UPDATE orders
SET status = $2, payment_idempotency_key = $3, updated_at = $4
WHERE id = $1`
	tag, err := r.exec(ctx, stmt, order.ID, string(order.Status), order.PaymentIdempotencyKey, order.UpdatedAt)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		if isUniqueViolation(err) && constraintName(err) == ordersPaymentKeyKey {
			return domain.ErrIdempotencyConflict
		}
		return errors.Wrap(err, "finalize order")
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}
