package postgres

import (
	"context"
	"time"

	"github.com/cimillas/stockhold/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

const holdColumns = `id, product_id, quantity, expires_at, is_redeemed, released_at, payment_intent_id, created_at`

type HoldRepository struct {
	conn
}

func NewHoldRepository(pool *pgxpool.Pool) *HoldRepository {
	return &HoldRepository{conn{pool: pool}}
}

func (r *HoldRepository) CreateHold(ctx context.Context, hold domain.Hold) error {
	const stmt = `
INSERT INTO holds (id, product_id, quantity, expires_at, is_redeemed, released_at, payment_intent_id, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.exec(ctx, stmt,
		hold.ID,
		hold.ProductID,
		hold.Quantity,
		hold.ExpiresAt,
		hold.IsRedeemed,
		hold.ReleasedAt,
		hold.PaymentIntentID,
		hold.CreatedAt,
	)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		if isForeignKeyViolation(err) {
			return domain.ErrProductNotFound
		}
		return errors.Wrap(err, "create hold")
	}
	return nil
}

// GetHoldForUpdate reads a hold and locks its row until the surrounding
// transaction ends.
func (c conn) GetHoldForUpdate(ctx context.Context, holdID string) (domain.Hold, error) {
	h, err := scanHold(c.queryRow(ctx, `SELECT `+holdColumns+` FROM holds WHERE id = $1 FOR UPDATE`, holdID))
	if err != nil {
		if isInvalidUUID(err) {
			return domain.Hold{}, domain.ErrInvalidID
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Hold{}, domain.ErrHoldNotFound
		}
		return domain.Hold{}, errors.Wrap(err, "get hold")
	}
	return h, nil
}

// MarkHoldReleased records that the hold's reservation was returned.
func (r *HoldRepository) MarkHoldReleased(ctx context.Context, holdID string, at time.Time) error {
	tag, err := r.exec(ctx, `UPDATE holds SET released_at = $2 WHERE id = $1`, holdID, at)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return errors.Wrap(err, "mark hold released")
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrHoldNotFound
	}
	return nil
}

// ListReclaimableHolds returns up to limit expired holds that were neither
// ordered nor released, oldest expiry first. The result is only a hint:
// each hold is re-checked under its row lock before being released.
func (r *HoldRepository) ListReclaimableHolds(ctx context.Context, now time.Time, limit int) ([]string, error) {
	const query = `
SELECT id
FROM holds
WHERE released_at IS NULL AND payment_intent_id IS NULL AND expires_at <= $1
ORDER BY expires_at ASC
LIMIT $2`
	rows, err := r.query(ctx, query, now, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list reclaimable holds")
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, errors.Wrap(err, "scan reclaimable holds")
	}
	return ids, nil
}

func scanHold(row pgx.Row) (domain.Hold, error) {
	var h domain.Hold
	err := row.Scan(
		&h.ID,
		&h.ProductID,
		&h.Quantity,
		&h.ExpiresAt,
		&h.IsRedeemed,
		&h.ReleasedAt,
		&h.PaymentIntentID,
		&h.CreatedAt,
	)
	return h, err
}
