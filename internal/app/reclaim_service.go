package app

import (
	"context"
	"time"

	"github.com/cimillas/stockhold/internal/clock"
	"github.com/cimillas/stockhold/internal/domain"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type ReclaimRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	GetHoldForUpdate(ctx context.Context, holdID string) (domain.Hold, error)
	GetProductForUpdate(ctx context.Context, productID string) (domain.Product, error)
	UpdateProductStock(ctx context.Context, product domain.Product) error
	MarkHoldReleased(ctx context.Context, holdID string, at time.Time) error
	ListReclaimableHolds(ctx context.Context, now time.Time, limit int) ([]string, error)
}

// ReclaimReason explains the outcome of a reclaim attempt.
type ReclaimReason string

const (
	ReclaimReleased        ReclaimReason = "released"
	ReclaimMissing         ReclaimReason = "missing"
	ReclaimAlreadyReleased ReclaimReason = "already_released"
	ReclaimOrdered         ReclaimReason = "ordered"
	ReclaimNotExpired      ReclaimReason = "not_expired"
	ReclaimProductMissing  ReclaimReason = "product_missing"
)

type ReclaimResult struct {
	HoldID   string
	Released bool
	Reason   ReclaimReason
}

const (
	triggerScheduled = "scheduled"
	triggerSweep     = "sweep"
)

// ReclaimService returns the reservation of expired, never-ordered holds.
// It may be invoked any number of times per hold, early or late.
type ReclaimService struct {
	repo  ReclaimRepository
	clock clock.Clock
	opts  options
}

func NewReclaimService(repo ReclaimRepository, clk clock.Clock, opts ...Option) *ReclaimService {
	return &ReclaimService{
		repo:  repo,
		clock: clk,
		opts:  newOptions(opts),
	}
}

// ReclaimExpiredHold releases the hold if it is still reclaimable once its
// row is locked. Every other state is a successful no-op; only
// infrastructure failures are returned as errors.
func (s *ReclaimService) ReclaimExpiredHold(ctx context.Context, holdID string) (ReclaimResult, error) {
	return s.reclaim(ctx, holdID, triggerScheduled)
}

func (s *ReclaimService) reclaim(ctx context.Context, holdID, trigger string) (res ReclaimResult, err error) {
	ctx, span := tracer.Start(ctx, "ReclaimService.ReclaimExpiredHold", trace.WithAttributes(
		attribute.String("hold.id", holdID),
		attribute.String("reclaim.trigger", trigger),
	))
	defer func() {
		span.SetAttributes(attribute.String("reclaim.reason", string(res.Reason)))
		endSpan(span, err)
	}()

	now := s.clock.Now()
	var (
		result  ReclaimResult
		anomaly *domain.StockAnomaly
		product domain.Product
	)

	err = s.repo.WithTx(ctx, func(txCtx context.Context) error {
		result, anomaly = ReclaimResult{HoldID: holdID}, nil

		hold, err := s.repo.GetHoldForUpdate(txCtx, holdID)
		if errors.Is(err, domain.ErrHoldNotFound) || errors.Is(err, domain.ErrInvalidID) {
			result.Reason = ReclaimMissing
			return nil
		}
		if err != nil {
			return err
		}

		switch {
		case hold.ReleasedAt != nil:
			result.Reason = ReclaimAlreadyReleased
			return nil
		case hold.PaymentIntentID != nil:
			result.Reason = ReclaimOrdered
			return nil
		case !hold.Reclaimable(now):
			result.Reason = ReclaimNotExpired
			return nil
		}

		product, err = s.repo.GetProductForUpdate(txCtx, hold.ProductID)
		if errors.Is(err, domain.ErrProductNotFound) {
			result.Reason = ReclaimProductMissing
			return nil
		}
		if err != nil {
			return err
		}

		anomaly = product.Release(hold.Quantity)
		if err := s.repo.UpdateProductStock(txCtx, product); err != nil {
			return err
		}
		if err := s.repo.MarkHoldReleased(txCtx, hold.ID, now); err != nil {
			return err
		}

		result.Released = true
		result.Reason = ReclaimReleased
		return nil
	})
	if err != nil {
		s.opts.logger.Error("reclaim hold failed", zap.String("hold_id", holdID), zap.Error(err))
		return ReclaimResult{HoldID: holdID}, errors.WithMessage(err, "reclaim hold")
	}

	s.opts.recordAnomaly(anomaly, zap.String("hold_id", holdID))
	if !result.Released {
		s.opts.logger.Debug("reclaim skipped",
			zap.String("hold_id", holdID),
			zap.String("reason", string(result.Reason)),
		)
		return result, nil
	}

	s.opts.metrics.HoldReclaimed(trigger)
	s.opts.logger.Info("hold reclaimed",
		zap.String("hold_id", holdID),
		zap.String("product_id", product.ID),
		zap.String("trigger", trigger),
	)
	s.opts.invalidate(ctx, product.ID)
	return result, nil
}

// SweepExpired reclaims up to limit expired holds that were neither ordered
// nor released, covering scheduler deliveries that never arrived. Each hold
// is reclaimed in its own transaction.
func (s *ReclaimService) SweepExpired(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}
	ids, err := s.repo.ListReclaimableHolds(ctx, s.clock.Now(), limit)
	if err != nil {
		return 0, errors.WithMessage(err, "list reclaimable holds")
	}

	released := 0
	var errs []error
	for _, id := range ids {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		res, err := s.reclaim(ctx, id, triggerSweep)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if res.Released {
			released++
		}
	}
	if len(errs) > 0 {
		s.opts.logger.Warn("sweep finished with errors", zap.Int("released", released), zap.Int("errors", len(errs)))
		return released, errs[0]
	}
	if released > 0 {
		s.opts.logger.Info("sweep released expired holds", zap.Int("released", released))
	}
	return released, nil
}
