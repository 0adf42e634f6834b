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

type HoldRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	GetProductForUpdate(ctx context.Context, productID string) (domain.Product, error)
	UpdateProductStock(ctx context.Context, product domain.Product) error
	CreateHold(ctx context.Context, hold domain.Hold) error
}

// HoldService issues time-bounded reservations against a product's stock.
type HoldService struct {
	repo  HoldRepository
	clock clock.Clock
	opts  options
}

func NewHoldService(repo HoldRepository, clk clock.Clock, opts ...Option) *HoldService {
	return &HoldService{
		repo:  repo,
		clock: clk,
		opts:  newOptions(opts),
	}
}

type CreateHoldInput struct {
	ProductID string
	Quantity  int
}

// CreateHold locks the product, reserves the quantity and records the hold
// in one transaction, so concurrent callers serialize on the product row and
// cannot oversell. Expiry is scheduled only after commit.
func (s *HoldService) CreateHold(ctx context.Context, in CreateHoldInput) (hold domain.Hold, err error) {
	ctx, span := tracer.Start(ctx, "HoldService.CreateHold", trace.WithAttributes(
		attribute.String("product.id", in.ProductID),
		attribute.Int("hold.quantity", in.Quantity),
	))
	defer func() { endSpan(span, err) }()

	if in.Quantity <= 0 {
		return domain.Hold{}, domain.ErrInvalidQuantity
	}

	now := s.clock.Now()
	var result domain.Hold

	err = s.repo.WithTx(ctx, func(txCtx context.Context) error {
		product, err := s.repo.GetProductForUpdate(txCtx, in.ProductID)
		if err != nil {
			return err
		}
		if err := product.Reserve(in.Quantity); err != nil {
			return err
		}

		hold := domain.Hold{
			ID:        newID(),
			ProductID: product.ID,
			Quantity:  in.Quantity,
			ExpiresAt: now.Add(s.opts.holdTTL),
			CreatedAt: now,
		}
		if err := s.repo.CreateHold(txCtx, hold); err != nil {
			return err
		}
		if err := s.repo.UpdateProductStock(txCtx, product); err != nil {
			return err
		}

		result = hold
		return nil
	})
	if err != nil {
		s.rejected(in, err)
		return domain.Hold{}, errors.WithMessage(err, "create hold")
	}

	s.opts.metrics.HoldCreated()
	s.opts.logger.Info("hold created",
		zap.String("hold_id", result.ID),
		zap.String("product_id", result.ProductID),
		zap.Int("quantity", result.Quantity),
		zap.Time("expires_at", result.ExpiresAt),
	)

	s.opts.invalidate(ctx, result.ProductID)
	s.schedule(ctx, result)
	return result, nil
}

func (s *HoldService) schedule(ctx context.Context, hold domain.Hold) {
	if s.opts.scheduler == nil {
		return
	}
	if err := s.opts.scheduler.ScheduleReclaim(ctx, hold.ID, hold.ExpiresAt); err != nil {
		// The periodic sweep picks up holds whose reclaim was never scheduled.
		s.opts.logger.Error("schedule hold reclaim failed",
			zap.String("hold_id", hold.ID),
			zap.Time("due_at", hold.ExpiresAt),
			zap.Error(err),
		)
	}
}

func (s *HoldService) rejected(in CreateHoldInput, err error) {
	var reason string
	switch {
	case errors.Is(err, domain.ErrInsufficientStock):
		reason = "insufficient_stock"
	case errors.Is(err, domain.ErrProductNotFound):
		reason = "product_not_found"
	case errors.Is(err, domain.ErrInvalidID):
		reason = "invalid_id"
	default:
		s.opts.logger.Error("create hold failed", zap.String("product_id", in.ProductID), zap.Error(err))
		return
	}
	s.opts.metrics.HoldRejected(reason)
	s.opts.logger.Info("hold rejected",
		zap.String("product_id", in.ProductID),
		zap.Int("quantity", in.Quantity),
		zap.String("reason", reason),
	)
}

// HoldTTL reports the lifetime given to new holds.
func (s *HoldService) HoldTTL() time.Duration {
	return s.opts.holdTTL
}
