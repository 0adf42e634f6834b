package app

import (
	"context"

	"github.com/cimillas/stockhold/internal/clock"
	"github.com/cimillas/stockhold/internal/domain"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type OrderRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	GetHoldForUpdate(ctx context.Context, holdID string) (domain.Hold, error)
	MarkHoldRedeemed(ctx context.Context, holdID, paymentIntentID string) error
	GetProduct(ctx context.Context, productID string) (domain.Product, error)
	CreateOrder(ctx context.Context, order domain.Order) error
}

// OrderService converts holds into orders awaiting payment.
type OrderService struct {
	repo  OrderRepository
	clock clock.Clock
	opts  options
}

func NewOrderService(repo OrderRepository, clk clock.Clock, opts ...Option) *OrderService {
	return &OrderService{
		repo:  repo,
		clock: clk,
		opts:  newOptions(opts),
	}
}

// PlaceOrder redeems the hold and creates a pending_payment order for it.
// Stock is not moved: the hold's reservation already covers the units until
// payment reconciliation consumes or releases them.
func (s *OrderService) PlaceOrder(ctx context.Context, holdID string) (order domain.Order, err error) {
	ctx, span := tracer.Start(ctx, "OrderService.PlaceOrder", trace.WithAttributes(
		attribute.String("hold.id", holdID),
	))
	defer func() { endSpan(span, err) }()

	now := s.clock.Now()
	var result domain.Order

	err = s.repo.WithTx(ctx, func(txCtx context.Context) error {
		hold, err := s.repo.GetHoldForUpdate(txCtx, holdID)
		if err != nil {
			return err
		}
		if err := hold.ValidateUsable(now); err != nil {
			return err
		}

		product, err := s.repo.GetProduct(txCtx, hold.ProductID)
		if err != nil {
			return err
		}

		order := domain.Order{
			ID:          newID(),
			ProductID:   product.ID,
			HoldID:      hold.ID,
			Quantity:    hold.Quantity,
			AmountCents: domain.AmountCents(hold.Quantity, product.Price),
			Status:      domain.OrderStatusPendingPayment,
			CreatedAt:   now,
			UpdatedAt:   now,
		}

		if err := s.repo.MarkHoldRedeemed(txCtx, hold.ID, order.ID); err != nil {
			return err
		}
		if err := s.repo.CreateOrder(txCtx, order); err != nil {
			return err
		}

		result = order
		return nil
	})
	if err != nil {
		s.opts.logger.Info("place order rejected", zap.String("hold_id", holdID), zap.Error(err))
		return domain.Order{}, errors.WithMessage(err, "place order")
	}

	s.opts.metrics.OrderPlaced()
	s.opts.logger.Info("order placed",
		zap.String("order_id", result.ID),
		zap.String("hold_id", result.HoldID),
		zap.String("product_id", result.ProductID),
		zap.Int("quantity", result.Quantity),
		zap.Int64("amount_cents", result.AmountCents),
	)
	return result, nil
}
