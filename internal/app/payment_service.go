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

type PaymentRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	GetOrderForUpdate(ctx context.Context, orderID string) (domain.Order, error)
	GetHoldForUpdate(ctx context.Context, holdID string) (domain.Hold, error)
	GetProductForUpdate(ctx context.Context, productID string) (domain.Product, error)
	UpdateProductStock(ctx context.Context, product domain.Product) error
	FinalizeOrder(ctx context.Context, order domain.Order) error
	ResetHoldRedemption(ctx context.Context, holdID string) error
}

// PaymentReason explains what a payment event did to its order.
type PaymentReason string

const (
	PaymentApplied   PaymentReason = "applied"
	PaymentDuplicate PaymentReason = "duplicate"
	PaymentFinalized PaymentReason = "finalized"
	PaymentIgnored   PaymentReason = "pending"
)

type PaymentEventInput struct {
	OrderID        string
	Outcome        domain.PaymentOutcome
	IdempotencyKey string
}

// PaymentResult is the acknowledgement returned to the payment processor.
// Every reason is a success; only Applied events changed state.
type PaymentResult struct {
	Order   domain.Order
	Applied bool
	Reason  PaymentReason
}

// PaymentService reconciles payment outcomes against orders.
type PaymentService struct {
	repo  PaymentRepository
	clock clock.Clock
	opts  options
}

func NewPaymentService(repo PaymentRepository, clk clock.Clock, opts ...Option) *PaymentService {
	return &PaymentService{
		repo:  repo,
		clock: clk,
		opts:  newOptions(opts),
	}
}

// ProcessPaymentEvent applies at most one terminal transition per order.
// Rows are locked order, then hold, then product; the order lock serializes
// concurrent deliveries for the same order regardless of arrival order.
//
// ErrOrderNotFound means the order is not visible yet. Callers should ask
// the sender to retry rather than treat it as a permanent failure.
func (s *PaymentService) ProcessPaymentEvent(ctx context.Context, in PaymentEventInput) (res PaymentResult, err error) {
	ctx, span := tracer.Start(ctx, "PaymentService.ProcessPaymentEvent", trace.WithAttributes(
		attribute.String("order.id", in.OrderID),
		attribute.String("payment.outcome", string(in.Outcome)),
	))
	defer func() { endSpan(span, err) }()

	if in.IdempotencyKey == "" {
		return PaymentResult{}, domain.ErrIdempotencyKeyRequired
	}
	outcome, err := domain.ParsePaymentOutcome(string(in.Outcome))
	if err != nil {
		return PaymentResult{}, err
	}

	now := s.clock.Now()
	var (
		result  PaymentResult
		anomaly *domain.StockAnomaly
	)

	err = s.repo.WithTx(ctx, func(txCtx context.Context) error {
		result, anomaly = PaymentResult{}, nil

		order, err := s.repo.GetOrderForUpdate(txCtx, in.OrderID)
		if err != nil {
			return err
		}
		result.Order = order

		if order.PaymentIdempotencyKey != nil && *order.PaymentIdempotencyKey == in.IdempotencyKey {
			result.Reason = PaymentDuplicate
			return nil
		}
		if order.Status.IsTerminal() {
			result.Reason = PaymentFinalized
			return nil
		}
		if outcome == domain.PaymentPending {
			result.Reason = PaymentIgnored
			return nil
		}

		hold, err := s.repo.GetHoldForUpdate(txCtx, order.HoldID)
		holdFound := err == nil
		if err != nil && !errors.Is(err, domain.ErrHoldNotFound) {
			return err
		}

		product, err := s.repo.GetProductForUpdate(txCtx, order.ProductID)
		if err != nil {
			return err
		}

		switch outcome {
		case domain.PaymentSuccess:
			anomaly = product.Consume(order.Quantity)
			order.Status = domain.OrderStatusPaid
		case domain.PaymentFailure:
			anomaly = product.Release(order.Quantity)
			if holdFound && hold.IsRedeemed {
				if err := s.repo.ResetHoldRedemption(txCtx, hold.ID); err != nil {
					return err
				}
			}
			order.Status = domain.OrderStatusCancelled
		}

		key := in.IdempotencyKey
		order.PaymentIdempotencyKey = &key
		order.UpdatedAt = now

		if err := s.repo.UpdateProductStock(txCtx, product); err != nil {
			return err
		}
		if err := s.repo.FinalizeOrder(txCtx, order); err != nil {
			return err
		}

		result = PaymentResult{Order: order, Applied: true, Reason: PaymentApplied}
		return nil
	})
	if err != nil {
		s.failed(in, err)
		return PaymentResult{}, errors.WithMessage(err, "process payment event")
	}

	s.opts.metrics.PaymentEvent(string(outcome), string(result.Reason))
	s.opts.recordAnomaly(anomaly, zap.String("order_id", result.Order.ID))

	if !result.Applied {
		s.opts.logger.Info("payment event ignored",
			zap.String("order_id", in.OrderID),
			zap.String("reason", string(result.Reason)),
			zap.String("status", string(result.Order.Status)),
		)
		return result, nil
	}

	s.opts.logger.Info("payment event processed",
		zap.String("order_id", result.Order.ID),
		zap.String("outcome", string(outcome)),
		zap.String("status", string(result.Order.Status)),
	)
	s.opts.invalidate(ctx, result.Order.ProductID)
	return result, nil
}

func (s *PaymentService) failed(in PaymentEventInput, err error) {
	switch {
	case errors.Is(err, domain.ErrOrderNotFound), errors.Is(err, domain.ErrInvalidID):
		s.opts.metrics.PaymentEvent(string(in.Outcome), "order_not_found")
		s.opts.logger.Warn("payment event for unknown order", zap.String("order_id", in.OrderID))
	case errors.Is(err, domain.ErrIdempotencyConflict):
		s.opts.metrics.PaymentEvent(string(in.Outcome), "idempotency_conflict")
		s.opts.logger.Warn("payment idempotency key reused across orders",
			zap.String("order_id", in.OrderID),
			zap.String("idempotency_key", in.IdempotencyKey),
		)
	default:
		s.opts.metrics.PaymentEvent(string(in.Outcome), "error")
		s.opts.logger.Error("payment event failed", zap.String("order_id", in.OrderID), zap.Error(err))
	}
}
