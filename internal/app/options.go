package app

import (
	"context"
	"time"

	"github.com/cimillas/stockhold/internal/domain"
	"github.com/cimillas/stockhold/internal/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("github.com/cimillas/stockhold/internal/app")

// ReclaimScheduler arranges for ReclaimExpiredHold(holdID) to run at or
// after at. Delivery is at-least-once.
type ReclaimScheduler interface {
	ScheduleReclaim(ctx context.Context, holdID string, at time.Time) error
}

// ProductCache holds derived product read views. It is never trusted for
// correctness and must be invalidated after every ledger mutation.
type ProductCache interface {
	Get(ctx context.Context, productID string) (domain.ProductView, bool, error)
	Set(ctx context.Context, view domain.ProductView) error
	Invalidate(ctx context.Context, productID string) error
}

type options struct {
	logger    *zap.Logger
	metrics   *metrics.Metrics
	cache     ProductCache
	scheduler ReclaimScheduler
	holdTTL   time.Duration
}

// Option configures the collaborators of a service.
type Option func(*options)

const defaultHoldTTL = 2 * time.Minute

func newOptions(opts []Option) options {
	o := options{
		logger:  zap.NewNop(),
		cache:   nopCache{},
		holdTTL: defaultHoldTTL,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

func WithCache(c ProductCache) Option {
	return func(o *options) {
		if c != nil {
			o.cache = c
		}
	}
}

// WithScheduler sets where new holds register their expiry.
func WithScheduler(s ReclaimScheduler) Option {
	return func(o *options) {
		o.scheduler = s
	}
}

// WithHoldTTL overrides the default lifetime of new holds.
func WithHoldTTL(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.holdTTL = d
		}
	}
}

// invalidate drops the cached view of a product. Failures only leave a
// stale entry until its TTL runs out, so they are logged and swallowed.
func (o options) invalidate(ctx context.Context, productID string) {
	if err := o.cache.Invalidate(ctx, productID); err != nil {
		o.logger.Warn("product cache invalidation failed",
			zap.String("product_id", productID),
			zap.Error(err),
		)
	}
}

func (o options) recordAnomaly(a *domain.StockAnomaly, fields ...zap.Field) {
	if a == nil {
		return
	}
	o.metrics.StockAnomaly(string(a.Operation))
	o.logger.Warn("stock invariant anomaly", append([]zap.Field{
		zap.String("product_id", a.ProductID),
		zap.String("operation", string(a.Operation)),
		zap.Int("requested", a.Requested),
		zap.Int("reserved_before", a.ReservedBefore),
		zap.Int("available_before", a.AvailableBefore),
	}, fields...)...)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

type nopCache struct{}

func (nopCache) Get(context.Context, string) (domain.ProductView, bool, error) {
	return domain.ProductView{}, false, nil
}

func (nopCache) Set(context.Context, domain.ProductView) error { return nil }

func (nopCache) Invalidate(context.Context, string) error { return nil }
