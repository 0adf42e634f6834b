package app

import (
	"context"
	"testing"
	"time"

	"github.com/cimillas/stockhold/internal/clock"
	"github.com/cimillas/stockhold/internal/domain"
	"github.com/cimillas/stockhold/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

type paymentFixture struct {
	store   *fakeStore
	clock   *clock.Manual
	holds   *HoldService
	orders  *OrderService
	pay     *PaymentService
	reclaim *ReclaimService
	metrics *metrics.Metrics
	cache   *memoryCache
}

func newPaymentFixture(t *testing.T, available int) *paymentFixture {
	t.Helper()
	store := newFakeStore()
	store.addProduct("p-1", available, 0, "10.00")
	clk := clock.NewManual(time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC))
	m := metrics.New(prometheus.NewRegistry())
	cache := newMemoryCache()
	opts := []Option{WithMetrics(m), WithCache(cache), WithHoldTTL(2 * time.Minute)}
	return &paymentFixture{
		store:   store,
		clock:   clk,
		holds:   NewHoldService(store, clk, opts...),
		orders:  NewOrderService(store, clk, opts...),
		pay:     NewPaymentService(store, clk, opts...),
		reclaim: NewReclaimService(store, clk, opts...),
		metrics: m,
		cache:   cache,
	}
}

func (f *paymentFixture) placeOrder(t *testing.T, qty int) domain.Order {
	t.Helper()
	hold, err := f.holds.CreateHold(context.Background(), CreateHoldInput{ProductID: "p-1", Quantity: qty})
	require.NoError(t, err)
	order, err := f.orders.PlaceOrder(context.Background(), hold.ID)
	require.NoError(t, err)
	return order
}

func TestPaymentService_ProcessPaymentEvent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("success consumes reserved stock", func(t *testing.T) {
		f := newPaymentFixture(t, 10)
		order := f.placeOrder(t, 2)

		res, err := f.pay.ProcessPaymentEvent(ctx, PaymentEventInput{OrderID: order.ID, Outcome: domain.PaymentSuccess, IdempotencyKey: "evt-1"})
		require.NoError(t, err)

		assert.True(t, res.Applied)
		assert.Equal(t, PaymentApplied, res.Reason)
		assert.Equal(t, domain.OrderStatusPaid, res.Order.Status)
		require.NotNil(t, res.Order.PaymentIdempotencyKey)
		assert.Equal(t, "evt-1", *res.Order.PaymentIdempotencyKey)

		p := f.store.product("p-1")
		assert.Equal(t, 8, p.StockAvailable)
		assert.Equal(t, 0, p.StockReserved)
		assert.Equal(t, domain.OrderStatusPaid, f.store.order(order.ID).Status)
		assert.Contains(t, f.cache.invalidated, "p-1")
		assert.Equal(t, 1.0, promtest.ToFloat64(f.metrics.PaymentEvents.WithLabelValues("success", "applied")))
	})

	t.Run("failure releases stock and cancels", func(t *testing.T) {
		f := newPaymentFixture(t, 10)
		order := f.placeOrder(t, 2)

		res, err := f.pay.ProcessPaymentEvent(ctx, PaymentEventInput{OrderID: order.ID, Outcome: domain.PaymentFailure, IdempotencyKey: "evt-1"})
		require.NoError(t, err)
		assert.Equal(t, domain.OrderStatusCancelled, res.Order.Status)

		p := f.store.product("p-1")
		assert.Equal(t, 10, p.StockAvailable)
		assert.Equal(t, 0, p.StockReserved)

		hold := f.store.hold(order.HoldID)
		assert.False(t, hold.IsRedeemed)
		require.NotNil(t, hold.PaymentIntentID)

		// The hold stays linked, so it can neither be reordered nor reclaimed.
		_, err = f.orders.PlaceOrder(ctx, order.HoldID)
		assert.ErrorIs(t, err, domain.ErrHoldAlreadyRedeemed)

		f.clock.Advance(5 * time.Minute)
		rec, err := f.reclaim.ReclaimExpiredHold(ctx, order.HoldID)
		require.NoError(t, err)
		assert.False(t, rec.Released)
		assert.Equal(t, 0, f.store.product("p-1").StockReserved)
	})

	t.Run("redelivery with the same key is a no-op", func(t *testing.T) {
		f := newPaymentFixture(t, 10)
		order := f.placeOrder(t, 2)
		in := PaymentEventInput{OrderID: order.ID, Outcome: domain.PaymentSuccess, IdempotencyKey: "evt-1"}

		_, err := f.pay.ProcessPaymentEvent(ctx, in)
		require.NoError(t, err)
		res, err := f.pay.ProcessPaymentEvent(ctx, in)
		require.NoError(t, err)

		assert.False(t, res.Applied)
		assert.Equal(t, PaymentDuplicate, res.Reason)
		assert.Equal(t, domain.OrderStatusPaid, res.Order.Status)
		assert.Equal(t, 8, f.store.product("p-1").StockAvailable)
	})

	t.Run("late failure after success keeps the order paid", func(t *testing.T) {
		f := newPaymentFixture(t, 10)
		order := f.placeOrder(t, 2)

		_, err := f.pay.ProcessPaymentEvent(ctx, PaymentEventInput{OrderID: order.ID, Outcome: domain.PaymentSuccess, IdempotencyKey: "evt-1"})
		require.NoError(t, err)
		res, err := f.pay.ProcessPaymentEvent(ctx, PaymentEventInput{OrderID: order.ID, Outcome: domain.PaymentFailure, IdempotencyKey: "evt-2"})
		require.NoError(t, err)

		assert.False(t, res.Applied)
		assert.Equal(t, PaymentFinalized, res.Reason)
		assert.Equal(t, domain.OrderStatusPaid, f.store.order(order.ID).Status)
		p := f.store.product("p-1")
		assert.Equal(t, 8, p.StockAvailable)
		assert.Equal(t, 0, p.StockReserved)
	})

	t.Run("pending is acknowledged without changes", func(t *testing.T) {
		f := newPaymentFixture(t, 10)
		order := f.placeOrder(t, 2)

		res, err := f.pay.ProcessPaymentEvent(ctx, PaymentEventInput{OrderID: order.ID, Outcome: domain.PaymentPending, IdempotencyKey: "evt-1"})
		require.NoError(t, err)
		assert.False(t, res.Applied)
		assert.Equal(t, PaymentIgnored, res.Reason)
		assert.Equal(t, domain.OrderStatusPendingPayment, f.store.order(order.ID).Status)
		assert.Equal(t, 2, f.store.product("p-1").StockReserved)
	})

	t.Run("unknown order is retryable", func(t *testing.T) {
		f := newPaymentFixture(t, 10)

		_, err := f.pay.ProcessPaymentEvent(ctx, PaymentEventInput{OrderID: "missing", Outcome: domain.PaymentSuccess, IdempotencyKey: "evt-1"})
		assert.ErrorIs(t, err, domain.ErrOrderNotFound)
		assert.Equal(t, 1.0, promtest.ToFloat64(f.metrics.PaymentEvents.WithLabelValues("success", "order_not_found")))
	})

	t.Run("validates input", func(t *testing.T) {
		f := newPaymentFixture(t, 10)
		order := f.placeOrder(t, 1)

		_, err := f.pay.ProcessPaymentEvent(ctx, PaymentEventInput{OrderID: order.ID, Outcome: domain.PaymentSuccess})
		assert.ErrorIs(t, err, domain.ErrIdempotencyKeyRequired)

		_, err = f.pay.ProcessPaymentEvent(ctx, PaymentEventInput{OrderID: order.ID, Outcome: "refunded", IdempotencyKey: "evt-1"})
		assert.ErrorIs(t, err, domain.ErrInvalidOutcome)
	})

	t.Run("key reused on another order conflicts and rolls back", func(t *testing.T) {
		f := newPaymentFixture(t, 10)
		first := f.placeOrder(t, 1)
		second := f.placeOrder(t, 1)

		_, err := f.pay.ProcessPaymentEvent(ctx, PaymentEventInput{OrderID: first.ID, Outcome: domain.PaymentSuccess, IdempotencyKey: "evt-1"})
		require.NoError(t, err)
		_, err = f.pay.ProcessPaymentEvent(ctx, PaymentEventInput{OrderID: second.ID, Outcome: domain.PaymentSuccess, IdempotencyKey: "evt-1"})
		assert.ErrorIs(t, err, domain.ErrIdempotencyConflict)

		assert.Equal(t, domain.OrderStatusPendingPayment, f.store.order(second.ID).Status)
		p := f.store.product("p-1")
		assert.Equal(t, 9, p.StockAvailable)
		assert.Equal(t, 1, p.StockReserved)
	})

	t.Run("missing hold still settles the order", func(t *testing.T) {
		f := newPaymentFixture(t, 10)
		f.store.addProduct("p-2", 5, 1, "2.00")
		f.store.addOrder(domain.Order{ID: "o-1", ProductID: "p-2", HoldID: "gone", Quantity: 1, Status: domain.OrderStatusPendingPayment})

		res, err := f.pay.ProcessPaymentEvent(ctx, PaymentEventInput{OrderID: "o-1", Outcome: domain.PaymentFailure, IdempotencyKey: "evt-1"})
		require.NoError(t, err)
		assert.Equal(t, domain.OrderStatusCancelled, res.Order.Status)
		assert.Equal(t, 0, f.store.product("p-2").StockReserved)
	})

	t.Run("reserved deficit is clamped and counted", func(t *testing.T) {
		f := newPaymentFixture(t, 10)
		f.store.addProduct("p-2", 5, 0, "2.00")
		f.store.addOrder(domain.Order{ID: "o-1", ProductID: "p-2", HoldID: "gone", Quantity: 2, Status: domain.OrderStatusPendingPayment})

		_, err := f.pay.ProcessPaymentEvent(ctx, PaymentEventInput{OrderID: "o-1", Outcome: domain.PaymentSuccess, IdempotencyKey: "evt-1"})
		require.NoError(t, err)

		p := f.store.product("p-2")
		assert.Equal(t, 0, p.StockReserved)
		assert.Equal(t, 3, p.StockAvailable)
		assert.Equal(t, 1.0, promtest.ToFloat64(f.metrics.StockAnomalies.WithLabelValues("consume")))
	})
}

func TestPaymentService_ConcurrentOutcomesApplyOnce(t *testing.T) {
	t.Parallel()

	f := newPaymentFixture(t, 10)
	order := f.placeOrder(t, 2)

	inputs := []PaymentEventInput{
		{OrderID: order.ID, Outcome: domain.PaymentSuccess, IdempotencyKey: "evt-s"},
		{OrderID: order.ID, Outcome: domain.PaymentFailure, IdempotencyKey: "evt-f"},
		{OrderID: order.ID, Outcome: domain.PaymentSuccess, IdempotencyKey: "evt-s"},
	}
	results := make([]PaymentResult, len(inputs))
	var g errgroup.Group
	for i, in := range inputs {
		g.Go(func() error {
			var err error
			results[i], err = f.pay.ProcessPaymentEvent(context.Background(), in)
			return err
		})
	}
	require.NoError(t, g.Wait())

	applied := 0
	for _, r := range results {
		if r.Applied {
			applied++
		}
	}
	assert.Equal(t, 1, applied)

	p := f.store.product("p-1")
	assert.Equal(t, 0, p.StockReserved)
	switch f.store.order(order.ID).Status {
	case domain.OrderStatusPaid:
		assert.Equal(t, 8, p.StockAvailable)
	case domain.OrderStatusCancelled:
		assert.Equal(t, 10, p.StockAvailable)
	default:
		t.Fatalf("order not finalized")
	}
}
