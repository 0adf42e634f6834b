package postgres_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cimillas/stockhold/internal/app"
	"github.com/cimillas/stockhold/internal/clock"
	"github.com/cimillas/stockhold/internal/domain"
	"github.com/cimillas/stockhold/internal/storage/postgres"
	"github.com/cimillas/stockhold/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestLedger_ConcurrentHoldsNeverOversell(t *testing.T) {
	pool := testutil.NewTestPool(t)
	ctx := context.Background()
	testutil.ApplyMigrations(t, ctx, pool)
	testutil.TruncateAll(t, ctx, pool)

	productID := testutil.InsertProduct(t, ctx, pool, "Last one", "5.00", 3, 0)
	svc := app.NewHoldService(postgres.NewHoldRepository(pool), clock.NewSystem())

	var succeeded, rejected atomic.Int32
	var g errgroup.Group
	for i := 0; i < 10; i++ {
		g.Go(func() error {
			_, err := svc.CreateHold(ctx, app.CreateHoldInput{ProductID: productID, Quantity: 1})
			switch {
			case err == nil:
				succeeded.Add(1)
			case assert.ErrorIs(t, err, domain.ErrInsufficientStock):
				rejected.Add(1)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int32(3), succeeded.Load())
	assert.Equal(t, int32(7), rejected.Load())

	available, reserved := testutil.Stock(t, ctx, pool, productID)
	assert.Equal(t, 3, available)
	assert.Equal(t, 3, reserved)
}

func TestLedger_HoldOrderPayReclaim(t *testing.T) {
	pool := testutil.NewTestPool(t)
	ctx := context.Background()
	testutil.ApplyMigrations(t, ctx, pool)
	testutil.TruncateAll(t, ctx, pool)

	clk := clock.NewManual(time.Now().UTC())
	holdRepo := postgres.NewHoldRepository(pool)
	orderRepo := postgres.NewOrderRepository(pool)
	holds := app.NewHoldService(holdRepo, clk, app.WithHoldTTL(2*time.Minute))
	orders := app.NewOrderService(orderRepo, clk)
	payments := app.NewPaymentService(orderRepo, clk)
	reclaimer := app.NewReclaimService(holdRepo, clk)

	productID := testutil.InsertProduct(t, ctx, pool, "Widget", "0.125", 10, 0)

	paid, err := holds.CreateHold(ctx, app.CreateHoldInput{ProductID: productID, Quantity: 3})
	require.NoError(t, err)
	abandoned, err := holds.CreateHold(ctx, app.CreateHoldInput{ProductID: productID, Quantity: 2})
	require.NoError(t, err)

	order, err := orders.PlaceOrder(ctx, paid.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(38), order.AmountCents)

	_, err = orders.PlaceOrder(ctx, paid.ID)
	assert.ErrorIs(t, err, domain.ErrHoldAlreadyRedeemed)

	clk.Advance(3 * time.Minute)
	released, err := reclaimer.SweepExpired(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, released)

	res, err := reclaimer.ReclaimExpiredHold(ctx, abandoned.ID)
	require.NoError(t, err)
	assert.Equal(t, app.ReclaimAlreadyReleased, res.Reason)

	in := app.PaymentEventInput{OrderID: order.ID, Outcome: domain.PaymentSuccess, IdempotencyKey: "evt-1"}
	result, err := payments.ProcessPaymentEvent(ctx, in)
	require.NoError(t, err)
	assert.True(t, result.Applied)

	result, err = payments.ProcessPaymentEvent(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, app.PaymentDuplicate, result.Reason)

	available, reserved := testutil.Stock(t, ctx, pool, productID)
	assert.Equal(t, 7, available)
	assert.Equal(t, 0, reserved)

	_, err = payments.ProcessPaymentEvent(ctx, app.PaymentEventInput{OrderID: "f47ac10b-58cc-4372-a567-0e02b2c3d479", Outcome: domain.PaymentSuccess, IdempotencyKey: "evt-2"})
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
}
