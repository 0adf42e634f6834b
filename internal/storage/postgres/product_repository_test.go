package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/cimillas/stockhold/internal/domain"
	"github.com/cimillas/stockhold/internal/testutil"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProductRepository(t *testing.T) {
	pool := testutil.NewTestPool(t)
	repo := NewProductRepository(pool)
	testutil.ApplyMigrations(t, context.Background(), pool)

	t.Run("create list and get", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)

		now := time.Now().UTC().Truncate(time.Microsecond)
		p := domain.Product{
			ID:             uuid.NewString(),
			Name:           "Widget",
			Description:    "blue",
			Price:          decimal.RequireFromString("19.99"),
			StockAvailable: 7,
			Version:        1,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		require.NoError(t, repo.CreateProduct(ctx, p))
		testutil.InsertProduct(t, ctx, pool, "Anvil", "100", 1, 0)

		list, err := repo.ListProducts(ctx)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "Anvil", list[0].Name)
		assert.Equal(t, "Widget", list[1].Name)

		got, err := repo.GetProduct(ctx, p.ID)
		require.NoError(t, err)
		assert.True(t, p.Price.Equal(got.Price))
		assert.Equal(t, 7, got.StockAvailable)
		assert.Equal(t, "blue", got.Description)

		_, err = repo.GetProduct(ctx, uuid.NewString())
		assert.ErrorIs(t, err, domain.ErrProductNotFound)
		_, err = repo.GetProduct(ctx, "nope")
		assert.ErrorIs(t, err, domain.ErrInvalidID)
	})

	t.Run("UpdateProductStock writes counters and version", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)
		id := testutil.InsertProduct(t, ctx, pool, "Widget", "1.00", 10, 0)

		err := repo.WithTx(ctx, func(txCtx context.Context) error {
			p, err := repo.GetProductForUpdate(txCtx, id)
			if err != nil {
				return err
			}
			if err := p.Reserve(4); err != nil {
				return err
			}
			return repo.UpdateProductStock(txCtx, p)
		})
		require.NoError(t, err)

		p, err := repo.GetProduct(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, 10, p.StockAvailable)
		assert.Equal(t, 4, p.StockReserved)
		assert.Equal(t, int64(2), p.Version)

		assert.ErrorIs(t, repo.UpdateProductStock(ctx, domain.Product{ID: uuid.NewString()}), domain.ErrProductNotFound)
	})

	t.Run("schema rejects negative counters", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)
		id := testutil.InsertProduct(t, ctx, pool, "Widget", "1.00", 1, 0)

		err := repo.UpdateProductStock(ctx, domain.Product{ID: id, StockAvailable: -1})
		assert.Error(t, err)
	})
}
