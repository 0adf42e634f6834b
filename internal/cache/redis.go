// Package cache stores derived product views in Redis. Entries are never
// authoritative: a miss or an error always falls back to the database.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cimillas/stockhold/internal/domain"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "product:"

type ProductCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewProductCache(client redis.UniversalClient, ttl time.Duration) *ProductCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &ProductCache{client: client, ttl: ttl}
}

// Connect dials addr and verifies the server answers.
func Connect(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrapf(err, "ping redis %s", addr)
	}
	return client, nil
}

func Key(productID string) string {
	return keyPrefix + productID
}

func (c *ProductCache) Get(ctx context.Context, productID string) (domain.ProductView, bool, error) {
	raw, err := c.client.Get(ctx, Key(productID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.ProductView{}, false, nil
	}
	if err != nil {
		return domain.ProductView{}, false, errors.Wrap(err, "cache get")
	}

	var view domain.ProductView
	if err := json.Unmarshal(raw, &view); err != nil {
		// A corrupt entry is treated as a miss and overwritten on refill.
		return domain.ProductView{}, false, errors.Wrap(err, "cache decode")
	}
	return view, true, nil
}

func (c *ProductCache) Set(ctx context.Context, view domain.ProductView) error {
	raw, err := json.Marshal(view)
	if err != nil {
		return errors.Wrap(err, "cache encode")
	}
	return errors.Wrap(c.client.Set(ctx, Key(view.ID), raw, c.ttl).Err(), "cache set")
}

func (c *ProductCache) Invalidate(ctx context.Context, productID string) error {
	return errors.Wrap(c.client.Del(ctx, Key(productID)).Err(), "cache invalidate")
}
