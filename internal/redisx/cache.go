package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/ariefcatur/go-seller-settlement/internal/model"
	"github.com/redis/go-redis/v9"
)

// ViewCache keeps joined order views for quick reads. The database stays the
// source of truth; any write to an order invalidates its entry.
type ViewCache struct {
	rdb *redis.Client
}

func NewViewCache(rdb *redis.Client) *ViewCache { return &ViewCache{rdb: rdb} }

func (c *ViewCache) Get(ctx context.Context, number string) (model.OrderView, bool, error) {
	b, err := c.rdb.Get(ctx, fmt.Sprintf(KeyOrderView, number)).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.OrderView{}, false, nil
	}
	if err != nil {
		return model.OrderView{}, false, err
	}
	var v model.OrderView
	if err := json.Unmarshal(b, &v); err != nil {
		return model.OrderView{}, false, err
	}
	return v, true, nil
}

func (c *ViewCache) Put(ctx context.Context, v model.OrderView) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, fmt.Sprintf(KeyOrderView, v.Order.Number), b, TTLOrderView).Err()
}

func (c *ViewCache) Invalidate(ctx context.Context, number string) error {
	return c.rdb.Del(ctx, fmt.Sprintf(KeyOrderView, number)).Err()
}
