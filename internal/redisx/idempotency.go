package redisx

import (
	"context"
	"errors"
	"fmt"
	"github.com/redis/go-redis/v9"
)

// ErrInFlight means another request with the same key has not finished yet.
var ErrInFlight = errors.New("request with this idempotency key is in flight")

// Idempotency remembers which order a buyer's Idempotency-Key produced.
type Idempotency struct {
	rdb *redis.Client
}

func NewIdempotency(rdb *redis.Client) *Idempotency { return &Idempotency{rdb: rdb} }

// Begin claims key. It returns the order number of a finished earlier request,
// ErrInFlight for a concurrent one, or ("", nil) when the caller now owns key.
func (i *Idempotency) Begin(ctx context.Context, buyerID, key string) (string, error) {
	k := fmt.Sprintf(KeyIdemCheckout, buyerID, key)
	ok, err := i.rdb.SetNX(ctx, k, "", TTLInFlight).Result()
	if err != nil {
		return "", err
	}
	if ok {
		return "", nil
	}
	num, err := i.rdb.Get(ctx, k).Result()
	if errors.Is(err, redis.Nil) {
		// expired between SETNX and GET; let the caller retry
		return "", ErrInFlight
	}
	if err != nil {
		return "", err
	}
	if num == "" {
		return "", ErrInFlight
	}
	return num, nil
}

func (i *Idempotency) Complete(ctx context.Context, buyerID, key, orderNumber string) error {
	return i.rdb.Set(ctx, fmt.Sprintf(KeyIdemCheckout, buyerID, key), orderNumber, TTLIdempotency).Err()
}

// Abort releases key after a failed checkout so the buyer can try again.
func (i *Idempotency) Abort(ctx context.Context, buyerID, key string) error {
	return i.rdb.Del(ctx, fmt.Sprintf(KeyIdemCheckout, buyerID, key)).Err()
}
