package redisx

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

func New(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

func Exists(ctx context.Context, rdb *redis.Client, key string) (bool, error) {
	n, err := rdb.Exists(ctx, key).Result()
	return n > 0, err
}

// Dedup remembers processed event ids per consuming service.
// A nil *Dedup never reports an event as seen.
type Dedup struct {
	RDB     *redis.Client
	Service string
}

func (d *Dedup) Seen(ctx context.Context, id string) (bool, error) {
	if d == nil || d.RDB == nil {
		return false, nil
	}
	return Exists(ctx, d.RDB, fmt.Sprintf(KeyDedup, d.Service, id))
}

func (d *Dedup) Mark(ctx context.Context, id string) error {
	if d == nil || d.RDB == nil {
		return nil
	}
	return d.RDB.Set(ctx, fmt.Sprintf(KeyDedup, d.Service, id), 1, TTLDedup).Err()
}

// Idempotency stores client idempotency keys for payment session creation.
type Idempotency struct {
	RDB *redis.Client
}

func (i *Idempotency) Claim(ctx context.Context, key string) (string, bool, error) {
	k := fmt.Sprintf(KeyIdemPaymentSession, key)
	ok, err := i.RDB.SetNX(ctx, k, idemPending, TTLIdempotency).Result()
	if err != nil {
		return "", false, err
	}
	if ok {
		return "", true, nil
	}
	v, err := i.RDB.Get(ctx, k).Result()
	if errors.Is(err, redis.Nil) {
		// expired between SETNX and GET; try once more
		ok, err = i.RDB.SetNX(ctx, k, idemPending, TTLIdempotency).Result()
		return "", ok, err
	}
	if err != nil {
		return "", false, err
	}
	if v == idemPending {
		return "", false, nil
	}
	return v, false, nil
}

func (i *Idempotency) Complete(ctx context.Context, key, sessionID string) error {
	return i.RDB.Set(ctx, fmt.Sprintf(KeyIdemPaymentSession, key), sessionID, TTLIdempotency).Err()
}

func (i *Idempotency) Release(ctx context.Context, key string) error {
	return i.RDB.Del(ctx, fmt.Sprintf(KeyIdemPaymentSession, key)).Err()
}
