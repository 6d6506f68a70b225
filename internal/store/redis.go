package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/redis/go-redis/v9"
)

const redisPrefix = "mapwright:"

// RedisSession keeps sessions in a shared redis so another host can recover them.
type RedisSession struct {
	rdb *redis.Client
}

// OpenRedis connects to addr, retrying the first ping with backoff.
func OpenRedis(ctx context.Context, addr string) (*RedisSession, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := Retry(ctx, func() error { return rdb.Ping(ctx).Err() }); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis: connect %s: %w", addr, err)
	}
	return &RedisSession{rdb: rdb}, nil
}

func (r *RedisSession) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := r.rdb.Get(ctx, redisPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	return v, err
}

func (r *RedisSession) Put(ctx context.Context, key string, value []byte) error {
	return r.rdb.Set(ctx, redisPrefix+key, value, 0).Err()
}

func (r *RedisSession) Delete(ctx context.Context, key string) error {
	return r.rdb.Del(ctx, redisPrefix+key).Err()
}

func (r *RedisSession) Close() error { return r.rdb.Close() }

// Retry runs op with exponential backoff for up to a minute or until ctx is
// done.
func Retry(ctx context.Context, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = time.Minute
	return backoff.Retry(op, backoff.WithContext(b, ctx))
}
