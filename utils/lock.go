package utils

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

// Locker serializes critical sections across process boundaries.
// Callers that serialize per booking or per teacher go through here.
type Locker interface {
	// WithLease runs fn while holding the named lease, waiting when
	// the key is contended.
	WithLease(ctx context.Context, key string, ttl time.Duration, fn func() error) error
}

// RedisLocker is the production Locker, backed by SETNX leases.
type RedisLocker struct {
	Client *redis.Client
}

func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{Client: client}
}

// AcquireLease takes a short-lived distributed lease via SETNX. Returns
// false when another holder owns the key.
func AcquireLease(ctx context.Context, client *redis.Client, key string, ttl time.Duration) (bool, error) {
	return client.SetNX(ctx, key, "locked", ttl).Result()
}

// ReleaseLease drops a lease. Safe to call when the lease already expired.
func ReleaseLease(ctx context.Context, client *redis.Client, key string) error {
	return client.Del(ctx, key).Err()
}

// WithLease polls briefly while the key is contended. The lease TTL
// bounds the damage of a crashed holder.
func (l *RedisLocker) WithLease(ctx context.Context, key string, ttl time.Duration, fn func() error) error {
	const pollInterval = 50 * time.Millisecond

	for {
		ok, err := AcquireLease(ctx, l.Client, key, ttl)
		if err != nil {
			return err
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
	defer ReleaseLease(context.Background(), l.Client, key)

	return fn()
}
