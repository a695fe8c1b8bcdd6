// Package lock serialises cross process critical sections through redis.
package lock

import (
	"context"
	"errors"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// ErrBusy is returned when another holder owns the key.
var ErrBusy = shared.Conflict("lock.busy", "resource is locked by another operation")

// Locker obtains short lived redis locks.
type Locker struct {
	client *redislock.Client
	ttl    time.Duration
	retry  redislock.RetryStrategy
}

// New wraps a redis client. A nil client yields a Locker that always succeeds.
func New(client *redis.Client, ttl time.Duration) *Locker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	l := &Locker{ttl: ttl, retry: redislock.LimitRetry(redislock.LinearBackoff(50*time.Millisecond), 10)}
	if client != nil {
		l.client = redislock.New(client)
	}
	return l
}

// WithLock runs fn while holding key.
func (l *Locker) WithLock(ctx context.Context, key string, fn func(context.Context) error) error {
	if l == nil || l.client == nil {
		return fn(ctx)
	}
	held, err := l.client.Obtain(ctx, key, l.ttl, &redislock.Options{RetryStrategy: l.retry})
	if errors.Is(err, redislock.ErrNotObtained) {
		return ErrBusy.With("%s", key)
	}
	if err != nil {
		return err
	}
	defer func() {
		_ = held.Release(context.WithoutCancel(ctx))
	}()
	return fn(ctx)
}
