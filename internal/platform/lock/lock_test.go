package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

func TestWithLockRejectsSecondHolder(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	locker := New(client, time.Second)
	locker.retry = redislock.NoRetry()
	ctx := context.Background()

	err := locker.WithLock(ctx, "finance:period:1:lock", func(ctx context.Context) error {
		inner := locker.WithLock(ctx, "finance:period:1:lock", func(context.Context) error { return nil })
		require.ErrorIs(t, inner, ErrBusy)
		require.ErrorIs(t, inner, shared.ErrConflict)
		return nil
	})
	require.NoError(t, err)

	ran := false
	require.NoError(t, locker.WithLock(ctx, "finance:period:1:lock", func(context.Context) error {
		ran = true
		return nil
	}))
	require.True(t, ran)
}

func TestNilClientRunsInline(t *testing.T) {
	ran := false
	require.NoError(t, New(nil, 0).WithLock(context.Background(), "k", func(context.Context) error {
		ran = true
		return nil
	}))
	require.True(t, ran)
}
