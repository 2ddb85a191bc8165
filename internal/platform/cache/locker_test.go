package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/stockledger/internal/shared"
)

func newTestLocker(t *testing.T) (*StockLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewStockLocker(client, LockerConfig{TTL: time.Minute, RetryEvery: time.Millisecond, Retries: 0}, nil), mr
}

func TestStockLockerBusyKey(t *testing.T) {
	locker, _ := newTestLocker(t)
	ctx := context.Background()
	keys := []string{shared.StockLockKey(1, 10, 1), shared.StockLockKey(1, 11, 1)}

	unlock, err := locker.Lock(ctx, keys)
	require.NoError(t, err)

	_, err = locker.Lock(ctx, keys[1:])
	require.Error(t, err)
	require.True(t, shared.IsRetryable(err))
	var conflict *shared.ConcurrentModificationError
	require.True(t, errors.As(err, &conflict))

	unlock()
	unlockAgain, err := locker.Lock(ctx, keys[1:])
	require.NoError(t, err)
	unlockAgain()
}

func TestStockLockerReleasesPartialAcquisition(t *testing.T) {
	locker, mr := newTestLocker(t)
	ctx := context.Background()
	first, second := shared.StockLockKey(1, 10, 1), shared.StockLockKey(1, 11, 1)

	unlock, err := locker.Lock(ctx, []string{second})
	require.NoError(t, err)

	_, err = locker.Lock(ctx, []string{first, second})
	require.ErrorIs(t, err, shared.ErrConcurrentModification)
	require.False(t, mr.Exists(first), "first key must be released after the second was busy")

	unlock()
	require.False(t, mr.Exists(second))
}

func TestStockLockerKeyExpires(t *testing.T) {
	locker, mr := newTestLocker(t)
	ctx := context.Background()
	key := shared.StockLockKey(2, 5, 3)

	_, err := locker.Lock(ctx, []string{key})
	require.NoError(t, err)
	mr.FastForward(2 * time.Minute)

	unlock, err := locker.Lock(ctx, []string{key})
	require.NoError(t, err)
	unlock()
}
