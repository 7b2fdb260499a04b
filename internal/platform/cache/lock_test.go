package cache

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestLockerAcquireRelease(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	locker := NewLocker(client)
	ctx := context.Background()

	release, err := locker.Acquire(ctx, "fulfillment:picklist:1:lock", time.Minute)
	require.NoError(t, err)

	_, err = locker.Acquire(ctx, "fulfillment:picklist:1:lock", time.Minute)
	require.ErrorIs(t, err, ErrLockHeld)

	release()
	require.False(t, mr.Exists("fulfillment:picklist:1:lock"))

	release2, err := locker.Acquire(ctx, "fulfillment:picklist:1:lock", time.Minute)
	require.NoError(t, err)
	release2()
}

func TestLockerExpires(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	locker := NewLocker(client)
	ctx := context.Background()

	stale, err := locker.Acquire(ctx, "k", time.Second)
	require.NoError(t, err)
	mr.FastForward(2 * time.Second)

	fresh, err := locker.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)

	stale()
	require.True(t, mr.Exists("k"))
	fresh()
	require.False(t, mr.Exists("k"))
}

func TestNilLockerIsNoop(t *testing.T) {
	var locker *Locker
	release, err := locker.Acquire(context.Background(), "k", time.Second)
	require.NoError(t, err)
	release()
}
