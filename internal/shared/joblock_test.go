package shared

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestJobLockMutualExclusion(t *testing.T) {
	client := newTestRedis(t)
	lock := NewJobLock(client, time.Minute)
	ctx := context.Background()

	release, err := lock.Acquire(ctx, "nightly_balance")
	require.NoError(t, err)

	_, err = lock.Acquire(ctx, "nightly_balance")
	require.ErrorIs(t, err, ErrJobLockHeld)

	// A different job is unaffected.
	releaseOther, err := lock.Acquire(ctx, "backfill")
	require.NoError(t, err)
	releaseOther(ctx)

	release(ctx)
	release2, err := lock.Acquire(ctx, "nightly_balance")
	require.NoError(t, err)
	release2(ctx)
}

func TestJobLockReleaseIgnoresStolenToken(t *testing.T) {
	client := newTestRedis(t)
	lock := NewJobLock(client, time.Minute)
	ctx := context.Background()

	release, err := lock.Acquire(ctx, "nightly_balance")
	require.NoError(t, err)

	// Simulate expiry plus takeover by another instance.
	require.NoError(t, client.Set(ctx, jobLockKey("nightly_balance"), "other-token", time.Minute).Err())
	release(ctx)

	val, err := client.Get(ctx, jobLockKey("nightly_balance")).Result()
	require.NoError(t, err)
	require.Equal(t, "other-token", val)
}

func TestMoneyHelpers(t *testing.T) {
	require.InDelta(t, 10.56, Round2(10.555), 1e-9)
	require.True(t, IsRounded2(10.55))
	require.False(t, IsRounded2(10.555))
	require.True(t, AlmostEqual(100.0, 100.009, 0.01))
	require.False(t, AlmostEqual(100.0, 100.02, 0.01))
}
