package ledger

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestBalanceCacheFetchAndBump(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := NewBalanceCache(client, 2*time.Minute)
	ctx := context.Background()

	loads := 0
	loader := func(context.Context) (interface{}, error) {
		loads++
		return map[string]float64{"opening": 123.45}, nil
	}

	key, err := cache.BuildKey(ctx, 7, "tb", "2026-03-01")
	require.NoError(t, err)

	var got map[string]float64
	require.NoError(t, cache.FetchJSON(ctx, key, &got, loader))
	require.NoError(t, cache.FetchJSON(ctx, key, &got, loader))
	require.Equal(t, 1, loads, "second fetch must hit the cache")
	require.InDelta(t, 123.45, got["opening"], 1e-9)

	// A posting bumps the org version; new keys miss the old entry.
	require.NoError(t, cache.Bump(ctx, 7))
	key2, err := cache.BuildKey(ctx, 7, "tb", "2026-03-01")
	require.NoError(t, err)
	require.NotEqual(t, key, key2)
	require.NoError(t, cache.FetchJSON(ctx, key2, &got, loader))
	require.Equal(t, 2, loads)
}

func TestBalanceCacheBumpIsOrgScoped(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := NewBalanceCache(client, time.Minute)
	ctx := context.Background()

	keyA1, err := cache.BuildKey(ctx, 1, "tb")
	require.NoError(t, err)
	keyB1, err := cache.BuildKey(ctx, 2, "tb")
	require.NoError(t, err)

	require.NoError(t, cache.Bump(ctx, 1))

	keyA2, err := cache.BuildKey(ctx, 1, "tb")
	require.NoError(t, err)
	keyB2, err := cache.BuildKey(ctx, 2, "tb")
	require.NoError(t, err)

	require.NotEqual(t, keyA1, keyA2)
	require.Equal(t, keyB1, keyB2)
}

func TestBalanceCacheNilClientFallsThrough(t *testing.T) {
	var cache *BalanceCache
	var got map[string]float64
	err := cache.FetchJSON(context.Background(), "k", &got, func(context.Context) (interface{}, error) {
		return map[string]float64{"v": 1}, nil
	})
	require.NoError(t, err)
	require.InDelta(t, 1, got["v"], 1e-9)
}
