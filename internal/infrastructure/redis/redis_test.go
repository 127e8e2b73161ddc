package redisstore_test

import (
	"context"
	"testing"

	redisstore "price-aggregator/internal/infrastructure/redis"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

func newClient(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestReferenceCache_MergeAndOverwrite(t *testing.T) {
	cache := redisstore.New(newClient(t))
	ctx := context.Background()

	empty, err := cache.GetAll(ctx, "coingecko-coins-list")
	require.NoError(t, err)
	require.Empty(t, empty)

	require.NoError(t, cache.SetAll(ctx, "coingecko-coins-list", map[string]string{"btc": "bitcoin"}, false))
	require.NoError(t, cache.SetAll(ctx, "coingecko-coins-list", map[string]string{"eth": "ethereum"}, false))
	got, err := cache.GetAll(ctx, "coingecko-coins-list")
	require.NoError(t, err)
	require.Equal(t, map[string]string{"btc": "bitcoin", "eth": "ethereum"}, got)

	require.NoError(t, cache.SetAll(ctx, "coingecko-coins-list", map[string]string{"sol": "solana"}, true))
	got, err = cache.GetAll(ctx, "coingecko-coins-list")
	require.NoError(t, err)
	require.Equal(t, map[string]string{"sol": "solana"}, got)
}

func TestMemoryCache(t *testing.T) {
	cache := redisstore.NewMemoryCache()
	ctx := context.Background()

	require.NoError(t, cache.SetAll(ctx, "k", map[string]string{"a": "1"}, false))
	require.NoError(t, cache.SetAll(ctx, "k", map[string]string{"b": "2"}, false))
	got, err := cache.GetAll(ctx, "k")
	require.NoError(t, err)
	require.Len(t, got, 2)

	require.NoError(t, cache.SetAll(ctx, "k", nil, true))
	got, err = cache.GetAll(ctx, "k")
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestQuotaLedger_DailyBudget(t *testing.T) {
	ledger := redisstore.NewQuotaLedger(memory.NewStore(), map[string]int{"alphavantage.co": 7})
	ctx := context.Background()

	n, err := ledger.Reserve(ctx, "alphavantage.co", 5)
	require.NoError(t, err)
	require.Equal(t, 5, n)

	n, err = ledger.Reserve(ctx, "alphavantage.co", 5)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	n, err = ledger.Reserve(ctx, "alphavantage.co", 5)
	require.NoError(t, err)
	require.Zero(t, n)

	n, err = ledger.Reserve(ctx, "coingecko.com", 5)
	require.NoError(t, err)
	require.Equal(t, 5, n)
}

func TestQuotaLedger_RedisStore(t *testing.T) {
	store, err := redisstore.NewRedisQuotaStore(newClient(t))
	require.NoError(t, err)
	ledger := redisstore.NewQuotaLedger(store, map[string]int{"alphavantage.co": 3})

	n, err := ledger.Reserve(context.Background(), "alphavantage.co", 5)
	require.NoError(t, err)
	require.Equal(t, 3, n)
}
