package healthcache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvidlabs/aigateway/internal/canonical"
)

func newFixture(t *testing.T, ttl time.Duration) *Cache {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return New(rdb, ttl)
}

func TestGetOnEmptyCacheReturnsFalse(t *testing.T) {
	cache := newFixture(t, time.Minute)
	_, found, err := cache.Get(context.Background(), "openai")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSetThenGetRoundTrips(t *testing.T) {
	cache := newFixture(t, time.Minute)
	ctx := context.Background()

	latency := int64(42)
	status := canonical.HealthStatus{Status: canonical.HealthHealthy, Provider: "openai", LatencyMS: &latency}

	require.NoError(t, cache.Set(ctx, "openai", status))

	got, found, err := cache.Get(ctx, "openai")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, canonical.HealthHealthy, got.Status)
	assert.Equal(t, "openai", got.Provider)
	require.NotNil(t, got.LatencyMS)
	assert.Equal(t, int64(42), *got.LatencyMS)
}

func TestEntriesExpireAfterTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := New(rdb, time.Second)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "anthropic", canonical.HealthStatus{Status: canonical.HealthHealthy, Provider: "anthropic"}))

	mr.FastForward(2 * time.Second)

	_, found, err := cache.Get(ctx, "anthropic")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCacheKeysAreIsolatedPerProvider(t *testing.T) {
	cache := newFixture(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "openai", canonical.HealthStatus{Status: canonical.HealthHealthy, Provider: "openai"}))

	_, found, err := cache.Get(ctx, "anthropic")
	require.NoError(t, err)
	assert.False(t, found)
}
