// Package healthcache memoizes provider health-check results behind a
// short TTL so GET /health/providers doesn't fan out a live probe to
// every backend on every poll. The teacher repo carries go-redis and
// miniredis only as indirect dependencies of its own (unused) cache
// layer; this package gives both an actual job: a real redis.Client in
// production, miniredis in tests, identical code path against either.
package healthcache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/corvidlabs/aigateway/internal/apierr"
	"github.com/corvidlabs/aigateway/internal/canonical"
)

const keyPrefix = "gateway:health:"

// Cache stores canonical.HealthStatus results keyed by provider name.
type Cache struct {
	rdb *redis.Client
	ttl time.Duration
}

// New builds a Cache backed by rdb, with entries expiring after ttl.
func New(rdb *redis.Client, ttl time.Duration) *Cache {
	return &Cache{rdb: rdb, ttl: ttl}
}

// Get returns a cached status for provider, if present and unexpired.
func (c *Cache) Get(ctx context.Context, providerName string) (canonical.HealthStatus, bool, error) {
	raw, err := c.rdb.Get(ctx, keyPrefix+providerName).Bytes()
	if err == redis.Nil {
		return canonical.HealthStatus{}, false, nil
	}
	if err != nil {
		return canonical.HealthStatus{}, false, apierr.Wrap(apierr.KindInternal, err, "reading health cache")
	}

	var status canonical.HealthStatus
	if err := json.Unmarshal(raw, &status); err != nil {
		return canonical.HealthStatus{}, false, apierr.Wrap(apierr.KindInternal, err, "decoding cached health status")
	}
	return status, true, nil
}

// Set stores status for providerName, expiring after the cache's TTL.
func (c *Cache) Set(ctx context.Context, providerName string, status canonical.HealthStatus) error {
	raw, err := json.Marshal(status)
	if err != nil {
		return apierr.Wrap(apierr.KindInternal, err, "encoding health status")
	}
	if err := c.rdb.Set(ctx, keyPrefix+providerName, raw, c.ttl).Err(); err != nil {
		return apierr.Wrap(apierr.KindInternal, err, "writing health cache")
	}
	return nil
}
