// Package cache provides a Redis read-through cache for compliance status
// projections.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"tracecore/internal/compliance/models"
	id "tracecore/pkg/domain"
)

const statusKeyPrefix = "tracecore:compliance:status:"

// setIfNewerScript keeps one hash per entity {version, data} and refuses to
// replace a higher version, so writers finishing out of order cannot
// regress the entry. Returns 1 when written.
var setIfNewerScript = redis.NewScript(`
local key = KEYS[1]
local version = tonumber(ARGV[1])
local current = redis.call('HGET', key, 'version')
if current and tonumber(current) > version then
  return 0
end
redis.call('HSET', key, 'version', ARGV[1], 'data', ARGV[2])
local ttl = tonumber(ARGV[3])
if ttl > 0 then
  redis.call('PEXPIRE', key, ttl)
else
  redis.call('PERSIST', key)
end
return 1
`)

// RedisStatusCache stores JSON-encoded status projections with a TTL. The TTL
// bounds staleness if a write-through after commit is lost.
type RedisStatusCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStatusCache constructs the cache. A non-positive ttl disables
// expiry.
func NewRedisStatusCache(client *redis.Client, ttl time.Duration) *RedisStatusCache {
	return &RedisStatusCache{client: client, ttl: ttl}
}

// Get returns the cached status. A miss is reported as (nil, false, nil).
func (c *RedisStatusCache) Get(ctx context.Context, entityID id.EntityID) (*models.Status, bool, error) {
	raw, err := c.client.HGet(ctx, statusKey(entityID), "data").Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get cached status: %w", err)
	}
	var st models.Status
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, false, fmt.Errorf("decode cached status: %w", err)
	}
	return &st, true, nil
}

// Set stores st unless the cached entry already holds a higher version.
func (c *RedisStatusCache) Set(ctx context.Context, st *models.Status) error {
	_, err := c.SetIfNewer(ctx, st)
	return err
}

// SetIfNewer is Set reporting whether the entry was written.
func (c *RedisStatusCache) SetIfNewer(ctx context.Context, st *models.Status) (bool, error) {
	raw, err := json.Marshal(st)
	if err != nil {
		return false, fmt.Errorf("encode status: %w", err)
	}
	written, err := setIfNewerScript.Run(ctx, c.client, []string{statusKey(st.EntityID)},
		st.Version,
		raw,
		max(c.ttl, 0).Milliseconds(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("set cached status: %w", err)
	}
	return written == 1, nil
}

func (c *RedisStatusCache) Invalidate(ctx context.Context, entityID id.EntityID) error {
	return c.client.Del(ctx, statusKey(entityID)).Err()
}

func statusKey(entityID id.EntityID) string {
	return statusKeyPrefix + entityID.String()
}
