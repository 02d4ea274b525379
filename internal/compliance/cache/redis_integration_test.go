//go:build integration

package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"tracecore/internal/compliance/cache"
	"tracecore/internal/compliance/models"
	"tracecore/pkg/testutil/containers"
)

type RedisStatusCacheSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	cache *cache.RedisStatusCache
}

func TestRedisStatusCacheSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisStatusCacheSuite))
}

func (s *RedisStatusCacheSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.redis = mgr.GetRedis(s.T())
	s.cache = cache.NewRedisStatusCache(s.redis.Client, time.Minute)
}

func (s *RedisStatusCacheSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisStatusCacheSuite) TestRoundTrip() {
	ctx := context.Background()
	ts := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	st := models.Fold(3, []*models.Check{
		{EntityID: 3, Index: 0, RuleID: "R1", Passed: false, Timestamp: ts},
	})

	s.Require().NoError(s.cache.Set(ctx, st))

	got, ok, err := s.cache.Get(ctx, 3)
	s.Require().NoError(err)
	s.Require().True(ok)
	s.True(st.Equal(got))
}

func (s *RedisStatusCacheSuite) TestMissAndInvalidate() {
	ctx := context.Background()
	_, ok, err := s.cache.Get(ctx, 4)
	s.Require().NoError(err)
	s.False(ok)

	s.Require().NoError(s.cache.Set(ctx, models.Empty(4)))
	s.Require().NoError(s.cache.Invalidate(ctx, 4))
	_, ok, err = s.cache.Get(ctx, 4)
	s.Require().NoError(err)
	s.False(ok)
}

func (s *RedisStatusCacheSuite) TestTTLApplied() {
	ctx := context.Background()
	s.Require().NoError(s.cache.Set(ctx, models.Empty(5)))
	ttl, err := s.redis.Client.TTL(ctx, "tracecore:compliance:status:5").Result()
	s.Require().NoError(err)
	s.Greater(ttl, time.Duration(0))
	s.LessOrEqual(ttl, time.Minute)
}

func (s *RedisStatusCacheSuite) TestOlderVersionDoesNotOverwrite() {
	ctx := context.Background()
	ts := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	first := []*models.Check{{EntityID: 6, Index: 0, RuleID: "R1", Passed: true, Timestamp: ts}}
	v1 := models.Fold(6, first)
	v2 := models.Fold(6, append(first, &models.Check{EntityID: 6, Index: 1, RuleID: "R2", Passed: false, Timestamp: ts}))

	written, err := s.cache.SetIfNewer(ctx, v2)
	s.Require().NoError(err)
	s.True(written)

	written, err = s.cache.SetIfNewer(ctx, v1)
	s.Require().NoError(err)
	s.False(written)

	got, ok, err := s.cache.Get(ctx, 6)
	s.Require().NoError(err)
	s.Require().True(ok)
	s.True(v2.Equal(got))
	s.False(got.Compliant)

	// same version rewrites, so a repaired projection can replace its entry
	written, err = s.cache.SetIfNewer(ctx, v2)
	s.Require().NoError(err)
	s.True(written)

	s.Require().NoError(s.cache.Invalidate(ctx, 6))
	written, err = s.cache.SetIfNewer(ctx, v1)
	s.Require().NoError(err)
	s.True(written)
}
