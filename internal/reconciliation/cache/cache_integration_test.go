//go:build integration

package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"actarchive/internal/reconciliation/cache"
	"actarchive/internal/reconciliation/models"
	id "actarchive/pkg/domain"
	"actarchive/pkg/testutil/containers"
)

type RedisCacheSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	cache *cache.Redis
}

func TestRedisCacheSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisCacheSuite))
}

func (s *RedisCacheSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
	s.cache = cache.New(s.redis.Client, time.Minute)
}

func (s *RedisCacheSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisCacheSuite) TestRoundTrip() {
	ctx := context.Background()
	batchID := id.NewBatchID()
	key := cache.Key(batchID, "compare", "all")
	in := models.ComparisonResult{
		BatchID: batchID,
		Matched: []id.ClassificationKey{{Bureau: "Anfa", RegistreType: "N", Year: 2019, RegistreNumber: "12", ActeNumber: "1"}},
		Summary: models.Summary{TotalInventory: 1, TotalDocuments: 1, MatchedCount: 1, MatchRate: 100},
	}

	s.Require().NoError(s.cache.Set(ctx, batchID, key, in))

	var out models.ComparisonResult
	hit, err := s.cache.Get(ctx, key, &out)
	s.Require().NoError(err)
	s.True(hit)
	s.Equal(batchID, out.BatchID)
	s.Equal(in.Matched, out.Matched)
	s.Equal(100.0, out.Summary.MatchRate)

	ttl, err := s.redis.Client.TTL(ctx, key).Result()
	s.Require().NoError(err)
	s.Greater(ttl, time.Duration(0))
	s.LessOrEqual(ttl, time.Minute)
}

func (s *RedisCacheSuite) TestMiss() {
	var out models.Tree
	hit, err := s.cache.Get(context.Background(), cache.Key(id.NewBatchID(), "tree", "all"), &out)
	s.Require().NoError(err)
	s.False(hit)
}

func (s *RedisCacheSuite) TestInvalidateBatchOnlyDropsThatBatch() {
	ctx := context.Background()
	target := id.NewBatchID()
	other := id.NewBatchID()

	s.Require().NoError(s.cache.Set(ctx, target, cache.Key(target, "compare", "all"), models.Summary{}))
	s.Require().NoError(s.cache.Set(ctx, target, cache.Key(target, "tree", "all"), models.Stats{}))
	s.Require().NoError(s.cache.Set(ctx, other, cache.Key(other, "compare", "all"), models.Summary{}))

	s.Require().NoError(s.cache.InvalidateBatch(ctx, target))

	var summary models.Summary
	hit, err := s.cache.Get(ctx, cache.Key(target, "compare", "all"), &summary)
	s.Require().NoError(err)
	s.False(hit)

	var stats models.Stats
	hit, err = s.cache.Get(ctx, cache.Key(target, "tree", "all"), &stats)
	s.Require().NoError(err)
	s.False(hit)

	hit, err = s.cache.Get(ctx, cache.Key(other, "compare", "all"), &summary)
	s.Require().NoError(err)
	s.True(hit)
}

func (s *RedisCacheSuite) TestInvalidateUnknownBatch() {
	s.NoError(s.cache.InvalidateBatch(context.Background(), id.NewBatchID()))
}
