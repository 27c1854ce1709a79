//go:build integration

package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"certverify/internal/evidence/cache"
	"certverify/internal/evidence/providers"
	"certverify/pkg/platform/sentinel"
	"certverify/pkg/testutil/containers"
)

type RedisStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *cache.RedisStore
}

func TestRedisStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupSuite() {
	s.redis = containers.NewRedisContainer(s.T())
	s.store = cache.NewRedisStore(s.redis.Client, time.Minute)
}

func (s *RedisStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisStoreSuite) TestRoundTrip() {
	ctx := context.Background()
	checkedAt := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	evidence := &providers.Evidence{
		ProviderID:   "portal",
		ProviderType: providers.ProviderTypeRegistry,
		Confidence:   1,
		Data:         map[string]any{"record": map[string]any{"name": "Priya Sharma"}, "source": "board"},
		CheckedAt:    checkedAt,
	}

	s.Require().NoError(s.store.Set(ctx, "portal|certificate_number=MH-1", evidence))

	found, err := s.store.Get(ctx, "portal|certificate_number=MH-1")
	s.Require().NoError(err)
	s.Equal(providers.ProviderTypeRegistry, found.ProviderType)
	s.True(checkedAt.Equal(found.CheckedAt))
	s.Equal("board", found.Data["source"])
}

func (s *RedisStoreSuite) TestMissIsNotFound() {
	_, err := s.store.Get(context.Background(), "absent")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *RedisStoreSuite) TestEntriesExpire() {
	ctx := context.Background()
	short := cache.NewRedisStore(s.redis.Client, 50*time.Millisecond)
	s.Require().NoError(short.Set(ctx, "k", &providers.Evidence{ProviderID: "p"}))

	s.Eventually(func() bool {
		_, err := short.Get(ctx, "k")
		return err != nil
	}, 3*time.Second, 50*time.Millisecond)
}
