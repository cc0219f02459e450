package nonce

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	id "ghostpass/pkg/domain"
	"ghostpass/pkg/platform/sentinel"
	"ghostpass/pkg/testutil"
)

type StoreSuite struct {
	suite.Suite
	newStore func(t *testing.T) Store
	store    Store
}

func TestInMemoryStore(t *testing.T) {
	suite.Run(t, &StoreSuite{newStore: func(*testing.T) Store { return NewInMemory() }})
}

func TestRedisStore(t *testing.T) {
	suite.Run(t, &StoreSuite{newStore: func(t *testing.T) Store {
		mr := miniredis.RunT(t)
		return NewRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	}})
}

func (s *StoreSuite) SetupTest() {
	s.store = s.newStore(s.T())
}

func (s *StoreSuite) TestMarkOnce() {
	ctx := context.Background()
	n := id.NewNonce()

	first, err := s.store.MarkUsed(ctx, n, time.Minute)
	s.Require().NoError(err)
	s.True(first)

	second, err := s.store.MarkUsed(ctx, n, time.Minute)
	s.Require().NoError(err)
	s.False(second)

	other, err := s.store.MarkUsed(ctx, id.NewNonce(), time.Minute)
	s.Require().NoError(err)
	s.True(other)
}

func (s *StoreSuite) TestRelease() {
	ctx := context.Background()
	n := id.NewNonce()
	_, err := s.store.MarkUsed(ctx, n, time.Minute)
	s.Require().NoError(err)
	s.Require().NoError(s.store.Release(ctx, n))

	again, err := s.store.MarkUsed(ctx, n, time.Minute)
	s.Require().NoError(err)
	s.True(again)
}

func (s *StoreSuite) TestConcurrentMarkHasOneWinner() {
	n := id.NewNonce()
	result := testutil.RunConcurrent(50, func(int) error {
		ok, err := s.store.MarkUsed(context.Background(), n, time.Minute)
		if err == nil && !ok {
			return sentinel.ErrAlreadyUsed
		}
		return err
	})
	s.Zero(result.Errors)
	s.Equal(int32(1), result.Successes)
	s.Equal(int32(49), result.Replays)
}

func TestInMemoryStore_ExpiredEntryCanBeReused(t *testing.T) {
	s := NewInMemory()
	now := time.Now()
	s.now = func() time.Time { return now }
	n := id.NewNonce()

	ok, err := s.MarkUsed(context.Background(), n, time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	now = now.Add(2 * time.Second)
	ok, err = s.MarkUsed(context.Background(), n, time.Second)
	require.NoError(t, err)
	assert.True(t, ok, "mark after retention should win")
}
