package signer

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	id "ghostpass/pkg/domain"
	"ghostpass/pkg/platform/sentinel"
)

const epochKeyPrefix = "key_epoch:"

// RedisEpochs keeps epochs in Redis so every replica verifies against the
// same signing context.
type RedisEpochs struct {
	client *redis.Client
}

func NewRedisEpochs(client *redis.Client) *RedisEpochs {
	return &RedisEpochs{client: client}
}

func (s *RedisEpochs) Current(ctx context.Context, subject id.SubjectID) (uint32, error) {
	n, err := s.client.Get(ctx, epochKeyPrefix+subject.String()).Uint64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Join(sentinel.ErrUnavailable, fmt.Errorf("get key epoch: %w", err))
	}
	return uint32(n), nil //nolint:gosec // bumped one at a time; never near overflow
}

func (s *RedisEpochs) Bump(ctx context.Context, subject id.SubjectID) (uint32, error) {
	n, err := s.client.Incr(ctx, epochKeyPrefix+subject.String()).Result()
	if err != nil {
		return 0, errors.Join(sentinel.ErrUnavailable, fmt.Errorf("bump key epoch: %w", err))
	}
	return uint32(n), nil //nolint:gosec // bumped one at a time; never near overflow
}
