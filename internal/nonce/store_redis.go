package nonce

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	id "ghostpass/pkg/domain"
	"ghostpass/pkg/platform/sentinel"
)

const keyPrefix = "nonce_used:"

// RedisStore marks nonces with SET NX so replicas share one used set.
type RedisStore struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) MarkUsed(ctx context.Context, nonce id.Nonce, retain time.Duration) (bool, error) {
	if retain < time.Second {
		retain = time.Second
	}
	ok, err := s.client.SetNX(ctx, keyPrefix+nonce.String(), 1, retain).Result()
	if err != nil {
		return false, errors.Join(sentinel.ErrUnavailable, fmt.Errorf("mark nonce: %w", err))
	}
	return ok, nil
}

func (s *RedisStore) Release(ctx context.Context, nonce id.Nonce) error {
	if err := s.client.Del(ctx, keyPrefix+nonce.String()).Err(); err != nil {
		return errors.Join(sentinel.ErrUnavailable, fmt.Errorf("release nonce: %w", err))
	}
	return nil
}
