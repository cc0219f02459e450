package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"ghostpass/internal/balance/models"
	id "ghostpass/pkg/domain"
	"ghostpass/pkg/platform/sentinel"
)

const gateKeyPrefix = "balance_gate:"

// RedisStore keeps each gate in a hash so spend/refill collaborators sharing
// the instance can update fields directly.
type RedisStore struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func gateKey(subject id.SubjectID) string {
	return gateKeyPrefix + subject.String()
}

func (s *RedisStore) Get(ctx context.Context, subject id.SubjectID) (*models.Gate, error) {
	fields, err := s.client.HGetAll(ctx, gateKey(subject)).Result()
	if err != nil {
		return nil, fmt.Errorf("get balance gate: %w", errors.Join(sentinel.ErrUnavailable, err))
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("balance gate %s: %w", subject, sentinel.ErrNotFound)
	}

	balance, err := decimal.NewFromString(fields["balance"])
	if err != nil {
		return nil, fmt.Errorf("decode balance: %w", err)
	}
	threshold, err := decimal.NewFromString(fields["lock_threshold"])
	if err != nil {
		return nil, fmt.Errorf("decode lock threshold: %w", err)
	}
	updatedAt, err := time.Parse(time.RFC3339Nano, fields["updated_at"])
	if err != nil {
		return nil, fmt.Errorf("decode updated_at: %w", err)
	}

	return &models.Gate{
		SubjectID:     subject,
		Balance:       balance,
		LockThreshold: threshold,
		UpdatedAt:     updatedAt,
	}, nil
}

func (s *RedisStore) Put(ctx context.Context, gate *models.Gate) error {
	err := s.client.HSet(ctx, gateKey(gate.SubjectID),
		"balance", gate.Balance.String(),
		"lock_threshold", gate.LockThreshold.String(),
		"updated_at", gate.UpdatedAt.UTC().Format(time.RFC3339Nano),
	).Err()
	if err != nil {
		return fmt.Errorf("put balance gate: %w", errors.Join(sentinel.ErrUnavailable, err))
	}
	return nil
}
