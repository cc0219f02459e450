package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"ghostpass/internal/balance/models"
	id "ghostpass/pkg/domain"
	"ghostpass/pkg/platform/sentinel"
)

const channelPrefix = "balance_changes:"

// RedisBroker uses Redis pub/sub so a change written on one instance reaches
// displays connected to any instance.
type RedisBroker struct {
	client *redis.Client
	logger *slog.Logger
}

func NewRedis(client *redis.Client, logger *slog.Logger) *RedisBroker {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisBroker{client: client, logger: logger}
}

func channelFor(subject id.SubjectID) string {
	return channelPrefix + subject.String()
}

func (b *RedisBroker) Publish(ctx context.Context, change models.Change) error {
	payload, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("encode balance change: %w", err)
	}
	if err := b.client.Publish(ctx, channelFor(change.SubjectID), payload).Err(); err != nil {
		return fmt.Errorf("publish balance change: %w", errors.Join(sentinel.ErrUnavailable, err))
	}
	return nil
}

func (b *RedisBroker) Subscribe(ctx context.Context, subject id.SubjectID) (<-chan models.Change, error) {
	pubsub := b.client.Subscribe(ctx, channelFor(subject))
	// Wait for the subscription confirmation so no publish after return is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe balance changes: %w", errors.Join(sentinel.ErrUnavailable, err))
	}

	out := make(chan models.Change, subscriberBuffer)
	go func() {
		defer close(out)
		defer pubsub.Close() //nolint:errcheck // best-effort cleanup

		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var change models.Change
				if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
					b.logger.WarnContext(ctx, "dropping undecodable balance change",
						"error", err,
						"channel", msg.Channel,
					)
					continue
				}
				deliverLatest(out, change)
			}
		}
	}()
	return out, nil
}
