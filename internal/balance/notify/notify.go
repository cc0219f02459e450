// Package notify carries balance changes from the write side to open bearer
// displays. Publishers never block on slow subscribers.
package notify

import (
	"context"

	"ghostpass/internal/balance/models"
	id "ghostpass/pkg/domain"
)

// Broker is a typed publish/subscribe channel keyed by subject.
type Broker interface {
	Publish(ctx context.Context, change models.Change) error
	// Subscribe returns a channel of changes for subject. The channel is
	// closed once ctx is done.
	Subscribe(ctx context.Context, subject id.SubjectID) (<-chan models.Change, error)
}

const subscriberBuffer = 4
