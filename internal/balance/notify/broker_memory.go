package notify

import (
	"context"
	"sync"

	"ghostpass/internal/balance/models"
	id "ghostpass/pkg/domain"
)

// MemoryBroker fans changes out to in-process subscribers.
type MemoryBroker struct {
	mu   sync.Mutex
	subs map[id.SubjectID]map[chan models.Change]struct{}
}

func NewMemory() *MemoryBroker {
	return &MemoryBroker{subs: make(map[id.SubjectID]map[chan models.Change]struct{})}
}

// Publish delivers to every subscriber of the subject. A full subscriber
// loses its oldest pending change; only the latest state matters to a display.
func (b *MemoryBroker) Publish(_ context.Context, change models.Change) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[change.SubjectID] {
		deliverLatest(ch, change)
	}
	return nil
}

func (b *MemoryBroker) Subscribe(ctx context.Context, subject id.SubjectID) (<-chan models.Change, error) {
	ch := make(chan models.Change, subscriberBuffer)

	b.mu.Lock()
	if b.subs[subject] == nil {
		b.subs[subject] = make(map[chan models.Change]struct{})
	}
	b.subs[subject][ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs[subject], ch)
		if len(b.subs[subject]) == 0 {
			delete(b.subs, subject)
		}
		close(ch)
		b.mu.Unlock()
	}()
	return ch, nil
}

// Subscribers returns the number of live subscriptions for subject.
func (b *MemoryBroker) Subscribers(subject id.SubjectID) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[subject])
}

func deliverLatest(ch chan models.Change, change models.Change) {
	for {
		select {
		case ch <- change:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
