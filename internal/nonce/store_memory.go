package nonce

import (
	"context"
	"sync"
	"time"

	id "ghostpass/pkg/domain"
)

const sweepEvery = 1024

type InMemoryStore struct {
	mu      sync.Mutex
	used    map[id.Nonce]time.Time
	inserts int
	now     func() time.Time
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{used: make(map[id.Nonce]time.Time), now: time.Now}
}

func (s *InMemoryStore) MarkUsed(_ context.Context, nonce id.Nonce, retain time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if until, ok := s.used[nonce]; ok && now.Before(until) {
		return false, nil
	}
	s.used[nonce] = now.Add(retain)
	s.inserts++
	if s.inserts%sweepEvery == 0 {
		for n, until := range s.used {
			if !now.Before(until) {
				delete(s.used, n)
			}
		}
	}
	return true, nil
}

func (s *InMemoryStore) Release(_ context.Context, nonce id.Nonce) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.used, nonce)
	return nil
}

// Len is the number of retained entries, expired or not.
func (s *InMemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.used)
}
