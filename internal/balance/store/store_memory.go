package store

import (
	"context"
	"fmt"
	"sync"

	"ghostpass/internal/balance/models"
	id "ghostpass/pkg/domain"
	"ghostpass/pkg/platform/sentinel"
)

// Error Contract:
// - Get returns sentinel.ErrNotFound when the subject has no gate
// - Put overwrites the whole gate; callers compute the new balance

// InMemoryStore keeps gates in memory for tests and local runs.
type InMemoryStore struct {
	mu    sync.RWMutex
	gates map[id.SubjectID]models.Gate
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{gates: make(map[id.SubjectID]models.Gate)}
}

func (s *InMemoryStore) Get(_ context.Context, subject id.SubjectID) (*models.Gate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.gates[subject]
	if !ok {
		return nil, fmt.Errorf("balance gate %s: %w", subject, sentinel.ErrNotFound)
	}
	return &g, nil
}

func (s *InMemoryStore) Put(_ context.Context, gate *models.Gate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gates[gate.SubjectID] = *gate
	return nil
}
