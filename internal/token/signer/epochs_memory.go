package signer

import (
	"context"
	"sync"

	id "ghostpass/pkg/domain"
)

type InMemoryEpochs struct {
	mu     sync.RWMutex
	epochs map[id.SubjectID]uint32
}

func NewInMemoryEpochs() *InMemoryEpochs {
	return &InMemoryEpochs{epochs: make(map[id.SubjectID]uint32)}
}

func (s *InMemoryEpochs) Current(_ context.Context, subject id.SubjectID) (uint32, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.epochs[subject], nil
}

func (s *InMemoryEpochs) Bump(_ context.Context, subject id.SubjectID) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.epochs[subject]++
	return s.epochs[subject], nil
}
