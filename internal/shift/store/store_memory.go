package store

import (
	"context"
	"sync"

	"ghostpass/internal/shift/models"
	id "ghostpass/pkg/domain"
	"ghostpass/pkg/platform/sentinel"
)

// InMemoryStore keeps active shifts per station and a history of ended ones.
type InMemoryStore struct {
	mu      sync.RWMutex
	active  map[id.StationID]*models.Shift
	history []models.Shift
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{active: make(map[id.StationID]*models.Shift)}
}

func (s *InMemoryStore) Active(_ context.Context, station id.StationID) (*models.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sh, ok := s.active[station]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *sh
	return &cp, nil
}

// Apply validates the whole transition before mutating anything.
func (s *InMemoryStore) Apply(_ context.Context, t models.Transition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range t.End {
		cur, ok := s.active[e.StationID]
		if !ok || cur.ID != e.ShiftID {
			return sentinel.ErrConflict
		}
	}
	if t.Start != nil {
		if cur, ok := s.active[t.Start.StationID]; ok && !endsShift(t.End, cur.ID) {
			return sentinel.ErrConflict
		}
	}

	for _, e := range t.End {
		ended := *s.active[e.StationID]
		endedAt := e.EndedAt
		ended.EndedAt = &endedAt
		s.history = append(s.history, ended)
		delete(s.active, e.StationID)
	}
	if t.Start != nil {
		cp := *t.Start
		cp.EndedAt = nil
		s.active[cp.StationID] = &cp
	}
	return nil
}

// History returns ended shifts in the order they ended.
func (s *InMemoryStore) History() []models.Shift {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Shift, len(s.history))
	copy(out, s.history)
	return out
}

func endsShift(ends []models.Ending, shiftID id.ShiftID) bool {
	for _, e := range ends {
		if e.ShiftID == shiftID {
			return true
		}
	}
	return false
}
