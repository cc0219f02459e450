// Package memory is an in-process audit.Store for tests and single-node runs.
package memory

import (
	"context"
	"sync"

	id "ghostpass/pkg/domain"
	audit "ghostpass/pkg/platform/audit"
)

type Store struct {
	mu     sync.RWMutex
	events []audit.Event
	// failNext makes the next N appends fail, for exercising retry paths.
	failNext int
	failErr  error
}

func New() *Store {
	return &Store{}
}

func (s *Store) Append(ctx context.Context, event audit.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNext > 0 {
		s.failNext--
		return s.failErr
	}
	s.events = append(s.events, event)
	return nil
}

// ListByStation returns the station's events newest first.
func (s *Store) ListByStation(_ context.Context, station id.StationID, limit int) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []audit.Event
	for i := len(s.events) - 1; i >= 0; i-- {
		if s.events[i].StationID != station {
			continue
		}
		out = append(out, s.events[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Store) CountByNonce(_ context.Context, nonce id.Nonce) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, e := range s.events {
		if e.TokenNonce != nil && *e.TokenNonce == nonce {
			n++
		}
	}
	return n, nil
}

// All returns a copy of every event in append order.
func (s *Store) All() []audit.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]audit.Event(nil), s.events...)
}

// FailNext makes the next n appends return err.
func (s *Store) FailNext(n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = n
	s.failErr = err
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
	s.failNext = 0
}
