package store

import (
	"context"
	"sync"

	"ghostpass/internal/profile/models"
	id "ghostpass/pkg/domain"
	"ghostpass/pkg/platform/sentinel"
)

type InMemoryStore struct {
	mu       sync.RWMutex
	profiles map[id.SubjectID]models.Profile
	consents map[id.SubjectID]models.ConsentFlags
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		profiles: make(map[id.SubjectID]models.Profile),
		consents: make(map[id.SubjectID]models.ConsentFlags),
	}
}

func (s *InMemoryStore) GetProfile(_ context.Context, subject id.SubjectID) (*models.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[subject]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	p.Badges = append([]string(nil), p.Badges...)
	p.SocialHandles = append([]string(nil), p.SocialHandles...)
	return &p, nil
}

func (s *InMemoryStore) PutProfile(_ context.Context, p *models.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *p
	stored.Badges = append([]string(nil), p.Badges...)
	stored.SocialHandles = append([]string(nil), p.SocialHandles...)
	s.profiles[p.SubjectID] = stored
	return nil
}

func (s *InMemoryStore) GetConsent(_ context.Context, subject id.SubjectID) (*models.ConsentFlags, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.consents[subject]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &c, nil
}

func (s *InMemoryStore) PutConsent(_ context.Context, c *models.ConsentFlags) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consents[c.SubjectID] = *c
	return nil
}
