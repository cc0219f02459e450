package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"ghostpass/internal/profile/models"
	id "ghostpass/pkg/domain"
	dErrors "ghostpass/pkg/domain-errors"
	"ghostpass/pkg/platform/sentinel"
)

type Store interface {
	GetProfile(ctx context.Context, subject id.SubjectID) (*models.Profile, error)
	PutProfile(ctx context.Context, p *models.Profile) error
	GetConsent(ctx context.Context, subject id.SubjectID) (*models.ConsentFlags, error)
	PutConsent(ctx context.Context, c *models.ConsentFlags) error
}

// Snapshot is what the disclosure projector needs for one subject.
type Snapshot struct {
	Profile *models.Profile
	Consent *models.ConsentFlags
}

type Service struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func New(store Store, opts ...Option) *Service {
	s := &Service{store: store, logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Snapshot fetches profile and consent concurrently. A missing profile yields
// an empty one and missing consent denies every field, so an unprovisioned
// bearer discloses nothing rather than failing the scan.
func (s *Service) Snapshot(ctx context.Context, subject id.SubjectID) (*Snapshot, error) {
	var snap Snapshot
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := s.store.GetProfile(gctx, subject)
		if errors.Is(err, sentinel.ErrNotFound) {
			snap.Profile = &models.Profile{SubjectID: subject, HealthStatus: models.HealthNone}
			return nil
		}
		snap.Profile = p
		return err
	})
	g.Go(func() error {
		c, err := s.store.GetConsent(gctx, subject)
		if errors.Is(err, sentinel.ErrNotFound) {
			snap.Consent = models.DenyAll(subject)
			return nil
		}
		snap.Consent = c
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "profile store unavailable")
	}
	return &snap, nil
}

// Save writes a profile and its consent flags. Called by the provisioning hook.
func (s *Service) Save(ctx context.Context, p *models.Profile, c *models.ConsentFlags) error {
	if p.SubjectID.IsNil() {
		return dErrors.New(dErrors.CodeBadRequest, "subject ID required")
	}
	if p.HealthStatus == "" {
		p.HealthStatus = models.HealthNone
	}
	if !p.HealthStatus.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "health status must be one of verified, pending, none")
	}
	now := s.now().UTC()
	p.UpdatedAt = now
	c.SubjectID = p.SubjectID
	c.UpdatedAt = now

	if err := s.store.PutProfile(ctx, p); err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to save profile")
	}
	if err := s.store.PutConsent(ctx, c); err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to save consent")
	}
	s.logger.InfoContext(ctx, "profile saved", "subject_id", p.SubjectID)
	return nil
}
