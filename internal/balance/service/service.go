package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"ghostpass/internal/balance/models"
	"ghostpass/internal/balance/notify"
	id "ghostpass/pkg/domain"
	dErrors "ghostpass/pkg/domain-errors"
	"ghostpass/pkg/platform/sentinel"
)

// Store persists balance gates.
type Store interface {
	Get(ctx context.Context, subject id.SubjectID) (*models.Gate, error)
	Put(ctx context.Context, gate *models.Gate) error
}

// Service is the single source of truth for balance gates. The minter reads
// through Get; external spend/refill collaborators write through SetBalance.
type Service struct {
	store            Store
	broker           notify.Broker
	defaultThreshold decimal.Decimal
	logger           *slog.Logger
	now              func() time.Time
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

func New(store Store, broker notify.Broker, defaultThreshold decimal.Decimal, opts ...Option) *Service {
	s := &Service{
		store:            store,
		broker:           broker,
		defaultThreshold: defaultThreshold,
		logger:           slog.Default(),
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the subject's gate. A subject without a provisioned wallet
// yields CodeInsufficientContext.
func (s *Service) Get(ctx context.Context, subject id.SubjectID) (*models.Gate, error) {
	gate, err := s.store.Get(ctx, subject)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeInsufficientContext, "no balance gate for subject")
		}
		if errors.Is(err, sentinel.ErrUnavailable) {
			return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "balance store unavailable")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read balance gate")
	}
	return gate, nil
}

// SetBalanceRequest is the collaborator write. A nil LockThreshold keeps the
// existing threshold, or the configured default for a new gate.
type SetBalanceRequest struct {
	SubjectID     id.SubjectID
	Balance       decimal.Decimal
	LockThreshold *decimal.Decimal
}

// SetBalance writes the gate and notifies subscribers. Notification failure
// is logged; displays also re-read the gate on every rotation.
func (s *Service) SetBalance(ctx context.Context, req SetBalanceRequest) (*models.Gate, error) {
	if req.SubjectID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "subject ID required")
	}
	threshold := s.defaultThreshold
	if req.LockThreshold != nil {
		if req.LockThreshold.IsNegative() {
			return nil, dErrors.New(dErrors.CodeValidation, "lock threshold must not be negative")
		}
		threshold = *req.LockThreshold
	} else if existing, err := s.store.Get(ctx, req.SubjectID); err == nil {
		threshold = existing.LockThreshold
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "balance store unavailable")
	}

	gate := &models.Gate{
		SubjectID:     req.SubjectID,
		Balance:       req.Balance,
		LockThreshold: threshold,
		UpdatedAt:     s.now().UTC(),
	}
	if err := s.store.Put(ctx, gate); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to write balance gate")
	}
	balanceUpdates.WithLabelValues(lockedLabel(gate.IsLocked())).Inc()

	if err := s.broker.Publish(ctx, models.ChangeFor(gate)); err != nil {
		s.logger.WarnContext(ctx, "balance change notification failed",
			"error", err,
			"subject_id", req.SubjectID,
		)
	}
	return gate, nil
}

// Subscribe streams changes for one subject until ctx is done.
func (s *Service) Subscribe(ctx context.Context, subject id.SubjectID) (<-chan models.Change, error) {
	ch, err := s.broker.Subscribe(ctx, subject)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "balance notifications unavailable")
	}
	return ch, nil
}

func lockedLabel(locked bool) string {
	if locked {
		return "locked"
	}
	return "active"
}
