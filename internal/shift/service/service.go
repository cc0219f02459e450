package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"ghostpass/internal/shift/metrics"
	"ghostpass/internal/shift/models"
	id "ghostpass/pkg/domain"
	dErrors "ghostpass/pkg/domain-errors"
	audit "ghostpass/pkg/platform/audit"
	"ghostpass/pkg/platform/sentinel"
	gsync "ghostpass/pkg/platform/sync"
	"ghostpass/pkg/requestcontext"
)

// Store persists station shifts. Apply must be atomic: either every ending
// and the start land, or none do.
type Store interface {
	Active(ctx context.Context, station id.StationID) (*models.Shift, error)
	Apply(ctx context.Context, t models.Transition) error
}

// Service tracks which operator is responsible for each station. Work is
// serialized per station, so concurrent starts at one terminal cannot
// interleave their read and write.
type Service struct {
	store   Store
	auditor audit.Emitter
	locks   *gsync.KeyedMutex
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func New(store Store, auditor audit.Emitter, opts ...Option) *Service {
	s := &Service{
		store:   store,
		auditor: auditor,
		locks:   gsync.NewKeyedMutex(),
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ActiveShift returns the station's current shift. An idle station yields an
// error matching sentinel.ErrNotFound.
func (s *Service) ActiveShift(ctx context.Context, station id.StationID) (*models.Shift, error) {
	sh, err := s.store.Active(ctx, station)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "station has no active shift")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to read station shift")
	}
	return sh, nil
}

// StartShift makes operator responsible for station, ending whatever shift
// was running there. Starting twice for the same operator is a conflict and
// records nothing.
func (s *Service) StartShift(ctx context.Context, station id.StationID, operator id.OperatorID) (*models.Shift, error) {
	start := time.Now()
	unlock := s.locks.LockAll(string(station))
	defer unlock()

	prior, err := s.activeOrNil(ctx, station)
	if err != nil {
		return nil, err
	}
	if prior != nil && prior.OperatorID == operator {
		s.incConflict()
		return nil, dErrors.New(dErrors.CodeConflict, "operator already holds this station")
	}

	now := s.now().UTC()
	next := &models.Shift{ID: id.NewShiftID(), StationID: station, OperatorID: operator, StartedAt: now}
	t := models.Transition{Start: next}
	events := make([]audit.Event, 0, 2)
	if prior != nil {
		t.End = append(t.End, models.Ending{ShiftID: prior.ID, StationID: station, EndedAt: now})
		events = append(events, s.endEvent(ctx, prior, now, "superseded"))
	}
	events = append(events, audit.Event{
		Action:     audit.ActionShiftStart,
		Timestamp:  now,
		StationID:  station,
		OperatorID: operator,
		RequestID:  requestcontext.RequestID(ctx),
		Metadata:   map[string]string{"shift_id": next.ID.String()},
	})

	if err := s.apply(ctx, t, events); err != nil {
		return nil, err
	}
	s.observe(start)
	s.logger.InfoContext(ctx, "shift started",
		"station_id", station,
		"operator_id", operator,
		"shift_id", next.ID,
		"request_id", requestcontext.RequestID(ctx),
	)
	return next, nil
}

// SwitchStation moves operator from one station to another in a single
// transition. The operator must hold from; anyone active at to is displaced.
func (s *Service) SwitchStation(ctx context.Context, from, to id.StationID, operator id.OperatorID) (*models.Shift, error) {
	if from == to {
		return nil, dErrors.New(dErrors.CodeBadRequest, "from and to stations must differ")
	}
	start := time.Now()
	unlock := s.locks.LockAll(string(from), string(to))
	defer unlock()

	current, err := s.activeOrNil(ctx, from)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, dErrors.New(dErrors.CodeNotFound, "station has no active shift")
	}
	if current.OperatorID != operator {
		return nil, dErrors.New(dErrors.CodeForbidden, "operator does not hold the source station")
	}
	displaced, err := s.activeOrNil(ctx, to)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	next := &models.Shift{ID: id.NewShiftID(), StationID: to, OperatorID: operator, StartedAt: now}
	t := models.Transition{
		End:   []models.Ending{{ShiftID: current.ID, StationID: from, EndedAt: now}},
		Start: next,
	}
	events := make([]audit.Event, 0, 2)
	if displaced != nil {
		t.End = append(t.End, models.Ending{ShiftID: displaced.ID, StationID: to, EndedAt: now})
		events = append(events, s.endEvent(ctx, displaced, now, "displaced"))
	}
	events = append(events, audit.Event{
		Action:        audit.ActionShiftSwitch,
		Timestamp:     now,
		StationID:     to,
		OperatorID:    operator,
		FromStationID: from,
		ToStationID:   to,
		RequestID:     requestcontext.RequestID(ctx),
		Metadata: map[string]string{
			"shift_id":       next.ID.String(),
			"prior_shift_id": current.ID.String(),
		},
	})

	if err := s.apply(ctx, t, events); err != nil {
		return nil, err
	}
	s.observe(start)
	s.logger.InfoContext(ctx, "operator switched station",
		"from_station_id", from,
		"to_station_id", to,
		"operator_id", operator,
		"request_id", requestcontext.RequestID(ctx),
	)
	return next, nil
}

// EndShift returns the station to idle.
func (s *Service) EndShift(ctx context.Context, station id.StationID) (*models.Shift, error) {
	start := time.Now()
	unlock := s.locks.LockAll(string(station))
	defer unlock()

	current, err := s.activeOrNil(ctx, station)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, dErrors.New(dErrors.CodeNotFound, "station has no active shift")
	}

	now := s.now().UTC()
	t := models.Transition{End: []models.Ending{{ShiftID: current.ID, StationID: station, EndedAt: now}}}
	if err := s.apply(ctx, t, []audit.Event{s.endEvent(ctx, current, now, "ended")}); err != nil {
		return nil, err
	}
	s.observe(start)
	s.logger.InfoContext(ctx, "shift ended",
		"station_id", station,
		"operator_id", current.OperatorID,
		"request_id", requestcontext.RequestID(ctx),
	)
	ended := *current
	ended.EndedAt = &now
	return &ended, nil
}

func (s *Service) activeOrNil(ctx context.Context, station id.StationID) (*models.Shift, error) {
	sh, err := s.store.Active(ctx, station)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to read station shift")
	}
	return sh, nil
}

// apply persists the transition, then records its events in order. State is
// not rolled back when the audit append fails; the error is returned so the
// terminal can surface it.
func (s *Service) apply(ctx context.Context, t models.Transition, events []audit.Event) error {
	if err := s.store.Apply(ctx, t); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			s.incConflict()
			return dErrors.Wrap(err, dErrors.CodeConflict, "station shift changed concurrently")
		}
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to save shift transition")
	}
	for _, event := range events {
		if err := s.auditor.Emit(ctx, event); err != nil {
			s.logger.ErrorContext(ctx, "shift transition not audited",
				"action", event.Action,
				"station_id", event.StationID,
				"error", err,
			)
			return err
		}
		if s.metrics != nil {
			s.metrics.IncTransition(string(event.Action))
		}
	}
	return nil
}

func (s *Service) endEvent(ctx context.Context, sh *models.Shift, at time.Time, reason string) audit.Event {
	return audit.Event{
		Action:     audit.ActionShiftEnd,
		Timestamp:  at,
		StationID:  sh.StationID,
		OperatorID: sh.OperatorID,
		RequestID:  requestcontext.RequestID(ctx),
		Metadata: map[string]string{
			"shift_id": sh.ID.String(),
			"reason":   reason,
		},
	}
}

func (s *Service) observe(start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveTransition(start)
	}
}

func (s *Service) incConflict() {
	if s.metrics != nil {
		s.metrics.IncConflict()
	}
}
