package terminal

import (
	"context"
	"log/slog"
	"sync"
	"time"

	shiftmodels "ghostpass/internal/shift/models"
	"ghostpass/internal/verify"
	id "ghostpass/pkg/domain"
	dErrors "ghostpass/pkg/domain-errors"
	audit "ghostpass/pkg/platform/audit"
	"ghostpass/pkg/requestcontext"
)

// ReasonNoContext is reported when a scan arrives at a station without the
// scanning operator on shift. The engine never sees such scans.
const ReasonNoContext = "NO_CONTEXT"

type ShiftReader interface {
	ActiveShift(ctx context.Context, station id.StationID) (*shiftmodels.Shift, error)
}

type Verifier interface {
	Verify(ctx context.Context, req verify.Request) verify.Result
}

type station struct {
	state State
	last  *verify.Result
}

// Service gates scans on operator context and tracks one terminal FSM per
// station.
type Service struct {
	shifts   ShiftReader
	verifier Verifier
	auditor  audit.Emitter
	logger   *slog.Logger
	now      func() time.Time

	mu       sync.Mutex
	stations map[id.StationID]*station
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

func New(shifts ShiftReader, verifier Verifier, auditor audit.Emitter, opts ...Option) *Service {
	s := &Service{
		shifts:   shifts,
		verifier: verifier,
		auditor:  auditor,
		logger:   slog.Default(),
		now:      time.Now,
		stations: make(map[id.StationID]*station),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scan verifies a token at a station. It returns CodeNoContext, without
// consulting the engine, when the operator is not on shift there, and
// CodeConflict when the station's terminal is still mid-scan.
func (s *Service) Scan(ctx context.Context, req verify.Request) (*verify.Result, error) {
	if err := s.requireContext(ctx, req); err != nil {
		return nil, err
	}
	if err := s.fire(req.StationID, EventScan, nil); err != nil {
		return nil, dErrors.New(dErrors.CodeConflict, "terminal is busy with another scan")
	}

	res := s.verifier.Verify(ctx, req)
	if err := s.fire(req.StationID, EventDecided, &res); err != nil {
		// Only Scan moves a station out of scanning, so this is a bug.
		s.logger.ErrorContext(ctx, "terminal state corrupted", "station_id", req.StationID, "error", err)
	}
	return &res, nil
}

// Dismiss clears the result from a station's screen.
func (s *Service) Dismiss(stationID id.StationID) error {
	return s.fire(stationID, EventDismiss, nil)
}

// State returns a station's terminal state and the last result shown.
func (s *Service) State(stationID id.StationID) (State, *verify.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.stations[stationID]
	if !ok {
		return StateIdle, nil
	}
	return st.state, st.last
}

func (s *Service) fire(stationID id.StationID, e Event, res *verify.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.stations[stationID]
	if !ok {
		st = &station{state: StateIdle}
		s.stations[stationID] = st
	}
	next, err := Transition(st.state, e)
	if err != nil {
		return err
	}
	st.state = next
	switch next {
	case StateResult:
		st.last = res
	case StateIdle:
		st.last = nil
	}
	return nil
}

func (s *Service) requireContext(ctx context.Context, req verify.Request) error {
	sh, err := s.shifts.ActiveShift(ctx, req.StationID)
	switch {
	case dErrors.HasCode(err, dErrors.CodeNotFound):
		return s.reject(ctx, req, "station has no active shift")
	case err != nil:
		return err
	case sh.OperatorID != req.OperatorID:
		return s.reject(ctx, req, "operator is not on shift at this station")
	}
	return nil
}

// reject records the refused scan and returns CodeNoContext. The audit entry
// is best-effort: the scan was refused either way.
func (s *Service) reject(ctx context.Context, req verify.Request, msg string) error {
	event := audit.Event{
		Action:     audit.ActionScanRejected,
		Timestamp:  s.now(),
		StationID:  req.StationID,
		OperatorID: req.OperatorID,
		Decision:   string(verify.DecisionNo),
		Reason:     ReasonNoContext,
		RequestID:  requestcontext.RequestID(ctx),
	}
	if err := s.auditor.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "rejected scan not audited",
			"station_id", req.StationID,
			"error", err,
		)
	}
	s.logger.InfoContext(ctx, "scan rejected without operator context",
		"station_id", req.StationID,
		"operator_id", req.OperatorID,
		"request_id", requestcontext.RequestID(ctx),
	)
	return dErrors.New(dErrors.CodeNoContext, msg)
}
