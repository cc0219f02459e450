// Package service mints door-pass tokens. Minting reads the balance gate,
// never writes it, and never writes to the audit log.
package service

import (
	"context"
	"log/slog"
	"time"

	balancemodels "ghostpass/internal/balance/models"
	"ghostpass/internal/platform/tracer"
	"ghostpass/internal/token/metrics"
	"ghostpass/internal/token/models"
	id "ghostpass/pkg/domain"
	dErrors "ghostpass/pkg/domain-errors"
)

// BalanceReader is the minter's read-only view of the balance gate.
type BalanceReader interface {
	Get(ctx context.Context, subject id.SubjectID) (*balancemodels.Gate, error)
}

// Sealer signs and encodes a token, stamping its key epoch.
type Sealer interface {
	Seal(ctx context.Context, t *models.Token) (string, error)
	Revoke(ctx context.Context, subject id.SubjectID) (uint32, error)
}

type MintRequest struct {
	SubjectID id.SubjectID
	Bundle    models.Bundle
	Mode      models.Mode
	VenueID   *id.VenueID
	// Consumable overrides the mode default: standard tokens are consumed
	// by a successful scan, master tokens are not.
	Consumable *bool
}

type MintResult struct {
	Token   *models.Token
	Payload string
	// RotateAt is when the bearer display should re-mint. Nil for master tokens.
	RotateAt *time.Time
}

type Service struct {
	balances     BalanceReader
	sealer       Sealer
	ttl          models.TTLPolicy
	rotationLead time.Duration
	logger       *slog.Logger
	tracer       tracer.Tracer
	metrics      *metrics.Metrics
	now          func() time.Time
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithTracer(t tracer.Tracer) Option {
	return func(s *Service) {
		s.tracer = t
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

func WithRotationLead(lead time.Duration) Option {
	return func(s *Service) {
		s.rotationLead = lead
	}
}

func New(balances BalanceReader, sealer Sealer, ttl models.TTLPolicy, opts ...Option) *Service {
	s := &Service{
		balances:     balances,
		sealer:       sealer,
		ttl:          ttl,
		rotationLead: 5 * time.Second,
		logger:       slog.Default(),
		tracer:       tracer.NewNoop(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Mint issues a token for the subject. A subject below its lock threshold
// gets a locked standard token regardless of what was requested.
func (s *Service) Mint(ctx context.Context, req MintRequest) (res *MintResult, err error) {
	start := s.now()
	ctx, span := s.tracer.Start(ctx, tracer.SpanMint,
		tracer.String(tracer.AttrSubject, tracer.HashSubject(req.SubjectID.String())),
		tracer.String(tracer.AttrMode, string(req.Mode)),
	)
	defer func() {
		span.End(err)
		if s.metrics == nil {
			return
		}
		if err != nil {
			s.metrics.IncMintFailure(string(dErrors.CodeOf(err)))
			return
		}
		s.metrics.ObserveMintLatency(time.Since(start).Seconds())
		s.metrics.IncMinted(string(res.Token.Mode), res.Token.Locked)
	}()

	if req.SubjectID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "subject ID required")
	}
	if !req.Mode.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "mode must be standard or incognito_master")
	}

	gate, err := s.balances.Get(ctx, req.SubjectID)
	if err != nil {
		return nil, err
	}

	now := start.UTC().Truncate(time.Millisecond)
	tok := &models.Token{
		Nonce:     id.NewNonce(),
		SubjectID: req.SubjectID,
		IssuedAt:  now,
	}

	if gate.IsLocked() {
		tok.Mode = models.ModeStandard
		tok.Locked = true
		s.logger.InfoContext(ctx, "balance below threshold, minting locked token",
			"subject_hash", tracer.HashSubject(req.SubjectID.String()),
			"requested_mode", req.Mode,
		)
	} else {
		tok.Mode = req.Mode
		tok.Bundle = req.Bundle.Normalize()
		tok.VenueID = req.VenueID
		tok.Consumable = req.Mode == models.ModeStandard
		if req.Consumable != nil {
			tok.Consumable = *req.Consumable
		}
		if tok.Bundle.Payment {
			snapshot := gate.Balance
			tok.BalanceSnapshot = &snapshot
		}
	}
	tok.ExpiresAt = now.Add(s.ttl.For(tok.Mode))
	span.SetAttributes(
		tracer.Bool(tracer.AttrLocked, tok.Locked),
		tracer.Bool(tracer.AttrConsumable, tok.Consumable),
	)

	payload, err := s.sealer.Seal(ctx, tok)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to seal token")
	}

	res = &MintResult{Token: tok, Payload: payload}
	if tok.Mode == models.ModeStandard {
		rotateAt := tok.ExpiresAt.Add(-s.rotationLead)
		res.RotateAt = &rotateAt
	}
	return res, nil
}

// Revoke invalidates every outstanding token for the subject.
func (s *Service) Revoke(ctx context.Context, subject id.SubjectID) error {
	if subject.IsNil() {
		return dErrors.New(dErrors.CodeBadRequest, "subject ID required")
	}
	epoch, err := s.sealer.Revoke(ctx, subject)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to revoke tokens")
	}
	if s.metrics != nil {
		s.metrics.IncRevocation()
	}
	s.logger.InfoContext(ctx, "subject tokens revoked",
		"subject_hash", tracer.HashSubject(subject.String()),
		"epoch", epoch,
	)
	return nil
}
