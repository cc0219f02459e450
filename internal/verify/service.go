// Package verify is the door-side decision engine. Every call produces a
// decision and exactly one audited scan event, or fails closed to NO.
package verify

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"ghostpass/internal/disclosure"
	"ghostpass/internal/nonce"
	"ghostpass/internal/platform/tracer"
	profileservice "ghostpass/internal/profile/service"
	"ghostpass/internal/token/models"
	"ghostpass/internal/verify/metrics"
	id "ghostpass/pkg/domain"
	audit "ghostpass/pkg/platform/audit"
	"ghostpass/pkg/platform/sentinel"
	"ghostpass/pkg/requestcontext"
)

// Opener decodes a scanned payload and checks its signature.
type Opener interface {
	Open(ctx context.Context, payload string) (*models.Token, error)
}

// ProfileSource returns the bearer's profile and standing consent.
type ProfileSource interface {
	Snapshot(ctx context.Context, subject id.SubjectID) (*profileservice.Snapshot, error)
}

type Config struct {
	TTL           models.TTLPolicy
	SkewTolerance time.Duration
	// Budget bounds a scan end to end. Past it the scan answers TIMEOUT.
	Budget time.Duration
	// AuditGrace bounds the detached audit append for timed-out scans.
	AuditGrace time.Duration
}

type Engine struct {
	opener   Opener
	nonces   nonce.Store
	profiles ProfileSource
	auditor  audit.Emitter
	policy   VenuePolicy
	cfg      Config
	logger   *slog.Logger
	tracer   tracer.Tracer
	metrics  *metrics.Metrics
	now      func() time.Time
}

type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

func WithTracer(t tracer.Tracer) Option {
	return func(e *Engine) {
		e.tracer = t
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// New wires the engine. Every dependency is required; a nil one is a
// startup bug.
func New(opener Opener, nonces nonce.Store, profiles ProfileSource, auditor audit.Emitter, policy VenuePolicy, cfg Config, opts ...Option) *Engine {
	if opener == nil || nonces == nil || profiles == nil || auditor == nil || policy == nil {
		panic("verify.New: all dependencies are required")
	}
	if cfg.Budget <= 0 {
		cfg.Budget = 800 * time.Millisecond
	}
	if cfg.AuditGrace <= 0 {
		cfg.AuditGrace = 2 * time.Second
	}
	e := &Engine{
		opener:   opener,
		nonces:   nonces,
		profiles: profiles,
		auditor:  auditor,
		policy:   policy,
		cfg:      cfg,
		logger:   slog.Default(),
		tracer:   tracer.NewNoop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// outcome is the engine's verdict before it is audited.
type outcome struct {
	reason   Reason
	tok      *models.Token
	consumed bool
	snapshot *profileservice.Snapshot
	cause    error
}

// Verify decides a scan. It never returns an error: failures are decisions.
func (e *Engine) Verify(ctx context.Context, req Request) Result {
	start := time.Now()
	now := e.now().UTC()
	ctx, span := e.tracer.Start(ctx, tracer.SpanVerify,
		tracer.String(tracer.AttrStationID, req.StationID.String()),
		tracer.String(tracer.AttrOperatorID, req.OperatorID.String()),
	)

	budgetCtx, cancel := context.WithTimeout(ctx, e.cfg.Budget)
	defer cancel()

	out := e.evaluate(budgetCtx, req, now)
	if budgetCtx.Err() != nil {
		out.reason = ReasonTimeout
	}
	res, auditErr := e.record(ctx, budgetCtx, req, now, out)

	span.SetAttributes(
		tracer.String(tracer.AttrDecision, string(res.Decision)),
		tracer.String(tracer.AttrReason, string(res.Reason)),
	)
	span.End(auditErr)
	if e.metrics != nil {
		e.metrics.IncScan(string(res.Decision), string(res.Reason))
		e.metrics.ObserveScan(start)
	}

	attrs := []any{
		"station_id", req.StationID,
		"operator_id", req.OperatorID,
		"decision", res.Decision,
		"reason", res.Reason,
		"request_id", requestcontext.RequestID(ctx),
	}
	if out.cause != nil {
		attrs = append(attrs, "error", out.cause)
	}
	e.logger.InfoContext(ctx, "scan decided", attrs...)
	return res
}

// evaluate runs the ordered checks. It consumes the nonce of a consumable
// token but never releases it; record does that when the scan ends in NO.
func (e *Engine) evaluate(ctx context.Context, req Request, now time.Time) outcome {
	tok, err := e.open(ctx, req.TokenBytes)
	if err != nil {
		return outcome{reason: openReason(err), cause: err}
	}
	if r := precheck(tok, e.cfg.TTL, now, e.cfg.SkewTolerance); r != "" {
		if r == ReasonStaleClock {
			e.staleClockAlarm(ctx, req, tok, now)
		}
		return outcome{reason: r, tok: tok}
	}

	out := outcome{tok: tok}
	consumeCtx, span := e.tracer.Start(ctx, tracer.SpanVerifyConsume,
		tracer.Bool(tracer.AttrConsumable, tok.Consumable),
		tracer.Bool(tracer.AttrLocked, tok.Locked),
	)
	// Plain group, not WithContext: a failed profile read must not cancel a
	// SET NX that may already have landed.
	var g errgroup.Group
	if tok.Consumable {
		retain := tok.ExpiresAt.Sub(now) + e.cfg.SkewTolerance
		g.Go(func() error {
			ok, err := e.nonces.MarkUsed(consumeCtx, tok.Nonce, retain)
			out.consumed = ok
			return err
		})
	}
	if !tok.Locked && !tok.Bundle.IsEmpty() {
		g.Go(func() error {
			pctx, pspan := e.tracer.Start(consumeCtx, tracer.SpanVerifyProfile)
			snap, err := e.profiles.Snapshot(pctx, tok.SubjectID)
			pspan.End(err)
			out.snapshot = snap
			return err
		})
	}
	err = g.Wait()
	span.End(err)
	if err != nil {
		out.reason = storeReason(err)
		out.cause = err
		return out
	}

	switch {
	case tok.Consumable && !out.consumed:
		out.reason = ReasonUsed
	case tok.Locked:
		out.reason = ReasonLocked
	default:
		out.reason = venueRule(tok, e.policy, req.StationID)
	}
	return out
}

func (e *Engine) open(ctx context.Context, payload string) (*models.Token, error) {
	ctx, span := e.tracer.Start(ctx, tracer.SpanVerifyDecode)
	tok, err := e.opener.Open(ctx, payload)
	if err == nil {
		span.SetAttributes(
			tracer.String(tracer.AttrSubject, tracer.HashSubject(tok.SubjectID.String())),
			tracer.String(tracer.AttrMode, string(tok.Mode)),
		)
	}
	span.End(err)
	return tok, err
}

// record appends the scan event and builds the result. A scan that cannot
// be audited is a NO; a timed-out or abandoned scan is audited best-effort on
// a detached context.
func (e *Engine) record(ctx, budgetCtx context.Context, req Request, now time.Time, out outcome) (Result, error) {
	decision := decisionFor(out.reason)
	event := ScanEvent{
		StationID:  req.StationID,
		OperatorID: req.OperatorID,
		Decision:   decision,
		Reason:     out.reason,
		ScannedAt:  now,
	}
	if out.tok != nil {
		n := out.tok.Nonce
		event.TokenNonce = &n
	}

	detached := out.reason == ReasonTimeout || budgetCtx.Err() != nil
	auditErr := e.emitScan(ctx, budgetCtx, event, detached)
	if auditErr != nil && !detached && budgetCtx.Err() != nil {
		// The budget ran out mid-append: the scan is now a timeout and is
		// audited as one.
		decision = DecisionNo
		out.reason = ReasonTimeout
		event.Decision, event.Reason = decision, out.reason
		detached = true
		auditErr = e.emitScan(ctx, budgetCtx, event, true)
	}

	if auditErr != nil && !detached {
		decision = DecisionNo
		out.reason = ReasonAuditWriteFailure
		e.logger.ErrorContext(ctx, "scan not audited, failing closed",
			"station_id", req.StationID,
			"operator_id", req.OperatorID,
			"error", auditErr,
		)
	} else if auditErr != nil {
		e.logger.WarnContext(ctx, "timed-out scan not audited",
			"station_id", req.StationID,
			"error", auditErr,
		)
	}

	if out.consumed && !decision.Consumes() {
		e.release(ctx, out.tok.Nonce)
	}

	res := Result{
		Decision:  decision,
		Reason:    out.reason,
		Message:   messageFor(out.reason),
		Nonce:     event.TokenNonce,
		ScannedAt: now,
	}
	if decision.Consumes() {
		res.Profile = e.project(out)
	}
	return res, auditErr
}

// emitScan appends the scan event. A detached append outlives the caller and
// the budget, bounded by AuditGrace.
func (e *Engine) emitScan(ctx, budgetCtx context.Context, event ScanEvent, detached bool) error {
	auditCtx := budgetCtx
	if detached {
		var cancel context.CancelFunc
		auditCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), e.cfg.AuditGrace)
		defer cancel()
		if e.metrics != nil {
			e.metrics.IncAuditFallback()
		}
	}
	auditCtx, span := e.tracer.Start(auditCtx, tracer.SpanVerifyAudit)
	err := e.auditor.Emit(auditCtx, event.auditEvent(requestcontext.RequestID(ctx)))
	span.End(err)
	return err
}

func (e *Engine) project(out outcome) *disclosure.RedactedProfile {
	if out.snapshot == nil {
		return &disclosure.RedactedProfile{}
	}
	p := disclosure.Project(disclosure.Input{
		Bundle:  out.tok.Bundle,
		Consent: out.snapshot.Consent,
		Profile: out.snapshot.Profile,
		Viewer:  disclosure.ViewerDoor,
	})
	return &p
}

// release returns a nonce to the unused set so the bearer can scan again.
func (e *Engine) release(ctx context.Context, n id.Nonce) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.AuditGrace)
	defer cancel()
	if err := e.nonces.Release(rctx, n); err != nil {
		e.logger.ErrorContext(ctx, "failed to release nonce after rejected scan",
			"nonce", n,
			"error", err,
		)
		return
	}
	if e.metrics != nil {
		e.metrics.IncNonceRelease()
	}
}

func (e *Engine) staleClockAlarm(ctx context.Context, req Request, tok *models.Token, now time.Time) {
	e.logger.ErrorContext(ctx, "clock skew alarm: token issued in the future",
		"station_id", req.StationID,
		"issued_at", tok.IssuedAt,
		"verifier_now", now,
		"skew", tok.IssuedAt.Sub(now),
		"tolerance", e.cfg.SkewTolerance,
	)
	if e.metrics != nil {
		e.metrics.IncStaleClock()
	}
}

// openReason maps signer failures. Anything that is not an outage, a
// deadline or a cancellation means the payload cannot be trusted.
func openReason(err error) Reason {
	if isAbandoned(err) {
		return ReasonTimeout
	}
	if errors.Is(err, sentinel.ErrUnavailable) {
		return ReasonUnavailable
	}
	return ReasonMalformed
}

func storeReason(err error) Reason {
	if isAbandoned(err) {
		return ReasonTimeout
	}
	return ReasonUnavailable
}

func isAbandoned(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}
