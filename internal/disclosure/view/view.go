// Package view issues browser view sessions for a token's projection. A
// session carries its own expiry, never later than the token's, so a
// long-lived master token cannot keep an unattended tab open.
package view

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/mssola/useragent"

	"ghostpass/internal/disclosure"
	profileservice "ghostpass/internal/profile/service"
	"ghostpass/internal/token/models"
	id "ghostpass/pkg/domain"
	dErrors "ghostpass/pkg/domain-errors"
	audit "ghostpass/pkg/platform/audit"
	"ghostpass/pkg/platform/sentinel"
	"ghostpass/pkg/requestcontext"
)

const issuer = "ghostpass/view"

type Status string

const (
	StatusActive Status = "active"
	StatusLocked Status = "locked"
)

// Opener verifies a token payload against the subject's signing context.
type Opener interface {
	Open(ctx context.Context, payload string) (*models.Token, error)
}

type ProfileSource interface {
	Snapshot(ctx context.Context, subject id.SubjectID) (*profileservice.Snapshot, error)
}

type claims struct {
	Payload string `json:"tok"`
	jwt.RegisteredClaims
}

type Session struct {
	ID        string
	Token     string
	ExpiresAt time.Time
}

type Rendered struct {
	Status    Status
	Profile   *disclosure.RedactedProfile
	ExpiresAt time.Time
}

type Service struct {
	secret   []byte
	ttl      time.Duration
	opener   Opener
	profiles ProfileSource
	auditor  audit.Emitter
	logger   *slog.Logger
	now      func() time.Time
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

func New(secret []byte, ttl time.Duration, opener Opener, profiles ProfileSource, auditor audit.Emitter, opts ...Option) *Service {
	s := &Service{
		secret:   secret,
		ttl:      ttl,
		opener:   opener,
		profiles: profiles,
		auditor:  auditor,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open starts a view session for a valid token. The session is audited
// before it is returned.
func (s *Service) Open(ctx context.Context, payload string) (*Session, error) {
	tok, err := s.opener.Open(ctx, payload)
	if err != nil {
		return nil, openError(err)
	}
	now := s.now()
	if tok.IsExpired(now) {
		return nil, dErrors.New(dErrors.CodeExpired, "token expired")
	}

	expiresAt := now.Add(s.ttl)
	if tok.ExpiresAt.Before(expiresAt) {
		expiresAt = tok.ExpiresAt
	}
	// JWT expiry has second precision; round down so the session never
	// outlives the token.
	expiresAt = expiresAt.Truncate(time.Second)

	sessionID := uuid.NewString()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Payload: payload,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   tok.Nonce.String(),
			ID:        sessionID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}).SignedString(s.secret)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to sign view session")
	}

	nonce := tok.Nonce
	event := audit.Event{
		Action:     audit.ActionViewOpened,
		Timestamp:  now,
		TokenNonce: &nonce,
		RequestID:  requestcontext.RequestID(ctx),
		Metadata:   clientMetadata(ctx, sessionID, tok.Mode),
	}
	if err := s.auditor.Emit(ctx, event); err != nil {
		return nil, err
	}
	return &Session{ID: sessionID, Token: signed, ExpiresAt: expiresAt}, nil
}

// Render returns the current projection for a view session. Lapsed
// sessions, and sessions whose token no longer verifies, render locked.
func (s *Service) Render(ctx context.Context, viewToken string) (*Rendered, error) {
	var c claims
	_, err := jwt.ParseWithClaims(viewToken, &c, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return &Rendered{Status: StatusLocked}, nil
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid view session")
	}
	expiresAt := c.ExpiresAt.Time

	tok, err := s.opener.Open(ctx, c.Payload)
	if err != nil {
		if dErrors.HasCode(openError(err), dErrors.CodeUnavailable) {
			return nil, openError(err)
		}
		s.logger.InfoContext(ctx, "view token no longer verifies", "error", err)
		return &Rendered{Status: StatusLocked, ExpiresAt: expiresAt}, nil
	}
	if tok.IsExpired(s.now()) || tok.Locked {
		return &Rendered{Status: StatusLocked, ExpiresAt: expiresAt}, nil
	}

	snap, err := s.profiles.Snapshot(ctx, tok.SubjectID)
	if err != nil {
		return nil, err
	}
	projection := disclosure.Project(disclosure.Input{
		Bundle:  tok.Bundle,
		Consent: snap.Consent,
		Profile: snap.Profile,
		Viewer:  disclosure.ViewerBrowser,
	})
	projection.ViewExpiresAt = &expiresAt
	return &Rendered{Status: StatusActive, Profile: &projection, ExpiresAt: expiresAt}, nil
}

// openError maps signer failures to domain codes. Anything that is not a
// store outage means the payload cannot be trusted.
func openError(err error) error {
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "token verification timed out")
	}
	if errors.Is(err, sentinel.ErrUnavailable) {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "signing context unavailable")
	}
	return dErrors.Wrap(err, dErrors.CodeMalformed, "token could not be verified")
}

func clientMetadata(ctx context.Context, sessionID string, mode models.Mode) map[string]string {
	meta := map[string]string{
		"view_id": sessionID,
		"mode":    string(mode),
	}
	raw := requestcontext.UserAgent(ctx)
	if raw == "" {
		return meta
	}
	ua := useragent.New(raw)
	browser, _ := ua.Browser()
	meta["browser"] = browser
	meta["os"] = ua.OS()
	meta["mobile"] = strconv.FormatBool(ua.Mobile())
	return meta
}
