package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"ghostpass/internal/profile/models"
	id "ghostpass/pkg/domain"
	"ghostpass/pkg/platform/sentinel"
)

// PostgresStore persists profiles and consent flags in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) GetProfile(ctx context.Context, subject id.SubjectID) (*models.Profile, error) {
	query := `
		SELECT subject_id, display_name, member_id, badges, social_handles, id_document_ref,
		       payment_last4, bar_tab_enabled, health_status, health_verified_at, updated_at
		FROM profiles
		WHERE subject_id = $1
	`
	var (
		p         models.Profile
		subjectID uuid.UUID
		badges    []byte
		handles   []byte
		health    string
		healthAt  sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, query, uuid.UUID(subject)).Scan(
		&subjectID, &p.DisplayName, &p.MemberID, &badges, &handles, &p.IDDocumentRef,
		&p.PaymentLast4, &p.BarTabEnabled, &health, &healthAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, errors.Join(sentinel.ErrUnavailable, fmt.Errorf("get profile: %w", err))
	}
	if err := json.Unmarshal(badges, &p.Badges); err != nil {
		return nil, fmt.Errorf("decode badges: %w", err)
	}
	if err := json.Unmarshal(handles, &p.SocialHandles); err != nil {
		return nil, fmt.Errorf("decode social handles: %w", err)
	}
	p.SubjectID = id.SubjectID(subjectID)
	p.HealthStatus = models.HealthStatus(health)
	if healthAt.Valid {
		t := healthAt.Time
		p.HealthVerifiedAt = &t
	}
	return &p, nil
}

func (s *PostgresStore) PutProfile(ctx context.Context, p *models.Profile) error {
	badges, err := json.Marshal(nonNil(p.Badges))
	if err != nil {
		return fmt.Errorf("encode badges: %w", err)
	}
	handles, err := json.Marshal(nonNil(p.SocialHandles))
	if err != nil {
		return fmt.Errorf("encode social handles: %w", err)
	}
	query := `
		INSERT INTO profiles (subject_id, display_name, member_id, badges, social_handles, id_document_ref,
		                      payment_last4, bar_tab_enabled, health_status, health_verified_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (subject_id) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			member_id = EXCLUDED.member_id,
			badges = EXCLUDED.badges,
			social_handles = EXCLUDED.social_handles,
			id_document_ref = EXCLUDED.id_document_ref,
			payment_last4 = EXCLUDED.payment_last4,
			bar_tab_enabled = EXCLUDED.bar_tab_enabled,
			health_status = EXCLUDED.health_status,
			health_verified_at = EXCLUDED.health_verified_at,
			updated_at = EXCLUDED.updated_at
	`
	_, err = s.db.ExecContext(ctx, query,
		uuid.UUID(p.SubjectID), p.DisplayName, p.MemberID, badges, handles, p.IDDocumentRef,
		p.PaymentLast4, p.BarTabEnabled, string(p.HealthStatus), p.HealthVerifiedAt, p.UpdatedAt,
	)
	if err != nil {
		return errors.Join(sentinel.ErrUnavailable, fmt.Errorf("put profile: %w", err))
	}
	return nil
}

func (s *PostgresStore) GetConsent(ctx context.Context, subject id.SubjectID) (*models.ConsentFlags, error) {
	query := `
		SELECT identity, social_handles, id_document, payment, health, updated_at
		FROM consent_flags
		WHERE subject_id = $1
	`
	c := models.ConsentFlags{SubjectID: subject}
	err := s.db.QueryRowContext(ctx, query, uuid.UUID(subject)).Scan(
		&c.Identity, &c.SocialHandles, &c.IDDocument, &c.Payment, &c.Health, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, errors.Join(sentinel.ErrUnavailable, fmt.Errorf("get consent: %w", err))
	}
	return &c, nil
}

func (s *PostgresStore) PutConsent(ctx context.Context, c *models.ConsentFlags) error {
	query := `
		INSERT INTO consent_flags (subject_id, identity, social_handles, id_document, payment, health, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (subject_id) DO UPDATE SET
			identity = EXCLUDED.identity,
			social_handles = EXCLUDED.social_handles,
			id_document = EXCLUDED.id_document,
			payment = EXCLUDED.payment,
			health = EXCLUDED.health,
			updated_at = EXCLUDED.updated_at
	`
	_, err := s.db.ExecContext(ctx, query,
		uuid.UUID(c.SubjectID), c.Identity, c.SocialHandles, c.IDDocument, c.Payment, c.Health, c.UpdatedAt,
	)
	if err != nil {
		return errors.Join(sentinel.ErrUnavailable, fmt.Errorf("put consent: %w", err))
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
