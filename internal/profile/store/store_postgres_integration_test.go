//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"ghostpass/internal/profile/models"
	"ghostpass/internal/profile/store"
	id "ghostpass/pkg/domain"
	"ghostpass/pkg/platform/sentinel"
	"ghostpass/pkg/testutil/containers"
)

type PostgresProfileStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
}

func TestPostgresProfileStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresProfileStoreSuite))
}

func (s *PostgresProfileStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
}

func (s *PostgresProfileStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.Reset(context.Background(), "profiles", "consent_flags"))
}

func (s *PostgresProfileStoreSuite) TestProfileUpsert() {
	ctx := context.Background()
	subject := id.SubjectID(uuid.New())
	verifiedAt := time.Date(2026, 4, 30, 12, 0, 0, 0, time.UTC)

	_, err := s.store.GetProfile(ctx, subject)
	s.ErrorIs(err, sentinel.ErrNotFound)

	s.Require().NoError(s.store.PutProfile(ctx, &models.Profile{
		SubjectID:        subject,
		DisplayName:      "Ana",
		MemberID:         "M-1",
		Badges:           []string{"vip"},
		PaymentLast4:     "4242",
		BarTabEnabled:    true,
		HealthStatus:     models.HealthVerified,
		HealthVerifiedAt: &verifiedAt,
		UpdatedAt:        verifiedAt,
	}))
	s.Require().NoError(s.store.PutProfile(ctx, &models.Profile{
		SubjectID:    subject,
		DisplayName:  "Ana B",
		HealthStatus: models.HealthNone,
		UpdatedAt:    verifiedAt.Add(time.Hour),
	}))

	got, err := s.store.GetProfile(ctx, subject)
	s.Require().NoError(err)
	s.Equal("Ana B", got.DisplayName)
	s.Empty(got.Badges)
	s.Empty(got.SocialHandles)
	s.Equal(models.HealthNone, got.HealthStatus)
	s.Nil(got.HealthVerifiedAt)
	s.False(got.BarTabEnabled)
}

func (s *PostgresProfileStoreSuite) TestProfileKeepsListsAndHealth() {
	ctx := context.Background()
	subject := id.SubjectID(uuid.New())
	verifiedAt := time.Date(2026, 4, 30, 12, 0, 0, 0, time.UTC)

	s.Require().NoError(s.store.PutProfile(ctx, &models.Profile{
		SubjectID:        subject,
		DisplayName:      "Ana",
		Badges:           []string{"vip", "crew"},
		SocialHandles:    []string{"@ana"},
		HealthStatus:     models.HealthVerified,
		HealthVerifiedAt: &verifiedAt,
		UpdatedAt:        verifiedAt,
	}))

	got, err := s.store.GetProfile(ctx, subject)
	s.Require().NoError(err)
	s.Equal([]string{"vip", "crew"}, got.Badges)
	s.Equal([]string{"@ana"}, got.SocialHandles)
	s.Equal(models.HealthVerified, got.HealthStatus)
	s.Require().NotNil(got.HealthVerifiedAt)
	s.True(got.HealthVerifiedAt.Equal(verifiedAt))
}

func (s *PostgresProfileStoreSuite) TestConsentUpsert() {
	ctx := context.Background()
	subject := id.SubjectID(uuid.New())
	now := time.Date(2026, 5, 1, 22, 0, 0, 0, time.UTC)

	_, err := s.store.GetConsent(ctx, subject)
	s.ErrorIs(err, sentinel.ErrNotFound)

	s.Require().NoError(s.store.PutConsent(ctx, &models.ConsentFlags{
		SubjectID: subject, Identity: true, Payment: true, UpdatedAt: now,
	}))
	s.Require().NoError(s.store.PutConsent(ctx, &models.ConsentFlags{
		SubjectID: subject, Health: true, UpdatedAt: now.Add(time.Minute),
	}))

	got, err := s.store.GetConsent(ctx, subject)
	s.Require().NoError(err)
	s.False(got.Identity)
	s.False(got.Payment)
	s.True(got.Health)
	s.Equal(subject, got.SubjectID)
}
