//go:build integration

package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	id "ghostpass/pkg/domain"
	audit "ghostpass/pkg/platform/audit"
	"ghostpass/pkg/platform/audit/store/postgres"
	"ghostpass/pkg/testutil/containers"
)

type PostgresAuditStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *postgres.Store
}

func TestPostgresAuditStoreSuite(t *testing.T) {
	suite.Run(t, new(PostgresAuditStoreSuite))
}

func (s *PostgresAuditStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = postgres.New(s.postgres.DB)
}

func (s *PostgresAuditStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.Reset(context.Background(), "audit_events"))
}

func (s *PostgresAuditStoreSuite) TestAppendAndList() {
	ctx := context.Background()
	nonce := id.NewNonce()
	base := time.Date(2026, 5, 1, 22, 0, 0, 0, time.UTC)

	s.Require().NoError(s.store.Append(ctx, audit.Event{
		Category:   audit.CategoryScan,
		Action:     audit.ActionScanPerformed,
		Timestamp:  base,
		StationID:  "S1",
		OperatorID: "O1",
		TokenNonce: &nonce,
		Decision:   "GOOD",
		Reason:     "GOOD",
		Metadata:   map[string]string{"venue_id": "v1"},
	}))
	s.Require().NoError(s.store.Append(ctx, audit.Event{
		Category:      audit.CategoryShift,
		Action:        audit.ActionShiftSwitch,
		Timestamp:     base.Add(time.Second),
		StationID:     "S1",
		OperatorID:    "O1",
		FromStationID: "S1",
		ToStationID:   "S2",
	}))

	events, err := s.store.ListByStation(ctx, "S1", 10)
	s.Require().NoError(err)
	s.Require().Len(events, 2)
	s.Equal(audit.ActionShiftSwitch, events[0].Action)
	s.Equal(id.StationID("S2"), events[0].ToStationID)
	s.Nil(events[0].TokenNonce)
	s.Require().NotNil(events[1].TokenNonce)
	s.Equal(nonce, *events[1].TokenNonce)
	s.Equal("v1", events[1].Metadata["venue_id"])

	n, err := s.store.CountByNonce(ctx, nonce)
	s.Require().NoError(err)
	s.Equal(1, n)
}

func (s *PostgresAuditStoreSuite) TestAppendIsIdempotentByID() {
	ctx := context.Background()
	event := audit.Event{
		ID:        uuid.New(),
		Category:  audit.CategoryScan,
		Action:    audit.ActionScanPerformed,
		Timestamp: time.Now().UTC(),
		StationID: "S3",
		Decision:  "NO",
		Reason:    "MALFORMED",
	}
	s.Require().NoError(s.store.Append(ctx, event))
	s.Require().NoError(s.store.Append(ctx, event))

	events, err := s.store.ListByStation(ctx, "S3", 0)
	s.Require().NoError(err)
	s.Len(events, 1)
}
