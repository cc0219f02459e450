package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ghostpass/internal/profile/models"
	"ghostpass/internal/profile/store"
	id "ghostpass/pkg/domain"
	dErrors "ghostpass/pkg/domain-errors"
	"ghostpass/pkg/platform/sentinel"
)

type failingStore struct {
	*store.InMemoryStore
}

func (failingStore) GetConsent(context.Context, id.SubjectID) (*models.ConsentFlags, error) {
	return nil, errors.Join(sentinel.ErrUnavailable, errors.New("connection reset"))
}

func TestSnapshot_UnprovisionedSubjectDisclosesNothing(t *testing.T) {
	svc := New(store.NewInMemory())
	subject := id.SubjectID(uuid.New())

	snap, err := svc.Snapshot(context.Background(), subject)
	require.NoError(t, err)
	assert.Equal(t, models.HealthNone, snap.Profile.HealthStatus)
	assert.Equal(t, *models.DenyAll(subject), *snap.Consent)
}

func TestSnapshot_ReturnsStoredValues(t *testing.T) {
	ctx := context.Background()
	svc := New(store.NewInMemory())
	subject := id.SubjectID(uuid.New())

	require.NoError(t, svc.Save(ctx,
		&models.Profile{SubjectID: subject, DisplayName: "Ana", PaymentLast4: "4242"},
		&models.ConsentFlags{Payment: true},
	))

	snap, err := svc.Snapshot(ctx, subject)
	require.NoError(t, err)
	assert.Equal(t, "Ana", snap.Profile.DisplayName)
	assert.True(t, snap.Consent.Payment)
	assert.Equal(t, subject, snap.Consent.SubjectID)
}

func TestSnapshot_StoreFailure(t *testing.T) {
	svc := New(failingStore{store.NewInMemory()})
	_, err := svc.Snapshot(context.Background(), id.SubjectID(uuid.New()))
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnavailable))
}

func TestSave_RejectsUnknownHealthStatus(t *testing.T) {
	svc := New(store.NewInMemory())
	err := svc.Save(context.Background(),
		&models.Profile{SubjectID: id.SubjectID(uuid.New()), HealthStatus: "positive"},
		&models.ConsentFlags{},
	)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}
