package store

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ghostpass/internal/profile/models"
	id "ghostpass/pkg/domain"
	"ghostpass/pkg/platform/sentinel"
)

func TestInMemoryStore_ProfileRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	subject := id.SubjectID(uuid.New())

	_, err := s.GetProfile(ctx, subject)
	assert.ErrorIs(t, err, sentinel.ErrNotFound)

	p := &models.Profile{SubjectID: subject, DisplayName: "Ana", Badges: []string{"vip"}}
	require.NoError(t, s.PutProfile(ctx, p))
	p.Badges[0] = "mutated"

	got, err := s.GetProfile(ctx, subject)
	require.NoError(t, err)
	assert.Equal(t, []string{"vip"}, got.Badges)
}

func TestInMemoryStore_ConsentRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	subject := id.SubjectID(uuid.New())

	_, err := s.GetConsent(ctx, subject)
	assert.ErrorIs(t, err, sentinel.ErrNotFound)

	require.NoError(t, s.PutConsent(ctx, &models.ConsentFlags{SubjectID: subject, Payment: true}))
	got, err := s.GetConsent(ctx, subject)
	require.NoError(t, err)
	assert.True(t, got.Payment)
	assert.False(t, got.Identity)
}
