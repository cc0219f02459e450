package signer

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"ghostpass/internal/token/codec"
	"ghostpass/internal/token/models"
	id "ghostpass/pkg/domain"
)

var secret = []byte("test-secret-0123456789abcdefghijklmnop")

func newToken() *models.Token {
	issued := time.Now().UTC().Truncate(time.Millisecond)
	return &models.Token{
		Nonce:      id.NewNonce(),
		SubjectID:  id.SubjectID(uuid.New()),
		Bundle:     models.Bundle{Payment: true},
		Mode:       models.ModeStandard,
		Consumable: true,
		IssuedAt:   issued,
		ExpiresAt:  issued.Add(30 * time.Second),
	}
}

type SignerSuite struct {
	suite.Suite
	newEpochs func(t *testing.T) EpochStore
	signer    *Signer
}

func TestSignerInMemory(t *testing.T) {
	suite.Run(t, &SignerSuite{newEpochs: func(*testing.T) EpochStore { return NewInMemoryEpochs() }})
}

func TestSignerRedis(t *testing.T) {
	suite.Run(t, &SignerSuite{newEpochs: func(t *testing.T) EpochStore {
		mr := miniredis.RunT(t)
		return NewRedisEpochs(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	}})
}

func (s *SignerSuite) SetupTest() {
	var err error
	s.signer, err = New(secret, s.newEpochs(s.T()))
	s.Require().NoError(err)
}

func (s *SignerSuite) TestSealOpen() {
	ctx := context.Background()
	tok := newToken()
	payload, err := s.signer.Seal(ctx, tok)
	s.Require().NoError(err)

	got, err := s.signer.Open(ctx, payload)
	s.Require().NoError(err)
	s.Equal(tok.Nonce, got.Nonce)
	s.Equal(uint32(0), got.KeyEpoch)
}

func (s *SignerSuite) TestTamperedFieldFails() {
	ctx := context.Background()
	tok := newToken()
	_, err := s.signer.Seal(ctx, tok)
	s.Require().NoError(err)

	tok.Bundle.Identity = true
	forged, err := codec.Encode(tok)
	s.Require().NoError(err)

	_, err = s.signer.Open(ctx, forged)
	s.ErrorIs(err, ErrBadSignature)
}

func (s *SignerSuite) TestForeignSecretFails() {
	ctx := context.Background()
	other, err := New([]byte(strings.Repeat("x", 40)), NewInMemoryEpochs())
	s.Require().NoError(err)
	payload, err := other.Seal(ctx, newToken())
	s.Require().NoError(err)

	_, err = s.signer.Open(ctx, payload)
	s.ErrorIs(err, ErrBadSignature)
}

func (s *SignerSuite) TestRevokeInvalidatesOutstandingTokens() {
	ctx := context.Background()
	tok := newToken()
	payload, err := s.signer.Seal(ctx, tok)
	s.Require().NoError(err)

	epoch, err := s.signer.Revoke(ctx, tok.SubjectID)
	s.Require().NoError(err)
	s.Equal(uint32(1), epoch)

	_, err = s.signer.Open(ctx, payload)
	s.ErrorIs(err, ErrStaleEpoch)

	fresh := newToken()
	fresh.SubjectID = tok.SubjectID
	payload, err = s.signer.Seal(ctx, fresh)
	s.Require().NoError(err)
	_, err = s.signer.Open(ctx, payload)
	s.NoError(err)
}

func TestNewRejectsShortSecret(t *testing.T) {
	_, err := New([]byte("short"), NewInMemoryEpochs())
	require.Error(t, err)
}

func TestOpenMalformed(t *testing.T) {
	s, err := New(secret, NewInMemoryEpochs())
	require.NoError(t, err)
	_, err = s.Open(context.Background(), "GP1.notcbor")
	assert.ErrorIs(t, err, codec.ErrMalformed)
}
