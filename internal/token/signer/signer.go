// Package signer seals tokens with a keyed BLAKE3 MAC. Each subject has its
// own key derived from the master secret, the subject ID and the subject's
// current key epoch; bumping the epoch invalidates every outstanding token
// for that subject.
package signer

import (
	"context"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"

	"ghostpass/internal/token/codec"
	"ghostpass/internal/token/models"
	id "ghostpass/pkg/domain"
)

const (
	deriveContext = "ghostpass 2026-05 token signing key v1"
	macSize       = 32
	minSecretLen  = 32
)

var (
	ErrBadSignature = errors.New("token signature mismatch")
	ErrStaleEpoch   = errors.New("token key epoch revoked")
)

// EpochStore tracks each subject's current key epoch. Unknown subjects are at 0.
type EpochStore interface {
	Current(ctx context.Context, subject id.SubjectID) (uint32, error)
	Bump(ctx context.Context, subject id.SubjectID) (uint32, error)
}

type Signer struct {
	secret []byte
	epochs EpochStore
}

func New(secret []byte, epochs EpochStore) (*Signer, error) {
	if len(secret) < minSecretLen {
		return nil, fmt.Errorf("signer: secret must be at least %d bytes", minSecretLen)
	}
	return &Signer{secret: append([]byte(nil), secret...), epochs: epochs}, nil
}

// Seal stamps the current epoch onto t, signs it and returns the QR payload.
func (s *Signer) Seal(ctx context.Context, t *models.Token) (string, error) {
	epoch, err := s.epochs.Current(ctx, t.SubjectID)
	if err != nil {
		return "", fmt.Errorf("read key epoch: %w", err)
	}
	t.KeyEpoch = epoch
	msg, err := codec.SigningBytes(t)
	if err != nil {
		return "", err
	}
	t.Signature = s.mac(t.SubjectID, epoch, msg)
	return codec.Encode(t)
}

// Open decodes a payload and checks its signature against the subject's
// current signing context. Decode failures return codec.ErrMalformed.
func (s *Signer) Open(ctx context.Context, payload string) (*models.Token, error) {
	t, err := codec.Decode(payload)
	if err != nil {
		return nil, err
	}
	if len(t.Signature) != macSize {
		return nil, ErrBadSignature
	}
	msg, err := codec.SigningBytes(t)
	if err != nil {
		return nil, codec.ErrMalformed
	}
	if subtle.ConstantTimeCompare(s.mac(t.SubjectID, t.KeyEpoch, msg), t.Signature) != 1 {
		return nil, ErrBadSignature
	}
	current, err := s.epochs.Current(ctx, t.SubjectID)
	if err != nil {
		return nil, fmt.Errorf("read key epoch: %w", err)
	}
	if t.KeyEpoch != current {
		return nil, ErrStaleEpoch
	}
	return t, nil
}

// Revoke bumps the subject's epoch. Tokens sealed before the call stop verifying.
func (s *Signer) Revoke(ctx context.Context, subject id.SubjectID) (uint32, error) {
	return s.epochs.Bump(ctx, subject)
}

func (s *Signer) mac(subject id.SubjectID, epoch uint32, msg []byte) []byte {
	material := make([]byte, 0, len(s.secret)+16+4)
	material = append(material, s.secret...)
	u := uuid.UUID(subject)
	material = append(material, u[:]...)
	material = binary.BigEndian.AppendUint32(material, epoch)

	key := make([]byte, 32)
	blake3.DeriveKey(deriveContext, material, key)

	// NewKeyed only fails on a wrong key length.
	h, err := blake3.NewKeyed(key)
	if err != nil {
		panic("signer: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	_, _ = h.Write(msg)
	return h.Sum(nil)
}
