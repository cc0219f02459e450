// Package codec converts tokens to and from the scannable QR payload:
// "GP1." followed by unpadded base64url of a deterministic CBOR map.
package codec

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"ghostpass/internal/token/models"
	id "ghostpass/pkg/domain"
)

const (
	Prefix = "GP1."
	// MaxPayloadLen bounds what a scanner may hand us before any decoding.
	MaxPayloadLen = 1024
)

// ErrMalformed covers every decode failure. Callers never learn which part
// of the payload was wrong.
var ErrMalformed = errors.New("malformed token payload")

const (
	bundleIdentity uint8 = 1 << iota
	bundlePayment
	bundleHealth
	bundleIDDocument
)

const (
	modeStandard uint8 = iota
	modeIncognitoMaster
)

type wireToken struct {
	Nonce      []byte `cbor:"n"`
	Subject    []byte `cbor:"s"`
	Venue      []byte `cbor:"v,omitempty"`
	Bundle     uint8  `cbor:"b"`
	Amount     string `cbor:"a,omitempty"`
	Mode       uint8  `cbor:"m"`
	Locked     bool   `cbor:"l"`
	Consumable bool   `cbor:"c"`
	IssuedAt   int64  `cbor:"i"`
	ExpiresAt  int64  `cbor:"e"`
	KeyEpoch   uint32 `cbor:"k"`
	Signature  []byte `cbor:"g,omitempty"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyEnforcedAPF,
		ExtraReturnErrors: cbor.ExtraDecErrorUnknownField,
		MaxNestedLevels:   4,
		MaxMapPairs:       16,
		MaxArrayElements:  16,
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// SigningBytes returns the canonical encoding of every field except the
// signature. Timestamps are carried at millisecond precision.
func SigningBytes(t *models.Token) ([]byte, error) {
	w, err := toWire(t)
	if err != nil {
		return nil, err
	}
	w.Signature = nil
	return encMode.Marshal(w)
}

// Encode renders a signed token as a QR payload.
func Encode(t *models.Token) (string, error) {
	if len(t.Signature) == 0 {
		return "", errors.New("codec: token is unsigned")
	}
	w, err := toWire(t)
	if err != nil {
		return "", err
	}
	b, err := encMode.Marshal(w)
	if err != nil {
		return "", fmt.Errorf("codec: encode token: %w", err)
	}
	return Prefix + base64.RawURLEncoding.EncodeToString(b), nil
}

// Decode parses a QR payload. The signature is carried but not checked.
func Decode(payload string) (*models.Token, error) {
	if len(payload) > MaxPayloadLen || !strings.HasPrefix(payload, Prefix) {
		return nil, ErrMalformed
	}
	raw, err := base64.RawURLEncoding.DecodeString(payload[len(Prefix):])
	if err != nil {
		return nil, ErrMalformed
	}
	var w wireToken
	if err := decMode.Unmarshal(raw, &w); err != nil {
		return nil, ErrMalformed
	}
	t, err := fromWire(&w)
	if err != nil {
		return nil, ErrMalformed
	}
	return t, nil
}

func toWire(t *models.Token) (*wireToken, error) {
	w := &wireToken{
		Nonce:      uuidBytes(uuid.UUID(t.Nonce)),
		Subject:    uuidBytes(uuid.UUID(t.SubjectID)),
		Bundle:     packBundle(t.Bundle),
		Locked:     t.Locked,
		Consumable: t.Consumable,
		IssuedAt:   t.IssuedAt.UnixMilli(),
		ExpiresAt:  t.ExpiresAt.UnixMilli(),
		KeyEpoch:   t.KeyEpoch,
		Signature:  t.Signature,
	}
	switch t.Mode {
	case models.ModeStandard:
		w.Mode = modeStandard
	case models.ModeIncognitoMaster:
		w.Mode = modeIncognitoMaster
	default:
		return nil, fmt.Errorf("codec: unknown mode %q", t.Mode)
	}
	if t.VenueID != nil {
		w.Venue = uuidBytes(uuid.UUID(*t.VenueID))
	}
	if t.BalanceSnapshot != nil {
		w.Amount = t.BalanceSnapshot.String()
	}
	return w, nil
}

func fromWire(w *wireToken) (*models.Token, error) {
	nonce, err := uuid.FromBytes(w.Nonce)
	if err != nil {
		return nil, err
	}
	subject, err := uuid.FromBytes(w.Subject)
	if err != nil {
		return nil, err
	}
	t := &models.Token{
		Nonce:      id.Nonce(nonce),
		SubjectID:  id.SubjectID(subject),
		Bundle:     unpackBundle(w.Bundle),
		Locked:     w.Locked,
		Consumable: w.Consumable,
		IssuedAt:   time.UnixMilli(w.IssuedAt).UTC(),
		ExpiresAt:  time.UnixMilli(w.ExpiresAt).UTC(),
		KeyEpoch:   w.KeyEpoch,
		Signature:  w.Signature,
	}
	if w.Bundle&^(bundleIdentity|bundlePayment|bundleHealth|bundleIDDocument) != 0 {
		return nil, errors.New("unknown bundle bits")
	}
	switch w.Mode {
	case modeStandard:
		t.Mode = models.ModeStandard
	case modeIncognitoMaster:
		t.Mode = models.ModeIncognitoMaster
	default:
		return nil, errors.New("unknown mode")
	}
	if len(w.Venue) > 0 {
		venue, err := uuid.FromBytes(w.Venue)
		if err != nil {
			return nil, err
		}
		v := id.VenueID(venue)
		t.VenueID = &v
	}
	if w.Amount != "" {
		amount, err := decimal.NewFromString(w.Amount)
		if err != nil {
			return nil, err
		}
		t.BalanceSnapshot = &amount
	}
	return t, nil
}

func uuidBytes(u uuid.UUID) []byte {
	return u[:]
}

func packBundle(b models.Bundle) uint8 {
	var bits uint8
	if b.Identity {
		bits |= bundleIdentity
	}
	if b.Payment {
		bits |= bundlePayment
	}
	if b.Health {
		bits |= bundleHealth
	}
	if b.IDDocument {
		bits |= bundleIDDocument
	}
	return bits
}

func unpackBundle(bits uint8) models.Bundle {
	return models.Bundle{
		Identity:   bits&bundleIdentity != 0,
		Payment:    bits&bundlePayment != 0,
		Health:     bits&bundleHealth != 0,
		IDDocument: bits&bundleIDDocument != 0,
	}
}
