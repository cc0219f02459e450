// Package domain provides type-safe identifiers to prevent mixing up IDs at compile time.
package domain

import (
	"regexp"

	"github.com/google/uuid"

	dErrors "ghostpass/pkg/domain-errors"
)

// Distinct ID types - compiler prevents passing SubjectID where VenueID is expected.
type (
	SubjectID uuid.UUID
	VenueID   uuid.UUID
	ShiftID   uuid.UUID
	Nonce     uuid.UUID
)

// StationID and OperatorID are short human-assigned labels printed on
// terminals and badges (e.g. "S1", "gate-north", "O1").
type (
	StationID  string
	OperatorID string
)

// labelPattern bounds station and operator labels to something a terminal can
// display and a QR payload can carry without escaping.
var labelPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.:-]{0,63}$`)

// Parse functions - use at trust boundaries (handlers, API inputs).

func ParseSubjectID(s string) (SubjectID, error) {
	id, err := parseUUID(s, "subject ID")
	return SubjectID(id), err
}

func ParseVenueID(s string) (VenueID, error) {
	id, err := parseUUID(s, "venue ID")
	return VenueID(id), err
}

func ParseShiftID(s string) (ShiftID, error) {
	id, err := parseUUID(s, "shift ID")
	return ShiftID(id), err
}

func ParseNonce(s string) (Nonce, error) {
	id, err := parseUUID(s, "nonce")
	return Nonce(id), err
}

func ParseStationID(s string) (StationID, error) {
	if err := parseLabel(s, "station ID"); err != nil {
		return "", err
	}
	return StationID(s), nil
}

func ParseOperatorID(s string) (OperatorID, error) {
	if err := parseLabel(s, "operator ID"); err != nil {
		return "", err
	}
	return OperatorID(s), nil
}

// NewNonce returns a fresh random nonce. Every mint gets its own.
func NewNonce() Nonce { return Nonce(uuid.New()) }

// NewShiftID returns a fresh shift identifier.
func NewShiftID() ShiftID { return ShiftID(uuid.New()) }

// String methods - for logging and debugging.

func (id SubjectID) String() string  { return uuid.UUID(id).String() }
func (id VenueID) String() string    { return uuid.UUID(id).String() }
func (id ShiftID) String() string    { return uuid.UUID(id).String() }
func (id Nonce) String() string      { return uuid.UUID(id).String() }
func (id StationID) String() string  { return string(id) }
func (id OperatorID) String() string { return string(id) }

// IsNil checks - used for service-layer validation.

func (id SubjectID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id VenueID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id ShiftID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id Nonce) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }
func (id StationID) IsNil() bool  { return id == "" }
func (id OperatorID) IsNil() bool { return id == "" }

// parseUUID is the shared validation logic. Nil UUIDs are rejected: every
// identifier here names something that must exist.
func parseUUID(s, label string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" cannot be empty")
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+label+" format")
	}
	if id == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" cannot be nil")
	}
	return id, nil
}

func parseLabel(s, label string) error {
	if s == "" {
		return dErrors.New(dErrors.CodeInvalidInput, label+" cannot be empty")
	}
	if !labelPattern.MatchString(s) {
		return dErrors.New(dErrors.CodeInvalidInput, "invalid "+label+" format")
	}
	return nil
}

// Text encoding - UUID-backed IDs marshal as their canonical string form.

func (id SubjectID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id VenueID) MarshalText() ([]byte, error)   { return uuid.UUID(id).MarshalText() }
func (id ShiftID) MarshalText() ([]byte, error)   { return uuid.UUID(id).MarshalText() }
func (id Nonce) MarshalText() ([]byte, error)     { return uuid.UUID(id).MarshalText() }

func (id *SubjectID) UnmarshalText(b []byte) error { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *VenueID) UnmarshalText(b []byte) error   { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *ShiftID) UnmarshalText(b []byte) error   { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *Nonce) UnmarshalText(b []byte) error     { return (*uuid.UUID)(id).UnmarshalText(b) }
