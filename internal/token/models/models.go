// Package models defines the door-pass token and its permission bundle.
package models

import (
	"time"

	"github.com/shopspring/decimal"

	id "ghostpass/pkg/domain"
)

type Mode string

const (
	// ModeStandard tokens are short-lived and rotated by the bearer display.
	ModeStandard Mode = "standard"
	// ModeIncognitoMaster tokens are long-lived and never rotated.
	ModeIncognitoMaster Mode = "incognito_master"
)

func (m Mode) IsValid() bool {
	return m == ModeStandard || m == ModeIncognitoMaster
}

func (m Mode) String() string { return string(m) }

// Bundle is the set of disclosure categories a token carries. IDDocument is a
// narrower sub-flag of Identity and means nothing on its own.
type Bundle struct {
	Identity   bool `json:"identity"`
	Payment    bool `json:"payment"`
	Health     bool `json:"health"`
	IDDocument bool `json:"id_document"`
}

func (b Bundle) IsEmpty() bool {
	return !b.Identity && !b.Payment && !b.Health
}

// Normalize drops the ID document sub-flag when identity is absent.
func (b Bundle) Normalize() Bundle {
	if !b.Identity {
		b.IDDocument = false
	}
	return b
}

// Token is immutable once signed. Locked tokens carry an empty bundle, no
// snapshot, standard mode and are never consumable.
type Token struct {
	Nonce           id.Nonce
	SubjectID       id.SubjectID
	VenueID         *id.VenueID
	Bundle          Bundle
	BalanceSnapshot *decimal.Decimal
	Mode            Mode
	Locked          bool
	Consumable      bool
	IssuedAt        time.Time
	ExpiresAt       time.Time
	KeyEpoch        uint32
	Signature       []byte
}

// IsExpired reports whether now is past the token's lifetime. The expiry
// instant itself is still valid.
func (t *Token) IsExpired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// Lifetime is the signed validity window.
func (t *Token) Lifetime() time.Duration {
	return t.ExpiresAt.Sub(t.IssuedAt)
}

// TTLPolicy maps modes to lifetimes.
type TTLPolicy struct {
	Standard time.Duration
	Master   time.Duration
}

func (p TTLPolicy) For(m Mode) time.Duration {
	if m == ModeIncognitoMaster {
		return p.Master
	}
	return p.Standard
}

// CheckShape reports whether t's fields are mutually consistent and its
// lifetime fits the policy for its mode. A token failing this check was not
// produced by the minter, or was produced under a policy that no longer holds.
func (t *Token) CheckShape(p TTLPolicy) bool {
	if !t.Mode.IsValid() || t.Nonce.IsNil() || t.SubjectID.IsNil() {
		return false
	}
	lifetime := t.Lifetime()
	if lifetime <= 0 || lifetime > p.For(t.Mode) {
		return false
	}
	if t.BalanceSnapshot != nil && !t.Bundle.Payment {
		return false
	}
	if t.Bundle.IDDocument && !t.Bundle.Identity {
		return false
	}
	if t.Locked {
		return t.Mode == ModeStandard && t.Bundle.IsEmpty() && !t.Consumable && t.BalanceSnapshot == nil
	}
	return true
}
