// Package models holds the bearer profile and the standing per-field consent
// flags that gate its disclosure.
package models

import (
	"time"

	id "ghostpass/pkg/domain"
)

type HealthStatus string

const (
	HealthVerified HealthStatus = "verified"
	HealthPending  HealthStatus = "pending"
	HealthNone     HealthStatus = "none"
)

func (h HealthStatus) IsValid() bool {
	switch h {
	case HealthVerified, HealthPending, HealthNone:
		return true
	}
	return false
}

// Profile is the full bearer record. It never leaves the service whole; the
// disclosure projector copies the permitted subset.
type Profile struct {
	SubjectID        id.SubjectID
	DisplayName      string
	MemberID         string
	Badges           []string
	SocialHandles    []string
	IDDocumentRef    string
	PaymentLast4     string
	BarTabEnabled    bool
	HealthStatus     HealthStatus
	HealthVerifiedAt *time.Time
	UpdatedAt        time.Time
}

// ConsentFlags are the bearer's standing opt-ins. The zero value discloses nothing.
type ConsentFlags struct {
	SubjectID     id.SubjectID
	Identity      bool
	SocialHandles bool
	IDDocument    bool
	Payment       bool
	Health        bool
	UpdatedAt     time.Time
}

// DenyAll is used when a subject has never recorded consent.
func DenyAll(subject id.SubjectID) *ConsentFlags {
	return &ConsentFlags{SubjectID: subject}
}
