package verify

import (
	"time"

	"ghostpass/internal/disclosure"
	id "ghostpass/pkg/domain"
	audit "ghostpass/pkg/platform/audit"
)

// Decision is what the door does with the bearer.
type Decision string

const (
	DecisionGood   Decision = "GOOD"
	DecisionReview Decision = "REVIEW"
	DecisionNo     Decision = "NO"
)

// Consumes reports whether the decision spends a consumable token.
func (d Decision) Consumes() bool {
	return d == DecisionGood || d == DecisionReview
}

// Reason explains a decision. Reasons are ordered by the check that produced
// them; the first failing check wins.
type Reason string

const (
	ReasonOK                Reason = "OK"
	ReasonMalformed         Reason = "MALFORMED"
	ReasonStaleClock        Reason = "STALE_CLOCK"
	ReasonExpired           Reason = "EXPIRED"
	ReasonUsed              Reason = "USED"
	ReasonLocked            Reason = "LOCKED"
	ReasonHealthRequired    Reason = "HEALTH_REQUIRED"
	ReasonVenueMismatch     Reason = "VENUE_MISMATCH"
	ReasonAuditWriteFailure Reason = "AUDIT_WRITE_FAILURE"
	ReasonTimeout           Reason = "TIMEOUT"
	// ReasonUnavailable covers nonce or signing-context stores being down.
	ReasonUnavailable Reason = "UNAVAILABLE"
)

// Request is one scan at a door.
type Request struct {
	TokenBytes string
	StationID  id.StationID
	OperatorID id.OperatorID
}

// Result is returned for every scan. Profile is set only for GOOD and REVIEW.
type Result struct {
	Decision  Decision
	Reason    Reason
	Profile   *disclosure.RedactedProfile
	Message   string
	Nonce     *id.Nonce
	ScannedAt time.Time
}

// ScanEvent is the audit record written once per scan.
type ScanEvent struct {
	TokenNonce *id.Nonce
	StationID  id.StationID
	OperatorID id.OperatorID
	Decision   Decision
	Reason     Reason
	ScannedAt  time.Time
}

func (e ScanEvent) auditEvent(requestID string) audit.Event {
	return audit.Event{
		Action:     audit.ActionScanPerformed,
		Timestamp:  e.ScannedAt,
		StationID:  e.StationID,
		OperatorID: e.OperatorID,
		TokenNonce: e.TokenNonce,
		Decision:   string(e.Decision),
		Reason:     string(e.Reason),
		RequestID:  requestID,
	}
}
