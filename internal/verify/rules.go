package verify

import (
	"time"

	"ghostpass/internal/token/models"
	id "ghostpass/pkg/domain"
)

// VenuePolicy answers venue questions about a station.
type VenuePolicy interface {
	StationVenue(station id.StationID) (id.VenueID, bool)
	RequiresHealth(station id.StationID) bool
}

// precheck applies the checks that need no I/O and run before the nonce is
// touched. It returns "" when the token may proceed to consumption.
func precheck(tok *models.Token, ttl models.TTLPolicy, now time.Time, skew time.Duration) Reason {
	if !tok.CheckShape(ttl) {
		return ReasonMalformed
	}
	if tok.IssuedAt.After(now.Add(skew)) {
		return ReasonStaleClock
	}
	if tok.IsExpired(now) {
		return ReasonExpired
	}
	return ""
}

// venueRule runs after consumption on tokens that are not locked.
// Rule priority:
//  1. Health-required venue without the health flag
//  2. Token bound to a different venue than the station's
func venueRule(tok *models.Token, policy VenuePolicy, station id.StationID) Reason {
	if policy.RequiresHealth(station) && !tok.Bundle.Health {
		return ReasonHealthRequired
	}
	if tok.VenueID != nil {
		venue, ok := policy.StationVenue(station)
		if !ok || venue != *tok.VenueID {
			return ReasonVenueMismatch
		}
	}
	return ReasonOK
}

func decisionFor(reason Reason) Decision {
	switch reason {
	case ReasonOK:
		return DecisionGood
	case ReasonHealthRequired, ReasonVenueMismatch:
		return DecisionReview
	default:
		return DecisionNo
	}
}
