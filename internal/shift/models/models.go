package models

import (
	"time"

	id "ghostpass/pkg/domain"
)

// Shift records one operator's stint at a station. EndedAt is nil while the
// shift is active; a station has at most one active shift.
type Shift struct {
	ID         id.ShiftID
	StationID  id.StationID
	OperatorID id.OperatorID
	StartedAt  time.Time
	EndedAt    *time.Time
}

func (s *Shift) IsActive() bool {
	return s.EndedAt == nil
}

// Ending closes an active shift at a point in time.
type Ending struct {
	ShiftID   id.ShiftID
	StationID id.StationID
	EndedAt   time.Time
}

// Transition is applied by a store as one unit: every Ending is closed and,
// if set, Start becomes the station's active shift.
type Transition struct {
	End   []Ending
	Start *Shift
}
