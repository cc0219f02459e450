package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	id "ghostpass/pkg/domain"
)

// Category groups events by the component that produced them.
type Category string

const (
	CategoryScan  Category = "scan"
	CategoryShift Category = "shift"
	CategoryView  Category = "view"
)

// Action is the event type carried on the shift-event contract.
type Action string

const (
	ActionScanPerformed Action = "SCAN_PERFORMED"
	// ActionScanRejected records a scan refused before verification (no operator context).
	ActionScanRejected Action = "SCAN_REJECTED"
	ActionShiftStart   Action = "SHIFT_START"
	ActionShiftSwitch  Action = "SHIFT_SWITCH"
	ActionShiftEnd     Action = "SHIFT_END"
	// ActionViewOpened records a browser view session being issued for a token.
	ActionViewOpened Action = "VIEW_OPENED"
)

// Category derives the event category from its action.
func (a Action) Category() Category {
	switch a {
	case ActionShiftStart, ActionShiftSwitch, ActionShiftEnd:
		return CategoryShift
	case ActionViewOpened:
		return CategoryView
	default:
		return CategoryScan
	}
}

// Event is an immutable audit record. Scan events carry the nonce (when the
// payload decoded), decision and reason; shift events carry the stations.
type Event struct {
	ID            uuid.UUID
	Category      Category
	Action        Action
	Timestamp     time.Time
	StationID     id.StationID
	OperatorID    id.OperatorID
	FromStationID id.StationID
	ToStationID   id.StationID
	TokenNonce    *id.Nonce
	Decision      string
	Reason        string
	RequestID     string
	Metadata      map[string]string
}

// Store persists audit events. Implementations must be append-only.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByStation(ctx context.Context, station id.StationID, limit int) ([]Event, error)
	CountByNonce(ctx context.Context, nonce id.Nonce) (int, error)
}

// Emitter is satisfied by publisher.Publisher.
type Emitter interface {
	Emit(ctx context.Context, event Event) error
}
