// Package terminal is the door side of a scan: it refuses to scan without an
// operator on shift and walks each station's terminal through its
// idle, scanning and result states.
package terminal

import (
	"errors"
	"fmt"
)

type State string

const (
	StateIdle     State = "idle"
	StateScanning State = "scanning"
	StateResult   State = "result"
)

type Event string

const (
	EventScan    Event = "scan"
	EventDecided Event = "decided"
	EventDismiss Event = "dismiss"
)

var ErrIllegalTransition = errors.New("illegal terminal transition")

// A result stays on screen until the next scan or a dismiss. A terminal that
// is scanning cannot start another scan.
var transitions = map[State]map[Event]State{
	StateIdle: {
		EventScan:    StateScanning,
		EventDismiss: StateIdle,
	},
	StateScanning: {
		EventDecided: StateResult,
	},
	StateResult: {
		EventScan:    StateScanning,
		EventDismiss: StateIdle,
	},
}

func Transition(s State, e Event) (State, error) {
	if next, ok := transitions[s][e]; ok {
		return next, nil
	}
	return s, fmt.Errorf("%w: %s on %s", ErrIllegalTransition, s, e)
}
