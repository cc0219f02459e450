// Package rotation drives the bearer-side display: it keeps a fresh token on
// screen by re-minting before expiry and immediately after a balance change.
package rotation

import (
	"errors"
	"fmt"
)

// State is the display's current phase.
type State string

const (
	StateIdle     State = "idle"
	StateMinting  State = "minting"
	StateShowing  State = "showing"
	StateRetrying State = "retrying"
	StateExpired  State = "expired"
	StateStopped  State = "stopped"
)

type Event string

const (
	EventStart          Event = "start"
	EventMinted         Event = "minted"
	EventMintFailed     Event = "mint_failed"
	EventRotateDue      Event = "rotate_due"
	EventBalanceChanged Event = "balance_changed"
	EventExpired        Event = "expired"
	EventStop           Event = "stop"
)

var ErrIllegalTransition = errors.New("illegal display transition")

var transitions = map[State]map[Event]State{
	StateIdle: {
		EventStart: StateMinting,
	},
	StateMinting: {
		EventMinted:     StateShowing,
		EventMintFailed: StateRetrying,
	},
	StateShowing: {
		EventRotateDue:      StateMinting,
		EventBalanceChanged: StateMinting,
		EventExpired:        StateExpired,
	},
	StateRetrying: {
		EventRotateDue:      StateMinting,
		EventBalanceChanged: StateMinting,
		EventExpired:        StateRetrying,
	},
	StateExpired: {
		EventStart:          StateMinting,
		EventRotateDue:      StateMinting,
		EventBalanceChanged: StateMinting,
	},
}

// Transition returns the state reached from s on e. Stop is accepted from
// every state except Stopped.
func Transition(s State, e Event) (State, error) {
	if e == EventStop && s != StateStopped {
		return StateStopped, nil
	}
	if next, ok := transitions[s][e]; ok {
		return next, nil
	}
	return s, fmt.Errorf("%w: %s on %s", ErrIllegalTransition, s, e)
}
