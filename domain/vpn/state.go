package vpn

import "fmt"

// State is the user-visible tunnel state. Transitions are monotonic within
// one run: Idle -> Handshaking -> Connected on success, Handshaking -> Error
// on fatal failure. A stopped tunnel always returns to Idle.
type State int

const (
	StateIdle State = iota
	StateHandshaking
	StateConnected
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateHandshaking:
		return "Handshaking"
	case StateConnected:
		return "Connected"
	case StateError:
		return "Error"
	default:
		return fmt.Sprintf("State(UNKNOWN:%d)", int(s))
	}
}

// StateEvent pairs a state with the error that caused it; Err is non-nil
// only for StateError.
type StateEvent struct {
	State State
	Err   error
}
