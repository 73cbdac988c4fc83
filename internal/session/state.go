package session

import "fmt"

// State is a session lifecycle state.
type State int

const (
	Idle State = iota
	Detecting
	Retrying
	Placed
	Failed
	Cancelled
)

var stateNames = [...]string{"idle", "detecting", "retrying", "placed", "failed", "cancelled"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Terminal reports whether no further transitions can happen.
func (s State) Terminal() bool {
	return s == Placed || s == Failed || s == Cancelled
}
