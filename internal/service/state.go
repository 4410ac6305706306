package service

import "fmt"

// State is where a unit is in its lifecycle.
//
// Normal life cycle: Created -> Configured -> Started -> Stopping -> Stopped -> Closed.
// A unit whose hook fails goes to Failed and is then closed. A unit is never
// restarted.
type State int

const (
	Created State = iota
	Configured
	Started
	Stopping
	Stopped
	Closed
	Failed
)

// ValidTransitions lists the states reachable from s.
func (s State) ValidTransitions() []State {
	switch s {
	case Created:
		return []State{Configured, Failed}
	case Configured:
		return []State{Started, Closed, Failed}
	case Started:
		return []State{Stopping, Failed}
	case Stopping:
		return []State{Stopped, Failed}
	case Stopped:
		return []State{Closed}
	case Failed:
		return []State{Closed}
	case Closed:
		return nil
	default:
		panic(fmt.Sprintf("unknown state: %d", int(s)))
	}
}

// ValidTransition reports whether s may move to the given state.
func (s State) ValidTransition(to State) bool {
	for _, v := range s.ValidTransitions() {
		if v == to {
			return true
		}
	}
	return false
}

// Activated reports whether the unit got past Created and so must be closed.
func (s State) Activated() bool {
	return s != Created
}

func (s State) String() string {
	switch s {
	case Created:
		return "CREATED"
	case Configured:
		return "CONFIGURED"
	case Started:
		return "STARTED"
	case Stopping:
		return "STOPPING"
	case Stopped:
		return "STOPPED"
	case Closed:
		return "CLOSED"
	case Failed:
		return "FAILED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}
