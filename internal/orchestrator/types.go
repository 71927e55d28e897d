package orchestrator

import "errors"

var (
	// ErrAlreadyRunning is returned by Start while a cycle is starting, active or stopping.
	ErrAlreadyRunning = errors.New("orchestrator: session already running")

	// ErrNotRunning is returned by Stop when there is no active cycle.
	ErrNotRunning = errors.New("orchestrator: no active session")

	// ErrNoResult is returned by Stop when the cycle produced no usable text.
	ErrNoResult = errors.New("orchestrator: nothing captured")
)

// State is the orchestrator's position in the push-to-talk cycle.
type State int

const (
	Idle     State = iota // no cycle
	Starting              // stream requested, not yet consuming
	Active                // consuming transcripts
	Stopping              // cancel requested, bounded wait in progress
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Starting:
		return "starting"
	case Active:
		return "active"
	case Stopping:
		return "stopping"
	default:
		return "unknown"
	}
}
