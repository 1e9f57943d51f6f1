// Package sampler manages the lifecycle of one external sampling profiler
// attached to one target process.
package sampler

// State represents the lifecycle phase of a sampler session.
// Sessions only move forward: starting → ready → stopped, or into failed.
type State int

const (
	// StateStarting means the subprocess was spawned but has not yet
	// reported that it is sampling.
	StateStarting State = iota

	// StateReady means the readiness marker was observed.
	StateReady

	// StateStopped means the subprocess was interrupted, exited cleanly
	// and its resources were released.
	StateStopped

	// StateFailed means the subprocess timed out, exited non-zero, or
	// exited before becoming ready.
	StateFailed
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// IsTerminal returns true for stopped and failed.
func (s State) IsTerminal() bool {
	return s == StateStopped || s == StateFailed
}

// canTransition reports whether moving from s to next keeps the lifecycle
// monotonic.
func (s State) canTransition(next State) bool {
	switch s {
	case StateStarting:
		return next == StateReady || next == StateFailed
	case StateReady:
		return next == StateStopped || next == StateFailed
	default:
		return false
	}
}
