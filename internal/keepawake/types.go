// Package keepawake keeps the hosting device from sleeping while remote
// peers are connected.
//
// A Manager reconciles a desired on/off target against the OS sleep
// inhibitor it currently holds, degrading gracefully when the platform
// offers no inhibitor or the inhibitor process dies underneath it. Losing
// sleep inhibition never costs the session; the degraded state is only
// reported.
package keepawake

import "context"

// State is the current keep-awake runtime state.
type State string

const (
	// StateOff indicates no sleep inhibitor is held.
	StateOff State = "OFF"
	// StatePending indicates an inhibitor acquire is in progress.
	StatePending State = "PENDING"
	// StateOn indicates a sleep inhibitor is currently active.
	StateOn State = "ON"
	// StateDegraded indicates keep-awake was requested but could not be
	// maintained.
	StateDegraded State = "DEGRADED"
)

// DegradedReason identifies why keep-awake entered degraded mode.
type DegradedReason string

const (
	// DegradedReasonUnsupported means this OS has no inhibitor path.
	DegradedReasonUnsupported DegradedReason = "unsupported"
	// DegradedReasonAcquireFailed means inhibitor acquisition failed.
	DegradedReasonAcquireFailed DegradedReason = "acquire_failed"
	// DegradedReasonIntegrityLost means an acquired inhibitor exited
	// unexpectedly while keep-awake was still wanted.
	DegradedReasonIntegrityLost DegradedReason = "integrity_lost"
)

// Status is a snapshot of keep-awake runtime state.
type Status struct {
	// State is the current runtime keep-awake state.
	State State
	// DesiredEnabled is the current desired keep-awake target.
	DesiredEnabled bool
	// Reason is set when state is DEGRADED.
	Reason DegradedReason
	// LastError stores the most recent lifecycle failure.
	LastError string
}

// Handle represents an acquired sleep inhibitor.
type Handle interface {
	// Done is closed when the inhibitor exits.
	Done() <-chan struct{}
	// Err returns the terminal inhibitor exit error after Done closes.
	Err() error
	// Release requests inhibitor shutdown.
	Release(ctx context.Context) error
}

// Adapter acquires OS-specific sleep inhibitors.
type Adapter interface {
	Acquire(ctx context.Context) (Handle, error)
}
