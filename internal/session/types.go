// Package session implements the companion remote peer session protocol.
//
// Two roles share the protocol: a Host binds a listening socket, accepts one
// authenticated controller at a time, and relays commands; a Remote dials
// out to a host, performs the session-ID/PIN handshake, and exchanges
// commands thereafter. Both roles report everything that happens through a
// set of event callbacks owned by the embedding application.
package session

import (
	"time"

	"github.com/companion-remote/companion/internal/protocol"
)

// Role identifies which side of the protocol an instance is playing.
// Fixed for the lifetime of one connection attempt; cleared on disconnect.
type Role string

const (
	// RoleNone means no session is active.
	RoleNone Role = ""

	// RoleHost is the side that binds a socket and accepts a controller.
	RoleHost Role = "host"

	// RoleRemote is the side that dials out and issues commands.
	RoleRemote Role = "remote"
)

// State is the connection state shared by both roles.
// Exactly one state is current at any time; transitions are reported via
// Events.OnStateChange.
type State string

const (
	// StateDisconnected: no controller connection (host) or no socket (remote).
	StateDisconnected State = "disconnected"

	// StateConnecting: a join attempt is in flight (remote only).
	StateConnecting State = "connecting"

	// StateConnected: an authenticated peer connection is live.
	StateConnected State = "connected"

	// StateError: the last attempt or connection failed.
	StateError State = "error"
)

// Events is the callback set through which a session instance reports to the
// embedding application. Any callback may be nil. Callbacks are invoked from
// the session's own goroutines and must not block for long.
type Events struct {
	// OnCommand is called for every successfully decoded command received
	// after authentication, including ping/pong traffic.
	OnCommand func(protocol.Command)

	// OnDeviceConnected is called when a peer authenticates. The identity is
	// the peer's claimed one (or a synthesized stand-in until the real
	// deviceInfo frame arrives).
	OnDeviceConnected func(protocol.Device)

	// OnDeviceDisconnected is called when the authenticated peer connection
	// closes unexpectedly.
	OnDeviceDisconnected func(protocol.Device)

	// OnError is called with structured errors (see the errors package for
	// the code taxonomy). Errors never terminate the owning process.
	OnError func(error)

	// OnStateChange is called on every connection-state transition.
	OnStateChange func(State)
}

func (e Events) emitCommand(cmd protocol.Command) {
	if e.OnCommand != nil {
		e.OnCommand(cmd)
	}
}

func (e Events) emitDeviceConnected(d protocol.Device) {
	if e.OnDeviceConnected != nil {
		e.OnDeviceConnected(d)
	}
}

func (e Events) emitDeviceDisconnected(d protocol.Device) {
	if e.OnDeviceDisconnected != nil {
		e.OnDeviceDisconnected(d)
	}
}

func (e Events) emitError(err error) {
	if e.OnError != nil {
		e.OnError(err)
	}
}

func (e Events) emitState(s State) {
	if e.OnStateChange != nil {
		e.OnStateChange(s)
	}
}

// DeviceRecorder is called by the host when a remote device authenticates.
// It allows the embedding application to persist seen devices (e.g., in the
// storage package's registry). May be nil.
type DeviceRecorder func(protocol.Device)

// Protocol timing and sizing constants.
const (
	// DefaultPort is the preferred host listening port. If it is occupied,
	// the host falls back to an OS-assigned ephemeral port.
	DefaultPort = 48632

	// defaultAuthTimeout is how long the host waits for a valid auth frame
	// on a new connection before closing it.
	defaultAuthTimeout = 10 * time.Second

	// defaultJoinTimeout bounds the whole join operation: dial, auth
	// round-trip, everything.
	defaultJoinTimeout = 15 * time.Second

	// defaultPingInterval is the controller-side liveness ping period.
	defaultPingInterval = 5 * time.Second

	// writeWait is the per-frame write deadline.
	writeWait = 10 * time.Second

	// maxFrameSize caps inbound frames. Command payloads are small maps of
	// primitives; anything near this size is abuse.
	maxFrameSize = 512 * 1024

	// sendBufferSize is the per-connection outbound queue length.
	sendBufferSize = 64
)
