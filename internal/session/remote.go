package session

import (
	"crypto/tls"
	"errors"
	"log"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	apperrors "github.com/companion-remote/companion/internal/errors"
	"github.com/companion-remote/companion/internal/protocol"
)

// RemoteConfig holds configuration for a session remote (controller).
type RemoteConfig struct {
	// DeviceName is this device's display name, sent in the auth frame and
	// in deviceInfo.
	DeviceName string

	// Platform is this device's platform string (e.g., "android").
	Platform string

	// JoinTimeout bounds the whole Join operation. Default: 15 seconds.
	JoinTimeout time.Duration

	// PingInterval is the liveness ping period. Default: 5 seconds.
	PingInterval time.Duration

	// TLSConfig configures certificate verification when dialing a wss
	// host. Needed for hosts serving a self-signed certificate.
	TLSConfig *tls.Config

	// Events receives everything the remote reports.
	Events Events
}

// Remote is the controller side of the protocol. It dials out to a host,
// performs the session-ID/PIN handshake, and exchanges commands until
// disconnected. Reconnection after an unexpected disconnect is the
// embedding application's responsibility; the Remote only reports the state
// change.
type Remote struct {
	mu sync.Mutex

	config   RemoteConfig
	events   Events
	myPeerID string

	// Session identity. Owned exclusively by Join/Disconnect.
	sessionID   string
	hostAddress string

	conn *websocket.Conn
	done chan struct{}

	// hostDevice is the host's identity: a synthesized stand-in right after
	// auth, replaced when the real deviceInfo frame arrives.
	hostDevice protocol.Device

	state State

	// writeMu serializes socket writes between the application, the ping
	// ticker, and pong replies.
	writeMu sync.Mutex
}

// NewRemote creates a session remote. No network activity happens until
// Join is called.
func NewRemote(config RemoteConfig) *Remote {
	if config.JoinTimeout == 0 {
		config.JoinTimeout = defaultJoinTimeout
	}
	if config.PingInterval == 0 {
		config.PingInterval = defaultPingInterval
	}

	return &Remote{
		config:   config,
		events:   config.Events,
		myPeerID: uuid.New().String(),
		state:    StateDisconnected,
	}
}

// Join connects to a host and performs the authentication handshake. It
// returns once authSuccess is received, or fails with an auth.failed,
// connection.failed, or session.timeout coded error. Any existing
// connection is torn down first.
//
// The websocket scheme is derived from the host address: an https:// (or
// wss://) address yields wss, everything else ws.
func (r *Remote) Join(sessionID, pin, hostAddress string) error {
	r.Disconnect()

	sessionID = protocol.NormalizeSessionID(sessionID)

	wsURL, err := buildWSURL(hostAddress)
	if err != nil {
		joinErr := apperrors.ConnectionFailed("invalid host address", err)
		r.events.emitError(joinErr)
		r.setState(StateError)
		return joinErr
	}

	deadline := time.Now().Add(r.config.JoinTimeout)

	r.setState(StateConnecting)

	dialer := websocket.Dialer{
		HandshakeTimeout: r.config.JoinTimeout,
		TLSClientConfig:  r.config.TLSConfig,
	}
	conn, _, err := dialer.Dial(wsURL, nil)
	if err != nil {
		var joinErr error
		if time.Now().After(deadline) {
			joinErr = apperrors.Timeout("timed out joining session")
		} else {
			joinErr = apperrors.ConnectionFailed("failed to connect to host", err)
		}
		r.events.emitError(joinErr)
		r.setState(StateError)
		return joinErr
	}

	done := make(chan struct{})

	r.mu.Lock()
	r.conn = conn
	r.done = done
	r.sessionID = sessionID
	r.hostAddress = hostAddress
	r.hostDevice = protocol.Device{
		ID:       "host",
		Name:     "Desktop",
		Platform: "desktop",
		Role:     string(RoleHost),
	}
	r.mu.Unlock()

	// Send the auth frame immediately after connecting.
	authFrame, err := protocol.EncodeAuth(protocol.AuthRequest{
		SessionID:  sessionID,
		PIN:        pin,
		DeviceName: r.config.DeviceName,
		Platform:   r.config.Platform,
	})
	if err != nil {
		r.teardown(conn)
		joinErr := apperrors.Unknown(err)
		r.events.emitError(joinErr)
		r.setState(StateError)
		return joinErr
	}
	if err := r.writeFrame(conn, authFrame); err != nil {
		r.teardown(conn)
		joinErr := apperrors.ConnectionFailed("failed to send auth message", err)
		r.events.emitError(joinErr)
		r.setState(StateError)
		return joinErr
	}

	authCh := make(chan error, 1)
	go r.readLoop(conn, authCh)

	select {
	case err := <-authCh:
		if err != nil {
			r.teardown(conn)
			r.events.emitError(err)
			r.setState(StateError)
			return err
		}
	case <-time.After(time.Until(deadline)):
		// Actively cancel the in-flight attempt: the socket is closed and
		// all fields cleared before the timeout error is surfaced, so no
		// dangling connection survives.
		r.teardown(conn)
		joinErr := apperrors.Timeout("timed out joining session")
		r.events.emitError(joinErr)
		r.setState(StateError)
		return joinErr
	}

	r.setState(StateConnected)

	// The host's real deviceInfo arrives as a separate message; report a
	// placeholder identity now so the application can render something.
	r.mu.Lock()
	hostDev := r.hostDevice
	r.mu.Unlock()
	r.events.emitDeviceConnected(hostDev)

	r.SendCommand(protocol.NewDeviceInfoCommand(protocol.Device{
		ID:       r.myPeerID,
		Name:     r.config.DeviceName,
		Platform: r.config.Platform,
		Role:     string(RoleRemote),
	}))

	r.startKeepalive(done)

	log.Printf("session: joined %s at %s", sessionID, hostAddress)

	return nil
}

// readLoop reads frames until the connection closes. Before authentication
// completes it resolves the handshake through authCh; afterwards it feeds
// the command stream.
func (r *Remote) readLoop(conn *websocket.Conn, authCh chan<- error) {
	authed := false

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !authed {
				authCh <- apperrors.ConnectionFailed("connection closed before authentication completed", err)
				return
			}
			r.handleDisconnect(conn)
			return
		}

		in, derr := protocol.Decode(data)
		if derr != nil {
			// Per-message parse failures are non-fatal: log and keep
			// listening.
			log.Printf("session: ignoring malformed frame: %v", derr)
			continue
		}

		if !authed {
			switch in.Type {
			case protocol.CommandAuthSuccess:
				authed = true
				authCh <- nil
			case protocol.CommandAuthFailed:
				authCh <- classifyAuthFailure(conn, in.Message)
				return
			default:
				log.Printf("session: ignoring %s frame before authentication", in.Type)
			}
			continue
		}

		if in.Command == nil {
			log.Printf("session: ignoring %s frame after authentication", in.Type)
			continue
		}
		cmd := *in.Command

		// Symmetric liveness: a ping from the host gets an immediate pong.
		if cmd.Type == protocol.CommandPing {
			r.SendCommand(protocol.NewCommand(protocol.CommandPong, nil))
		}

		// Keep the host identity current once the real deviceInfo arrives.
		if dev, ok := protocol.ParseDeviceInfo(cmd); ok {
			r.mu.Lock()
			r.hostDevice = dev
			r.mu.Unlock()
		}

		// Every decoded command is forwarded, regardless of type.
		r.events.emitCommand(cmd)
	}
}

// classifyAuthFailure tells a lockout rejection apart from bad credentials.
// The host closes with CloseRateLimited right after its authFailed frame
// during a lockout, so a short read for the close code reveals which it was.
func classifyAuthFailure(conn *websocket.Conn, message string) error {
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()

	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) && closeErr.Code == protocol.CloseRateLimited {
		return apperrors.RateLimited()
	}
	return apperrors.AuthFailed(message)
}

// handleDisconnect runs when the socket closes after authentication.
func (r *Remote) handleDisconnect(conn *websocket.Conn) {
	r.mu.Lock()
	active := r.conn == conn
	hostDev := r.hostDevice
	r.mu.Unlock()

	if !active {
		// Disconnect already tore this connection down.
		return
	}

	log.Printf("session: host connection closed")

	r.teardown(conn)
	r.events.emitDeviceDisconnected(hostDev)
	r.setState(StateDisconnected)
}

// SendCommand sends a command to the host. It silently does nothing when
// not connected; write errors are reported through the error event rather
// than returned, since callers are typically fire-and-forget contexts like
// the ping timer.
func (r *Remote) SendCommand(cmd protocol.Command) {
	r.mu.Lock()
	conn := r.conn
	r.mu.Unlock()

	if conn == nil {
		log.Printf("session: not connected, dropping %s command", cmd.Type)
		return
	}

	data, err := protocol.EncodeCommand(cmd)
	if err != nil {
		r.events.emitError(apperrors.DataChannel(err))
		return
	}
	if err := r.writeFrame(conn, data); err != nil {
		r.events.emitError(apperrors.DataChannel(err))
	}
}

// Disconnect stops the liveness monitor, closes the socket, and clears the
// session identity. Safe to call when already disconnected, and safe to
// call repeatedly.
func (r *Remote) Disconnect() {
	r.mu.Lock()
	conn := r.conn
	r.mu.Unlock()

	if conn == nil {
		return
	}

	// Best-effort close frame; the peer finding out politely is nice but
	// not required.
	r.writeMu.Lock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "disconnecting"))
	r.writeMu.Unlock()

	r.teardown(conn)
	r.setState(StateDisconnected)
}

// teardown closes one connection attempt and clears the session identity,
// if that attempt is still the current one. The done channel close stops
// the keepalive ticker. Idempotent per connection.
func (r *Remote) teardown(conn *websocket.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if conn == nil || r.conn != conn {
		return
	}

	r.conn = nil
	r.sessionID = ""
	r.hostAddress = ""
	r.hostDevice = protocol.Device{}
	if r.done != nil {
		close(r.done)
		r.done = nil
	}

	conn.Close()
}

// writeFrame writes one text frame with a deadline, serialized against
// concurrent senders.
func (r *Remote) writeFrame(conn *websocket.Conn, data []byte) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// setState transitions the connection state and notifies the application.
func (r *Remote) setState(s State) {
	r.mu.Lock()
	if r.state == s {
		r.mu.Unlock()
		return
	}
	r.state = s
	r.mu.Unlock()

	r.events.emitState(s)
}

// Accessors.

// SessionID returns the joined session ID, or empty if not connected.
func (r *Remote) SessionID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessionID
}

// HostAddress returns the address given to Join, or empty if not connected.
func (r *Remote) HostAddress() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hostAddress
}

// MyPeerID returns this instance's stable peer identifier.
func (r *Remote) MyPeerID() string {
	return r.myPeerID
}

// Role returns RoleRemote while a session is joined, RoleNone otherwise.
func (r *Remote) Role() Role {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn == nil {
		return RoleNone
	}
	return RoleRemote
}

// IsHost reports false: a Remote never hosts.
func (r *Remote) IsHost() bool {
	return false
}

// IsConnected reports whether the handshake has completed and the socket is
// still up.
func (r *Remote) IsConnected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state == StateConnected && r.conn != nil
}

// State returns the current connection state.
func (r *Remote) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// buildWSURL derives the websocket endpoint from a host address. Accepts
// bare ip:port, http(s):// URLs, and ws(s):// URLs; the session endpoint
// path is always /ws.
func buildWSURL(hostAddress string) (string, error) {
	addr := strings.TrimSpace(hostAddress)

	switch {
	case strings.HasPrefix(addr, "https://"):
		addr = "wss://" + strings.TrimPrefix(addr, "https://")
	case strings.HasPrefix(addr, "http://"):
		addr = "ws://" + strings.TrimPrefix(addr, "http://")
	case strings.HasPrefix(addr, "ws://"), strings.HasPrefix(addr, "wss://"):
		// Already a websocket URL.
	default:
		addr = "ws://" + addr
	}

	u, err := url.Parse(addr)
	if err != nil {
		return "", err
	}
	u.Path = "/ws"

	return u.String(), nil
}
