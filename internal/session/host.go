package session

import (
	"crypto/tls"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/companion-remote/companion/internal/auth"
	apperrors "github.com/companion-remote/companion/internal/errors"
	"github.com/companion-remote/companion/internal/netutil"
	"github.com/companion-remote/companion/internal/protocol"
)

// HostConfig holds configuration for a session host.
type HostConfig struct {
	// DeviceName is this device's display name, sent in deviceInfo.
	DeviceName string

	// Platform is this device's platform string (e.g., "linux").
	Platform string

	// PreferredPort is the port to bind first. Default: DefaultPort.
	// If occupied, an OS-assigned ephemeral port is used instead.
	PreferredPort int

	// AuthTimeout is how long an unauthenticated connection may live.
	// Default: 10 seconds.
	AuthTimeout time.Duration

	// Guard configures the brute-force lockout. Zero values use the
	// defaults (5 failures, 30 second lockout).
	Guard auth.GuardConfig

	// TLSConfig, if set, makes the server speak wss instead of ws.
	// Controllers must then use an https or wss host address.
	TLSConfig *tls.Config

	// Events receives everything the host reports.
	Events Events

	// Recorder, if set, is called for each remote device that
	// authenticates. Used to persist the device registry.
	Recorder DeviceRecorder
}

// SessionInfo is the out-of-band advertisement data for a hosting period.
// The embedding application shows these to the user (and optionally via
// mDNS/QR) so a controller can join.
type SessionInfo struct {
	SessionID string
	PIN       string
	Address   string
}

// Host is the session-hosting side of the protocol. It owns the listening
// socket, authenticates controllers against the active session credentials,
// and relays commands to and from the single active controller.
//
// A Host is safe for concurrent use. Connection-accept, message-receive,
// and timer callbacks all synchronize on one mutex.
type Host struct {
	mu sync.Mutex

	config   HostConfig
	events   Events
	myPeerID string

	upgrader websocket.Upgrader

	// Session identity. Owned exclusively by CreateSession/Disconnect.
	creds       *auth.SessionCredentials
	pin         string
	guard       *auth.Guard
	hostAddress string

	httpServer *http.Server
	listener   net.Listener

	// controller is the single-writer slot for the active authenticated
	// connection. A new authenticated connection always evicts the previous
	// one, never coexists with it.
	controller *hostConn

	state State
}

// hostConn is one WebSocket connection accepted by the host.
// Until authenticated it is anonymous; after authentication it may become
// the active controller.
type hostConn struct {
	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once

	authTimer *time.Timer

	// authenticated and device are guarded by the host's mutex.
	authenticated bool
	device        protocol.Device

	// limiter bounds post-auth inbound command rate so a misbehaving
	// controller cannot flood the command stream.
	limiter *rate.Limiter
}

// NewHost creates a session host. No network activity happens until
// CreateSession is called.
func NewHost(config HostConfig) *Host {
	if config.PreferredPort == 0 {
		config.PreferredPort = DefaultPort
	}
	if config.AuthTimeout == 0 {
		config.AuthTimeout = defaultAuthTimeout
	}

	return &Host{
		config:   config,
		events:   config.Events,
		myPeerID: uuid.New().String(),
		state:    StateDisconnected,
		upgrader: websocket.Upgrader{
			// The controller connects from another device on the LAN; there
			// is no browser origin to check.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// CreateSession starts a new hosting period: fresh credentials, a bound
// listening socket, and a LAN-reachable address. Any prior hosting state is
// torn down first, so calling it twice is an idempotent restart.
func (h *Host) CreateSession() (SessionInfo, error) {
	// Idempotent restart: old connection and listener go away first.
	h.Disconnect()

	creds, pin, err := auth.NewSessionCredentials()
	if err != nil {
		return SessionInfo{}, apperrors.ServerFailed("failed to generate session credentials", err)
	}

	ip := netutil.ResolveLANIPv4()
	if ip == "" {
		return SessionInfo{}, apperrors.NetworkUnavailable()
	}

	ln, err := listen(h.config.PreferredPort)
	if err != nil {
		return SessionInfo{}, err
	}

	port := ln.Addr().(*net.TCPAddr).Port
	if h.config.TLSConfig != nil {
		ln = tls.NewListener(ln, h.config.TLSConfig)
	}
	address := fmt.Sprintf("%s:%d", ip, port)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.handleWebSocket)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	srv := &http.Server{Handler: mux}

	h.mu.Lock()
	h.creds = creds
	h.pin = pin
	h.guard = auth.NewGuard(h.config.Guard)
	h.hostAddress = address
	h.listener = ln
	h.httpServer = srv
	h.mu.Unlock()

	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Printf("session: server error: %v", err)
		}
	}()

	log.Printf("session: hosting %s on %s", creds.SessionID, address)

	return SessionInfo{SessionID: creds.SessionID, PIN: pin, Address: address}, nil
}

// handleWebSocket upgrades an HTTP connection and starts the per-connection
// authentication window.
func (h *Host) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("session: upgrade failed: %v", err)
		return
	}

	c := &hostConn{
		conn:    conn,
		send:    make(chan []byte, sendBufferSize),
		done:    make(chan struct{}),
		limiter: rate.NewLimiter(rate.Limit(200), 100),
	}

	// The connection has this long to present a valid auth frame.
	c.authTimer = time.AfterFunc(h.config.AuthTimeout, func() {
		h.mu.Lock()
		authed := c.authenticated
		h.mu.Unlock()
		if !authed {
			log.Printf("session: closing connection, no auth within %s", h.config.AuthTimeout)
			c.closeWith(protocol.CloseAuthTimeout, "authentication timed out")
		}
	})

	go c.writePump()
	go h.readPump(c)
}

// readPump reads frames from one connection until it closes.
func (h *Host) readPump(c *hostConn) {
	defer h.dropConn(c)

	c.conn.SetReadLimit(maxFrameSize)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure,
				websocket.CloseAbnormalClosure) {
				log.Printf("session: read error: %v", err)
			}
			return
		}

		h.handleFrame(c, data)
	}
}

// handleFrame dispatches one inbound frame. Frames from one connection are
// processed in order; this is called only from that connection's readPump.
func (h *Host) handleFrame(c *hostConn, data []byte) {
	h.mu.Lock()
	authed := c.authenticated
	h.mu.Unlock()

	if !authed {
		h.handleAuthFrame(c, data)
		return
	}

	if !c.limiter.Allow() {
		log.Printf("session: inbound command rate limit exceeded, dropping frame")
		return
	}

	in, err := protocol.Decode(data)
	if err != nil {
		// Per-message parse failures are non-fatal: log and keep listening.
		log.Printf("session: ignoring malformed frame: %v", err)
		return
	}
	if in.Command == nil {
		log.Printf("session: ignoring %s frame after authentication", in.Type)
		return
	}
	cmd := *in.Command

	if cmd.Type == protocol.CommandPing {
		h.sendTo(c, protocol.NewCommand(protocol.CommandPong, nil))
	}
	if protocol.NeedsAck(cmd.Type) {
		h.sendTo(c, protocol.NewCommand(protocol.CommandAck, nil))
	}

	// The controller's deviceInfo carries its stable peer ID. Fold it into
	// the connection identity so the registry and the disconnect event see
	// the same device across reconnects, not a fresh one per connection.
	if dev, ok := protocol.ParseDeviceInfo(cmd); ok && dev.ID != "" {
		h.mu.Lock()
		c.device = dev
		h.mu.Unlock()
		if h.config.Recorder != nil {
			h.config.Recorder(dev)
		}
	}

	h.events.emitCommand(cmd)
}

// handleAuthFrame processes the first frame from an unauthenticated
// connection. Anything other than a well-formed auth frame closes the
// connection.
func (h *Host) handleAuthFrame(c *hostConn, data []byte) {
	in, err := protocol.Decode(data)
	if err != nil || in.Type != protocol.CommandAuth || in.Auth == nil {
		c.writeDirect(protocol.EncodeAuthFailed("authentication required"))
		c.closeWith(protocol.CloseAuthRequired, "authentication required")
		return
	}

	h.mu.Lock()
	creds := h.creds
	guard := h.guard
	h.mu.Unlock()

	if creds == nil || guard == nil {
		// Session torn down while this connection was in flight.
		c.closeWith(protocol.CloseAuthRequired, "no active session")
		return
	}

	// Lockout is checked before credentials, and rejected with its own
	// reason so the controller can tell it apart from a typo. A locked-out
	// attempt does not consume another failure slot.
	if guard.IsLockedOut() {
		log.Printf("session: rejecting auth attempt during lockout")
		c.writeDirect(protocol.EncodeAuthFailed("Too many failed attempts. Try again later."))
		c.closeWith(protocol.CloseRateLimited, "rate limited")
		return
	}

	if !creds.Matches(in.Auth.SessionID, in.Auth.PIN) {
		guard.RecordFailure()
		// Never reveal which of the two was wrong.
		log.Printf("session: auth failed (%d consecutive failures)", guard.FailedAttempts())
		c.writeDirect(protocol.EncodeAuthFailed("Invalid session ID or PIN"))
		c.closeWith(protocol.CloseInvalidCredentials, "invalid credentials")
		return
	}

	guard.RecordSuccess()
	c.authTimer.Stop()

	// The auth frame only claims a name and platform; the controller's
	// stable peer ID arrives in its deviceInfo frame right after the
	// handshake. Until then the identity is a placeholder, and the registry
	// is not touched.
	device := protocol.Device{
		ID:       "remote",
		Name:     in.Auth.DeviceName,
		Platform: in.Auth.Platform,
		Role:     string(RoleRemote),
	}

	h.mu.Lock()
	old := h.controller
	h.controller = c
	c.authenticated = true
	c.device = device
	h.mu.Unlock()

	// Single-controller policy: at most one authenticated remote at a time.
	if old != nil {
		log.Printf("session: evicting previous controller %s", old.device.Name)
		old.closeWith(protocol.CloseReplaced, "replaced by new controller")
	}

	c.enqueue(protocol.EncodeAuthSuccess())

	log.Printf("session: controller %s (%s) authenticated", device.Name, device.Platform)

	h.events.emitDeviceConnected(device)

	// Share our own identity with the new controller.
	h.sendTo(c, protocol.NewDeviceInfoCommand(protocol.Device{
		ID:       h.myPeerID,
		Name:     h.config.DeviceName,
		Platform: h.config.Platform,
		Role:     string(RoleHost),
	}))

	h.setState(StateConnected)
}

// dropConn runs when a connection's readPump exits.
func (h *Host) dropConn(c *hostConn) {
	c.authTimer.Stop()
	c.shutdown()

	h.mu.Lock()
	wasController := h.controller == c
	if wasController {
		h.controller = nil
	}
	device := c.device
	h.mu.Unlock()

	if wasController {
		log.Printf("session: controller %s disconnected", device.Name)
		h.events.emitDeviceDisconnected(device)
		h.setState(StateDisconnected)
	}
}

// sendTo encodes and queues a command for one connection.
func (h *Host) sendTo(c *hostConn, cmd protocol.Command) {
	data, err := protocol.EncodeCommand(cmd)
	if err != nil {
		h.events.emitError(apperrors.DataChannel(err))
		return
	}
	c.enqueue(data)
}

// SendCommand sends a command to the active controller. It is a no-op if no
// controller is connected: commands may be sent speculatively (a periodic
// ping, say) while disconnected, so that is logged but not surfaced as a
// failure.
func (h *Host) SendCommand(cmd protocol.Command) {
	h.mu.Lock()
	c := h.controller
	h.mu.Unlock()

	if c == nil {
		log.Printf("session: no controller connected, dropping %s command", cmd.Type)
		return
	}
	h.sendTo(c, cmd)
}

// Disconnect closes the active controller connection, closes the listening
// socket, and clears the session identity. Safe to call when nothing is
// active, and safe to call repeatedly.
func (h *Host) Disconnect() {
	h.mu.Lock()
	ctrl := h.controller
	srv := h.httpServer
	hadSession := h.creds != nil

	h.controller = nil
	h.httpServer = nil
	h.listener = nil
	h.creds = nil
	h.pin = ""
	h.guard = nil
	h.hostAddress = ""
	h.mu.Unlock()

	if ctrl != nil {
		ctrl.closeWith(websocket.CloseNormalClosure, "session closed")
	}
	if srv != nil {
		// Close (not Shutdown): the listener and all connections go away
		// now. A hosting period ends; there is nothing to drain.
		srv.Close()
	}

	if hadSession {
		log.Printf("session: hosting stopped")
		h.setState(StateDisconnected)
	}
}

// setState transitions the connection state and notifies the application.
func (h *Host) setState(s State) {
	h.mu.Lock()
	if h.state == s {
		h.mu.Unlock()
		return
	}
	h.state = s
	h.mu.Unlock()

	h.events.emitState(s)
}

// Accessors.

// SessionID returns the active session ID, or empty if not hosting.
func (h *Host) SessionID() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.creds == nil {
		return ""
	}
	return h.creds.SessionID
}

// PIN returns the active session PIN, or empty if not hosting.
func (h *Host) PIN() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pin
}

// HostAddress returns the advertised ip:port, or empty if not hosting.
func (h *Host) HostAddress() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.hostAddress
}

// MyPeerID returns this instance's stable peer identifier.
func (h *Host) MyPeerID() string {
	return h.myPeerID
}

// Role returns RoleHost while a session is active, RoleNone otherwise.
func (h *Host) Role() Role {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.creds == nil {
		return RoleNone
	}
	return RoleHost
}

// IsHost reports whether this instance is hosting a session.
func (h *Host) IsHost() bool {
	return h.Role() == RoleHost
}

// IsConnected reports whether a controller is currently authenticated.
func (h *Host) IsConnected() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state == StateConnected
}

// State returns the current connection state.
func (h *Host) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// hostConn plumbing.

// writePump drains the send queue onto the socket. It owns the socket's
// write side after authentication; closing done makes it exit and close the
// connection.
func (c *hostConn) writePump() {
	defer c.conn.Close()

	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Printf("session: write error: %v", err)
				c.shutdown()
				return
			}
		}
	}
}

// enqueue queues a frame for delivery, dropping it if the connection is
// shutting down or the queue is full.
func (c *hostConn) enqueue(data []byte) {
	select {
	case <-c.done:
	case c.send <- data:
	default:
		log.Printf("session: send queue full, dropping frame")
	}
}

// writeDirect writes a frame synchronously. Only safe before authentication,
// when nothing has been queued and writePump is idle.
func (c *hostConn) writeDirect(data []byte) {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		log.Printf("session: write error: %v", err)
	}
}

// closeWith sends a close frame with the given code and shuts the
// connection down. Safe to call multiple times from any goroutine;
// WriteControl may run concurrently with writePump.
func (c *hostConn) closeWith(code int, reason string) {
	c.closeOnce.Do(func() {
		deadline := time.Now().Add(writeWait)
		msg := websocket.FormatCloseMessage(code, reason)
		if err := c.conn.WriteControl(websocket.CloseMessage, msg, deadline); err != nil {
			log.Printf("session: close frame write failed: %v", err)
		}
		close(c.done)
	})
}

// shutdown signals the connection to close without sending a close frame.
func (c *hostConn) shutdown() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}
