// Package protocol defines the wire format for companion remote sessions.
// All traffic is exchanged as single-line JSON text frames over WebSocket.
//
// Two frame families share the wire:
//   - Handshake frames (auth, authSuccess, authFailed) carry their fields at
//     the top level of the JSON object, next to "type".
//   - Command frames carry an opaque "data" object interpreted per type.
//
// This asymmetry is deliberate: handshake frames are consumed entirely by the
// session layer, while command payloads pass through it untouched.
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

// CommandType identifies the kind of frame being sent over the WebSocket.
type CommandType string

const (
	// CommandPing is a liveness probe. Either peer may send it; the receiver
	// replies with a pong.
	CommandPing CommandType = "ping"

	// CommandPong is the reply to a ping.
	CommandPong CommandType = "pong"

	// CommandAck confirms delivery of a control-affecting command.
	// Liveness and info traffic is never acknowledged.
	CommandAck CommandType = "ack"

	// CommandDeviceInfo carries a peer's self-reported identity after
	// authentication. Payload: id, name, platform, role in data.
	CommandDeviceInfo CommandType = "deviceInfo"

	// CommandAuth is the first frame a controller sends. Handshake only.
	CommandAuth CommandType = "auth"

	// CommandAuthSuccess is the host's acceptance of an auth frame.
	CommandAuthSuccess CommandType = "authSuccess"

	// CommandAuthFailed is the host's rejection of an auth frame.
	// Carries a human-readable message at the top level.
	CommandAuthFailed CommandType = "authFailed"

	// Playback command types. The session layer treats these like any other
	// command; they are named here for the convenience of both applications.

	// CommandPlayPause toggles playback.
	CommandPlayPause CommandType = "playPause"

	// CommandSeek seeks to a position. Payload: position (seconds) in data.
	CommandSeek CommandType = "seek"

	// CommandVolume sets the volume. Payload: level (0.0-1.0) in data.
	CommandVolume CommandType = "volume"
)

// Host-initiated WebSocket close codes. Each rejection reason gets its own
// code so a controller can branch behavior. Values are in the 4000-4999
// private-use range defined by RFC 6455.
const (
	// CloseAuthTimeout: no valid auth frame arrived within the auth window.
	CloseAuthTimeout = 4001

	// CloseAuthRequired: the first frame was not an auth frame.
	CloseAuthRequired = 4002

	// CloseInvalidCredentials: session ID or PIN did not match.
	CloseInvalidCredentials = 4003

	// CloseRateLimited: auth rejected outright during a lockout window.
	CloseRateLimited = 4004

	// CloseReplaced: a newer controller authenticated and took over.
	CloseReplaced = 4005
)

// Command is a wire message exchanged after authentication.
// A Command is immutable once constructed; Data is semantically opaque to the
// session layer and interpreted per Type by the applications on either end.
type Command struct {
	// Type identifies what kind of command this is.
	Type CommandType

	// Data is an open string-keyed map of primitive values.
	// May be nil for commands that carry no payload (ping, pong, ack).
	Data map[string]any
}

// NewCommand constructs a command with the given type and payload.
func NewCommand(t CommandType, data map[string]any) Command {
	return Command{Type: t, Data: data}
}

// AuthRequest is the decoded form of an auth handshake frame.
type AuthRequest struct {
	SessionID  string
	PIN        string
	DeviceName string
	Platform   string
}

// Device is a peer's self-reported identity.
// It is built from a deviceInfo payload, or synthesized as a stand-in
// immediately after authentication before the real deviceInfo arrives.
type Device struct {
	ID       string
	Name     string
	Platform string
	Role     string
}

// frame is the JSON envelope shared by all wire messages.
// Handshake fields live at the same level as "type"; regular commands put
// everything under "data".
type frame struct {
	Type CommandType    `json:"type"`
	Data map[string]any `json:"data,omitempty"`

	// Handshake fields (auth / authFailed only).
	SessionID  string `json:"sessionId,omitempty"`
	PIN        string `json:"pin,omitempty"`
	DeviceName string `json:"deviceName,omitempty"`
	Platform   string `json:"platform,omitempty"`
	Message    string `json:"message,omitempty"`
}

// Inbound is a decoded wire frame, tagged by Type.
// Exactly one of the optional fields is populated:
//   - Auth for auth frames
//   - Message for authFailed frames
//   - Command for everything that is not a handshake frame
type Inbound struct {
	Type    CommandType
	Auth    *AuthRequest
	Message string
	Command *Command
}

// EncodeCommand serializes a command as a wire frame.
// Encoding never fails for well-formed commands (primitive-valued data).
func EncodeCommand(cmd Command) ([]byte, error) {
	data, err := json.Marshal(frame{Type: cmd.Type, Data: cmd.Data})
	if err != nil {
		return nil, fmt.Errorf("encode %s command: %w", cmd.Type, err)
	}
	return data, nil
}

// EncodeAuth serializes an auth handshake frame.
func EncodeAuth(req AuthRequest) ([]byte, error) {
	data, err := json.Marshal(frame{
		Type:       CommandAuth,
		SessionID:  req.SessionID,
		PIN:        req.PIN,
		DeviceName: req.DeviceName,
		Platform:   req.Platform,
	})
	if err != nil {
		return nil, fmt.Errorf("encode auth frame: %w", err)
	}
	return data, nil
}

// EncodeAuthSuccess serializes an authSuccess frame.
func EncodeAuthSuccess() []byte {
	data, _ := json.Marshal(frame{Type: CommandAuthSuccess})
	return data
}

// EncodeAuthFailed serializes an authFailed frame with the given message.
func EncodeAuthFailed(message string) []byte {
	data, _ := json.Marshal(frame{Type: CommandAuthFailed, Message: message})
	return data
}

// Decode parses a wire frame into its tagged form.
//
// Callers must treat a returned error as a non-fatal per-message parse
// failure: log it and keep listening. A single malformed frame must never
// terminate a session.
func Decode(data []byte) (*Inbound, error) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	if f.Type == "" {
		return nil, fmt.Errorf("decode frame: missing type")
	}

	in := &Inbound{Type: f.Type}

	switch f.Type {
	case CommandAuth:
		in.Auth = &AuthRequest{
			SessionID:  f.SessionID,
			PIN:        f.PIN,
			DeviceName: f.DeviceName,
			Platform:   f.Platform,
		}
	case CommandAuthSuccess:
		// No payload.
	case CommandAuthFailed:
		in.Message = f.Message
	default:
		in.Command = &Command{Type: f.Type, Data: f.Data}
	}

	return in, nil
}

// IsHandshake reports whether the type belongs to the auth handshake rather
// than the general command channel.
func IsHandshake(t CommandType) bool {
	switch t {
	case CommandAuth, CommandAuthSuccess, CommandAuthFailed:
		return true
	}
	return false
}

// NeedsAck reports whether a received command should be acknowledged.
// Only control-affecting commands are acked; liveness and info traffic is
// not, to avoid ack storms.
func NeedsAck(t CommandType) bool {
	switch t {
	case CommandPing, CommandPong, CommandAck, CommandDeviceInfo:
		return false
	}
	return true
}

// NewDeviceInfoCommand builds a deviceInfo command from a device identity.
func NewDeviceInfoCommand(d Device) Command {
	return Command{
		Type: CommandDeviceInfo,
		Data: map[string]any{
			"id":       d.ID,
			"name":     d.Name,
			"platform": d.Platform,
			"role":     d.Role,
		},
	}
}

// ParseDeviceInfo extracts a device identity from a deviceInfo command.
// Missing fields are left empty; the second return is false if the command
// is not deviceInfo.
func ParseDeviceInfo(cmd Command) (Device, bool) {
	if cmd.Type != CommandDeviceInfo {
		return Device{}, false
	}
	get := func(key string) string {
		if v, ok := cmd.Data[key].(string); ok {
			return v
		}
		return ""
	}
	return Device{
		ID:       get("id"),
		Name:     get("name"),
		Platform: get("platform"),
		Role:     get("role"),
	}, true
}

// NormalizeSessionID uppercases a session ID for comparison and display.
// Session IDs are case-insensitive on the wire but canonical uppercase.
func NormalizeSessionID(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}
