package session

import (
	"testing"
	"time"

	apperrors "github.com/companion-remote/companion/internal/errors"
	"github.com/companion-remote/companion/internal/protocol"
)

// TestBuildWSURL verifies scheme derivation from the host address.
func TestBuildWSURL(t *testing.T) {
	tests := []struct {
		name string
		addr string
		want string
	}{
		{"bare ip:port", "192.168.1.10:48632", "ws://192.168.1.10:48632/ws"},
		{"http url", "http://192.168.1.10:48632", "ws://192.168.1.10:48632/ws"},
		{"https url becomes wss", "https://host.example:8443", "wss://host.example:8443/ws"},
		{"ws url kept", "ws://192.168.1.10:48632", "ws://192.168.1.10:48632/ws"},
		{"wss url kept", "wss://host.example", "wss://host.example/ws"},
		{"existing path replaced", "http://192.168.1.10:48632/other", "ws://192.168.1.10:48632/ws"},
		{"surrounding whitespace", " 10.0.0.2:48632 ", "ws://10.0.0.2:48632/ws"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := buildWSURL(tt.addr)
			if err != nil {
				t.Fatalf("buildWSURL(%q) failed: %v", tt.addr, err)
			}
			if got != tt.want {
				t.Errorf("buildWSURL(%q) = %q, want %q", tt.addr, got, tt.want)
			}
		})
	}
}

// TestJoinConnectionRefused verifies a dead address fails with
// connection.failed, not a hang.
func TestJoinConnectionRefused(t *testing.T) {
	remoteEv := newEventRecorder()
	r := NewRemote(RemoteConfig{
		DeviceName:  "Phone",
		Platform:    "android",
		JoinTimeout: 2 * time.Second,
		Events:      remoteEv.events(),
	})

	// Port 1 on loopback: nothing listens there.
	err := r.Join("ABCD1234", "123456", "127.0.0.1:1")
	if err == nil {
		t.Fatal("Join should fail with no listener")
	}
	if !apperrors.IsCode(err, apperrors.CodeConnectionFailed) && !apperrors.IsCode(err, apperrors.CodeTimeout) {
		t.Errorf("Join error = %v, want connection.failed or session.timeout", err)
	}
	if r.State() != StateError {
		t.Errorf("state = %s, want error", r.State())
	}
}

// TestRemoteIdempotentDisconnect verifies repeated disconnects on a
// never-connected remote are safe.
func TestRemoteIdempotentDisconnect(t *testing.T) {
	r := NewRemote(RemoteConfig{DeviceName: "Phone", Platform: "android"})

	r.Disconnect()
	r.Disconnect()

	if r.IsConnected() {
		t.Error("IsConnected on never-connected remote")
	}
	if r.SessionID() != "" || r.HostAddress() != "" {
		t.Error("identity fields must be empty")
	}
	if r.Role() != RoleNone {
		t.Errorf("Role = %q, want none", r.Role())
	}
}

// TestRemoteDisconnectClearsFields verifies an explicit disconnect after a
// successful join clears everything and reports disconnected.
func TestRemoteDisconnectClearsFields(t *testing.T) {
	hostEv := newEventRecorder()
	_, info, addr := newTestHost(t, hostEv)

	remoteEv := newEventRecorder()
	r := newTestRemote(remoteEv)
	if err := r.Join(info.SessionID, info.PIN, addr); err != nil {
		t.Fatalf("Join failed: %v", err)
	}

	r.Disconnect()
	r.Disconnect()

	if r.IsConnected() {
		t.Error("IsConnected after disconnect")
	}
	if r.SessionID() != "" || r.HostAddress() != "" {
		t.Error("identity fields must be cleared by disconnect")
	}
	if r.State() != StateDisconnected {
		t.Errorf("state = %s, want disconnected", r.State())
	}
}

// TestRemoteSendCommandWhileDisconnected verifies sends are a silent no-op
// without a connection.
func TestRemoteSendCommandWhileDisconnected(t *testing.T) {
	remoteEv := newEventRecorder()
	r := NewRemote(RemoteConfig{DeviceName: "Phone", Platform: "android", Events: remoteEv.events()})

	r.SendCommand(protocol.NewCommand(protocol.CommandPing, nil))

	select {
	case err := <-remoteEv.errs:
		t.Errorf("unexpected error event: %v", err)
	case <-time.After(100 * time.Millisecond):
	}
}

// TestKeepalivePings verifies the liveness monitor sends periodic pings and
// that pongs come back without generating acks.
func TestKeepalivePings(t *testing.T) {
	hostEv := newEventRecorder()
	_, info, addr := newTestHost(t, hostEv)

	remoteEv := newEventRecorder()
	r := NewRemote(RemoteConfig{
		DeviceName:   "Phone",
		Platform:     "android",
		JoinTimeout:  3 * time.Second,
		PingInterval: 50 * time.Millisecond,
		Events:       remoteEv.events(),
	})
	defer r.Disconnect()

	if err := r.Join(info.SessionID, info.PIN, addr); err != nil {
		t.Fatalf("Join failed: %v", err)
	}

	// Give the ticker a few periods.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(remoteEv.commandsOfType(protocol.CommandPong)) >= 2 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	if got := len(remoteEv.commandsOfType(protocol.CommandPong)); got < 2 {
		t.Errorf("received %d pongs, want at least 2 from periodic pings", got)
	}
	if got := len(remoteEv.commandsOfType(protocol.CommandAck)); got != 0 {
		t.Errorf("pings generated %d acks, want 0", got)
	}
	if got := len(hostEv.commandsOfType(protocol.CommandPing)); got < 2 {
		t.Errorf("host command stream saw %d pings, want at least 2", got)
	}
}

// TestStateTransitions verifies the connecting→connected sequence on join
// and disconnected on teardown.
func TestStateTransitions(t *testing.T) {
	hostEv := newEventRecorder()
	_, info, addr := newTestHost(t, hostEv)

	remoteEv := newEventRecorder()
	r := newTestRemote(remoteEv)
	if err := r.Join(info.SessionID, info.PIN, addr); err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	r.Disconnect()

	var got []State
	timeout := time.After(2 * time.Second)
	for len(got) < 3 {
		select {
		case s := <-remoteEv.states:
			got = append(got, s)
		case <-timeout:
			t.Fatalf("timed out collecting states, have %v", got)
		}
	}

	want := []State{StateConnecting, StateConnected, StateDisconnected}
	for i, s := range want {
		if got[i] != s {
			t.Fatalf("state sequence = %v, want %v", got, want)
		}
	}
}
