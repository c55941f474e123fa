package session

import (
	"time"

	"github.com/companion-remote/companion/internal/protocol"
)

// startKeepalive runs the controller-side liveness monitor: a ping every
// PingInterval while connected. Liveness here is advisory, keeping
// intermediary proxies and NATs from closing an idle connection; there is
// no pong deadline or dead-peer detection. The ticker stops when the
// connection's done channel closes (disconnect, auth failure, teardown).
func (r *Remote) startKeepalive(done <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(r.config.PingInterval)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if r.IsConnected() {
					r.SendCommand(protocol.NewCommand(protocol.CommandPing, nil))
				}
			}
		}
	}()
}
