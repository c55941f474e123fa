//go:build !js

package session

import (
	"fmt"
	"log"
	"net"

	apperrors "github.com/companion-remote/companion/internal/errors"
)

// listen binds the host's listening socket. The preferred port is tried
// first; if it is occupied the OS assigns an ephemeral port instead, and
// that fallback is not an error.
func listen(preferredPort int) (net.Listener, error) {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", preferredPort))
	if err == nil {
		return ln, nil
	}

	log.Printf("session: port %d unavailable (%v), falling back to ephemeral port", preferredPort, err)

	ln, err = net.Listen("tcp", ":0")
	if err != nil {
		return nil, apperrors.ServerFailed("failed to bind listening socket", err)
	}
	return ln, nil
}
