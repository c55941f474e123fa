//go:build js

package session

import (
	"net"

	apperrors "github.com/companion-remote/companion/internal/errors"
)

// listen fails immediately in browser-embedded runtimes: there is no
// listening-socket capability, so CreateSession reports hosting as
// unsupported without attempting any network operation.
func listen(preferredPort int) (net.Listener, error) {
	return nil, apperrors.ServerUnsupported()
}
