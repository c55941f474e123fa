//go:build !darwin

package keepawake

import (
	"context"

	apperrors "github.com/companion-remote/companion/internal/errors"
)

// NewDefaultAdapter returns an adapter that reports keep-awake as
// unsupported on platforms without an inhibitor path. The manager settles
// at DEGRADED and the session carries on.
func NewDefaultAdapter() Adapter {
	return unsupportedAdapter{}
}

type unsupportedAdapter struct{}

func (unsupportedAdapter) Acquire(ctx context.Context) (Handle, error) {
	return nil, apperrors.New(apperrors.CodeKeepAwakeUnsupported, "keep-awake is unsupported on this platform")
}
