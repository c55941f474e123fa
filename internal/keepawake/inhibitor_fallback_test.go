//go:build !darwin

package keepawake

import (
	"context"
	"testing"

	apperrors "github.com/companion-remote/companion/internal/errors"
)

func TestFallbackAdapterReportsUnsupported(t *testing.T) {
	_, err := NewDefaultAdapter().Acquire(context.Background())
	if err == nil {
		t.Fatal("expected unsupported error")
	}
	if got := apperrors.GetCode(err); got != apperrors.CodeKeepAwakeUnsupported {
		t.Fatalf("code = %s, want %s", got, apperrors.CodeKeepAwakeUnsupported)
	}
}

func TestFallbackManagerDegradesGracefully(t *testing.T) {
	m := NewManager(NewDefaultAdapter())
	defer m.Close(context.Background())

	st := m.Enable(context.Background())
	if st.State != StateDegraded {
		t.Fatalf("state = %s, want DEGRADED", st.State)
	}
	if st.Reason != DegradedReasonUnsupported {
		t.Fatalf("reason = %s, want unsupported", st.Reason)
	}

	// Turning it back off is still clean.
	if st := m.Disable(context.Background()); st.State != StateOff {
		t.Fatalf("state = %s, want OFF", st.State)
	}
}
