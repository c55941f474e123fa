package keepawake

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	apperrors "github.com/companion-remote/companion/internal/errors"
)

// stubHandle is a controllable in-memory inhibitor.
type stubHandle struct {
	exited    chan struct{}
	exitErr   error
	onRelease func(context.Context) error
}

func newStubHandle() *stubHandle {
	return &stubHandle{exited: make(chan struct{})}
}

func (h *stubHandle) Done() <-chan struct{} { return h.exited }
func (h *stubHandle) Err() error            { return h.exitErr }

func (h *stubHandle) Release(ctx context.Context) error {
	if h.onRelease != nil {
		return h.onRelease(ctx)
	}
	h.exit(nil)
	return nil
}

// exit simulates the inhibitor process ending.
func (h *stubHandle) exit(err error) {
	h.exitErr = err
	select {
	case <-h.exited:
	default:
		close(h.exited)
	}
}

// stubAdapter hands out stub handles and counts acquisitions.
type stubAdapter struct {
	mu      sync.Mutex
	err     error
	handles []*stubHandle
}

func (a *stubAdapter) Acquire(ctx context.Context) (Handle, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return nil, a.err
	}
	h := newStubHandle()
	a.handles = append(a.handles, h)
	return h, nil
}

func (a *stubAdapter) acquireCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.handles)
}

func (a *stubAdapter) handle(i int) *stubHandle {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.handles[i]
}

func TestEnableHoldsInhibitor(t *testing.T) {
	a := &stubAdapter{}
	m := NewManager(a)

	st := m.Enable(context.Background())
	if st.State != StateOn {
		t.Fatalf("state = %s, want ON", st.State)
	}
	if !st.DesiredEnabled {
		t.Error("desired target should be enabled")
	}
	if a.acquireCount() != 1 {
		t.Errorf("acquires = %d, want 1", a.acquireCount())
	}
}

func TestEnableIsIdempotent(t *testing.T) {
	a := &stubAdapter{}
	m := NewManager(a)

	m.Enable(context.Background())
	st := m.Enable(context.Background())
	if st.State != StateOn {
		t.Fatalf("state = %s, want ON", st.State)
	}
	if a.acquireCount() != 1 {
		t.Errorf("acquires = %d, want 1 for repeated enable", a.acquireCount())
	}
}

func TestEnableUnsupportedDegrades(t *testing.T) {
	a := &stubAdapter{err: apperrors.New(apperrors.CodeKeepAwakeUnsupported, "no inhibitor here")}
	m := NewManager(a)

	st := m.Enable(context.Background())
	if st.State != StateDegraded {
		t.Fatalf("state = %s, want DEGRADED", st.State)
	}
	if st.Reason != DegradedReasonUnsupported {
		t.Errorf("reason = %s, want unsupported", st.Reason)
	}
}

func TestEnableFailureDegrades(t *testing.T) {
	a := &stubAdapter{err: errors.New("assertion denied")}
	m := NewManager(a)

	st := m.Enable(context.Background())
	if st.State != StateDegraded {
		t.Fatalf("state = %s, want DEGRADED", st.State)
	}
	if st.Reason != DegradedReasonAcquireFailed {
		t.Errorf("reason = %s, want acquire_failed", st.Reason)
	}
	if st.LastError == "" {
		t.Error("acquire failure should be kept as diagnostics")
	}
}

func TestInhibitorExitFlagsIntegrityLoss(t *testing.T) {
	a := &stubAdapter{}
	m := NewManager(a)
	m.Enable(context.Background())

	a.handle(0).exit(errors.New("killed externally"))

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		st := m.Snapshot()
		if st.State == StateDegraded {
			if st.Reason != DegradedReasonIntegrityLost {
				t.Fatalf("reason = %s, want integrity_lost", st.Reason)
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("inhibitor exit never surfaced as degraded")
}

func TestEnableReplacesDeadInhibitor(t *testing.T) {
	a := &stubAdapter{}
	m := NewManager(a)

	if st := m.Enable(context.Background()); st.State != StateOn {
		t.Fatalf("state = %s, want ON", st.State)
	}
	a.handle(0).exit(errors.New("gone"))

	st := m.Enable(context.Background())
	if st.State != StateOn {
		t.Fatalf("state after reacquire = %s, want ON", st.State)
	}
	if a.acquireCount() != 2 {
		t.Errorf("acquires = %d, want 2", a.acquireCount())
	}
}

func TestDisableReleasesInhibitor(t *testing.T) {
	a := &stubAdapter{}
	m := NewManager(a)
	m.Enable(context.Background())

	released := false
	h := a.handle(0)
	h.onRelease = func(context.Context) error {
		released = true
		h.exit(nil)
		return nil
	}

	st := m.Disable(context.Background())
	if st.State != StateOff {
		t.Fatalf("state = %s, want OFF", st.State)
	}
	if st.DesiredEnabled {
		t.Error("desired target should be off")
	}
	if !released {
		t.Error("disable must release the inhibitor")
	}
}

func TestDisableReleaseFailureSettlesOff(t *testing.T) {
	a := &stubAdapter{}
	m := NewManager(a)
	m.Enable(context.Background())

	a.handle(0).onRelease = func(context.Context) error {
		return errors.New("release failed")
	}

	st := m.Disable(context.Background())
	if st.State != StateOff {
		t.Fatalf("state = %s, want OFF even when release fails", st.State)
	}
	if st.LastError == "" {
		t.Error("release failure should be kept as diagnostics")
	}
}

// TestDisableIsNotIntegrityLoss covers the eviction race: a released
// inhibitor exiting must not be misread as dying on its own.
func TestDisableIsNotIntegrityLoss(t *testing.T) {
	a := &stubAdapter{}
	m := NewManager(a)
	m.Enable(context.Background())
	m.Disable(context.Background())

	time.Sleep(50 * time.Millisecond)
	if st := m.Snapshot(); st.State != StateOff {
		t.Fatalf("state = %s, want OFF after clean disable", st.State)
	}
}

func TestCloseReleasesAndSticks(t *testing.T) {
	a := &stubAdapter{}
	m := NewManager(a)
	m.Enable(context.Background())

	if err := m.Close(context.Background()); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if st := m.Snapshot(); st.State != StateOff {
		t.Fatalf("state = %s, want OFF after close", st.State)
	}

	// A closed manager refuses further enables.
	if st := m.Enable(context.Background()); st.State != StateOff {
		t.Fatalf("enable after close = %s, want OFF", st.State)
	}
	if a.acquireCount() != 1 {
		t.Errorf("acquires = %d, want 1 (none after close)", a.acquireCount())
	}
}

func TestCloseReleaseFailureReturnsError(t *testing.T) {
	a := &stubAdapter{}
	m := NewManager(a)
	m.Enable(context.Background())

	a.handle(0).onRelease = func(context.Context) error {
		return errors.New("stuck process")
	}

	if err := m.Close(context.Background()); err == nil {
		t.Fatal("expected close to surface the release error")
	}
	if st := m.Snapshot(); st.State != StateOff || st.LastError == "" {
		t.Errorf("status after failed close = %+v, want OFF with diagnostics", st)
	}
}

func TestConcurrentToggleNoPanic(t *testing.T) {
	a := &stubAdapter{}
	m := NewManager(a)

	var wg sync.WaitGroup
	for i := 0; i < 24; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				m.Enable(context.Background())
			} else {
				m.Disable(context.Background())
			}
		}(i)
	}
	wg.Wait()
	m.Close(context.Background())
}
