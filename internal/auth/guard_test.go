package auth

import (
	"testing"
	"time"
)

// fakeClock provides a controllable time source for guard tests.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func newTestGuard(clock *fakeClock) *Guard {
	return NewGuard(GuardConfig{TimeNow: clock.Now})
}

// TestNoLockoutBeforeThreshold verifies 4 failures do not trigger a lockout.
func TestNoLockoutBeforeThreshold(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	g := newTestGuard(clock)

	for i := 0; i < 4; i++ {
		if g.IsLockedOut() {
			t.Fatalf("locked out after %d failures", i)
		}
		g.RecordFailure()
	}

	if g.IsLockedOut() {
		t.Error("4 failures must not lock out; the 5th attempt is still evaluated")
	}
	if got := g.FailedAttempts(); got != 4 {
		t.Errorf("FailedAttempts = %d, want 4", got)
	}
}

// TestLockoutAtThreshold verifies the 5th failure engages a 30s lockout.
func TestLockoutAtThreshold(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	g := newTestGuard(clock)

	for i := 0; i < 5; i++ {
		g.RecordFailure()
	}

	if !g.IsLockedOut() {
		t.Fatal("5 failures must engage the lockout")
	}

	// Still locked out just before the window ends.
	clock.Advance(29 * time.Second)
	if !g.IsLockedOut() {
		t.Error("lockout must hold for the full window")
	}

	// Released once the window passes.
	clock.Advance(2 * time.Second)
	if g.IsLockedOut() {
		t.Error("lockout must expire after the window")
	}
}

// TestSuccessResetsCounter verifies a success clears accumulated failures.
func TestSuccessResetsCounter(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	g := newTestGuard(clock)

	for i := 0; i < 4; i++ {
		g.RecordFailure()
	}
	g.RecordSuccess()

	if got := g.FailedAttempts(); got != 0 {
		t.Errorf("FailedAttempts = %d after success, want 0", got)
	}

	// The counter starts over: 4 more failures still should not lock out.
	for i := 0; i < 4; i++ {
		g.RecordFailure()
	}
	if g.IsLockedOut() {
		t.Error("counter must restart from zero after a success")
	}
}

// TestSuccessDoesNotClearLockout verifies an active lockout window survives
// a recorded success.
func TestSuccessDoesNotClearLockout(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	g := newTestGuard(clock)

	for i := 0; i < 5; i++ {
		g.RecordFailure()
	}
	g.RecordSuccess()

	if !g.IsLockedOut() {
		t.Error("RecordSuccess must not clear an already-set lockout early")
	}
}

// TestGuardDefaults verifies defaults are applied for a zero config.
func TestGuardDefaults(t *testing.T) {
	g := NewGuard(GuardConfig{})

	if g.config.MaxFailures != 5 {
		t.Errorf("MaxFailures default = %d, want 5", g.config.MaxFailures)
	}
	if g.config.LockoutDuration != 30*time.Second {
		t.Errorf("LockoutDuration default = %v, want 30s", g.config.LockoutDuration)
	}
	if g.config.TimeNow == nil {
		t.Error("TimeNow default must be set")
	}
}
