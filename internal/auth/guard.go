package auth

import (
	"log"
	"sync"
	"time"
)

// GuardConfig holds configuration for the auth guard.
type GuardConfig struct {
	// MaxFailures is the number of failed attempts that triggers a lockout.
	// Default: 5.
	MaxFailures int

	// LockoutDuration is how long auth attempts are rejected outright after
	// MaxFailures is reached. Default: 30 seconds.
	LockoutDuration time.Duration

	// TimeNow returns the current time. Useful for testing.
	// Default: time.Now.
	TimeNow func() time.Time
}

// Guard tracks failed authentication attempts for one hosting period and
// enforces a lockout window. State is shared across all connection attempts
// during that period, not per connection.
type Guard struct {
	mu sync.Mutex

	config GuardConfig

	// failedAttempts counts consecutive failures since the last success.
	failedAttempts int

	// lockoutUntil is the end of the active lockout window, if any.
	lockoutUntil time.Time
}

// NewGuard creates an auth guard with the given config.
func NewGuard(config GuardConfig) *Guard {
	// Apply defaults
	if config.MaxFailures == 0 {
		config.MaxFailures = 5
	}
	if config.LockoutDuration == 0 {
		config.LockoutDuration = 30 * time.Second
	}
	if config.TimeNow == nil {
		config.TimeNow = time.Now
	}

	return &Guard{config: config}
}

// RecordFailure increments the failure counter. When the counter reaches the
// threshold, a lockout window is set.
func (g *Guard) RecordFailure() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.failedAttempts++
	if g.failedAttempts >= g.config.MaxFailures {
		g.lockoutUntil = g.config.TimeNow().Add(g.config.LockoutDuration)
		log.Printf("auth: lockout engaged after %d failed attempts (until %s)",
			g.failedAttempts, g.lockoutUntil.Format(time.RFC3339))
	}
}

// RecordSuccess resets the failure counter.
// An already-set lockout window is not cleared early.
func (g *Guard) RecordSuccess() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.failedAttempts = 0
}

// IsLockedOut reports whether auth attempts should currently be rejected
// outright. Hosts must check this before comparing credentials, and must
// reject with the rate-limited reason rather than the invalid-credentials
// one so controllers can tell lockout apart from a typo.
func (g *Guard) IsLockedOut() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.config.TimeNow().Before(g.lockoutUntil)
}

// FailedAttempts returns the current consecutive-failure count.
func (g *Guard) FailedAttempts() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.failedAttempts
}
