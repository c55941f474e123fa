package keepawake

import (
	"context"
	"sync"

	apperrors "github.com/companion-remote/companion/internal/errors"
)

// Manager reconciles a desired keep-awake target against the sleep
// inhibitor it currently holds. Safe for concurrent use.
type Manager struct {
	mu      sync.Mutex
	adapter Adapter

	st     Status
	cur    Handle
	gen    uint64
	closed bool
}

// NewManager creates a keep-awake manager with the given adapter.
func NewManager(adapter Adapter) *Manager {
	return &Manager{
		adapter: adapter,
		st:      Status{State: StateOff},
	}
}

// Snapshot returns the current keep-awake status.
func (m *Manager) Snapshot() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st
}

// Enable acquires a sleep inhibitor if one is not already held. When the
// held inhibitor has died in the meantime the loss is recorded and a fresh
// one is acquired in the same call.
func (m *Manager) Enable(ctx context.Context) Status {
	m.mu.Lock()
	if m.closed {
		st := m.st
		m.mu.Unlock()
		return st
	}
	m.st.DesiredEnabled = true

	if m.cur != nil {
		select {
		case <-m.cur.Done():
			m.markLost(m.cur)
		default:
			// Already on with a live inhibitor.
			st := m.st
			m.mu.Unlock()
			return st
		}
	}

	m.set(StatePending, "", "")
	m.mu.Unlock()

	h, err := m.adapter.Acquire(ctx)

	m.mu.Lock()
	if err != nil {
		reason := DegradedReasonAcquireFailed
		if apperrors.IsCode(err, apperrors.CodeKeepAwakeUnsupported) {
			reason = DegradedReasonUnsupported
		}
		m.set(StateDegraded, reason, err.Error())
		st := m.st
		m.mu.Unlock()
		return st
	}

	if !m.st.DesiredEnabled || m.closed {
		// Disable or Close raced the acquire; the fresh inhibitor is no
		// longer wanted.
		m.set(StateOff, "", "")
		st := m.st
		m.mu.Unlock()
		_ = h.Release(context.Background())
		return st
	}

	m.cur = h
	m.gen++
	gen := m.gen
	m.set(StateOn, "", "")
	st := m.st
	m.mu.Unlock()

	go m.watch(h, gen)
	return st
}

// Disable releases the held inhibitor, if any. A failed release still
// settles at OFF, keeping the failure as diagnostics.
func (m *Manager) Disable(ctx context.Context) Status {
	m.mu.Lock()
	if m.closed {
		st := m.st
		m.mu.Unlock()
		return st
	}
	m.st.DesiredEnabled = false
	h := m.detach()
	m.set(StateOff, "", "")
	st := m.st
	m.mu.Unlock()

	if h == nil {
		return st
	}
	if err := h.Release(ctx); err != nil {
		m.mu.Lock()
		m.st.LastError = err.Error()
		st = m.st
		m.mu.Unlock()
	}
	return st
}

// Close permanently disables the manager and releases any held inhibitor,
// blocking until the release attempt completes.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.st.DesiredEnabled = false
	h := m.detach()
	m.set(StateOff, "", "")
	m.mu.Unlock()

	if h == nil {
		return nil
	}
	if err := h.Release(ctx); err != nil {
		m.mu.Lock()
		m.st.LastError = err.Error()
		m.mu.Unlock()
		return err
	}
	return nil
}

// detach removes the current inhibitor and invalidates its watcher.
// Caller holds the mutex.
func (m *Manager) detach() Handle {
	h := m.cur
	m.cur = nil
	m.gen++
	return h
}

// markLost records that the held inhibitor died while keep-awake was still
// wanted. Caller holds the mutex.
func (m *Manager) markLost(h Handle) {
	msg := "inhibitor exited unexpectedly"
	if err := h.Err(); err != nil {
		msg = err.Error()
	}
	m.cur = nil
	m.gen++
	m.set(StateDegraded, DegradedReasonIntegrityLost, msg)
}

// watch flags integrity loss when the inhibitor exits on its own. The
// generation check makes a watcher for a detached handle a no-op.
func (m *Manager) watch(h Handle, gen uint64) {
	<-h.Done()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen != gen || m.cur != h {
		return
	}
	m.markLost(h)
}

// set transitions the runtime state. Caller holds the mutex.
func (m *Manager) set(s State, reason DegradedReason, lastErr string) {
	m.st.State = s
	m.st.Reason = reason
	m.st.LastError = lastErr
}
