package keepawake

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"syscall"
	"time"

	apperrors "github.com/companion-remote/companion/internal/errors"
)

// NewDefaultAdapter returns the macOS adapter, which holds an idle-sleep
// assertion through caffeinate(8).
func NewDefaultAdapter() Adapter {
	return &caffeinateAdapter{start: startCaffeinate}
}

type caffeinateAdapter struct {
	// start launches the inhibitor process; swappable in tests.
	start func(pid int) (*exec.Cmd, error)
}

// startCaffeinate launches an idle-only inhibit bound to the hosting
// process PID, so a host crash or restart takes the inhibitor down with it.
func startCaffeinate(pid int) (*exec.Cmd, error) {
	cmd := exec.Command("caffeinate", "-i", "-w", strconv.Itoa(pid))
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return cmd, nil
}

func (a *caffeinateAdapter) Acquire(ctx context.Context) (Handle, error) {
	cmd, err := a.start(os.Getpid())
	if err != nil {
		return nil, classifyStartError(err)
	}

	h := &procHandle{cmd: cmd, exited: make(chan struct{})}
	go h.reap()
	return h, nil
}

// classifyStartError separates "caffeinate does not exist here" from any
// other launch failure, so the manager can report unsupported vs degraded.
func classifyStartError(err error) error {
	var lookErr *exec.Error
	if errors.As(err, &lookErr) || errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
		return apperrors.Wrap(apperrors.CodeKeepAwakeUnsupported, "caffeinate is unavailable", err)
	}
	return apperrors.Wrap(apperrors.CodeKeepAwakeAcquireFailed, "failed to start caffeinate", err)
}

// procHandle wraps the running inhibitor process.
type procHandle struct {
	cmd *exec.Cmd

	mu       sync.Mutex
	exited   chan struct{}
	exitErr  error
	released bool
	termOnce sync.Once
}

// reap waits for the process and publishes its exit. A requested release
// is a clean exit regardless of the process's status.
func (h *procHandle) reap() {
	err := h.cmd.Wait()

	h.mu.Lock()
	if !h.released {
		h.exitErr = err
	}
	h.mu.Unlock()

	close(h.exited)
}

func (h *procHandle) Done() <-chan struct{} {
	return h.exited
}

func (h *procHandle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exitErr
}

// Release terminates the inhibitor: SIGTERM first, escalating to SIGKILL
// if the process outlives the context, so no caffeinate is left orphaned.
func (h *procHandle) Release(ctx context.Context) error {
	if h.cmd == nil || h.cmd.Process == nil {
		return nil
	}

	h.termOnce.Do(func() {
		h.mu.Lock()
		h.released = true
		h.mu.Unlock()
		_ = h.cmd.Process.Signal(syscall.SIGTERM)
	})

	select {
	case <-h.exited:
		return nil
	case <-ctx.Done():
		_ = h.cmd.Process.Kill()
		select {
		case <-h.exited:
		case <-time.After(200 * time.Millisecond):
		}
		return fmt.Errorf("release timed out waiting for caffeinate exit: %w", ctx.Err())
	}
}
