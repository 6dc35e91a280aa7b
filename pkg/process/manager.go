// Package process implements the Process Manager (C3): it tracks live
// child processes and guarantees graceful-then-forceful termination on
// timeout or shutdown. The escalation protocol and streaming-capture
// shape are grounded in hector's pkg/tools/command.go
// (executeCommandStreaming) and v2/tool/commandtool/command.go, adapted
// here into a standalone registry of handles rather than a single
// command's lifetime.
package process

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/kadirpekel/forge/pkg/logger"
)

const (
	gracefulWait  = 5 * time.Second
	forcefulWait  = 2 * time.Second
)

// Handle is an opaque reference to a live child process.
type Handle struct {
	ID        string
	PID       int
	StartedAt time.Time

	cmd      *exec.Cmd
	cancel   context.CancelFunc
	exited   chan struct{}
	exitOnce sync.Once
}

func (h *Handle) markExited() {
	h.exitOnce.Do(func() { close(h.exited) })
}

// hasExited reports whether the process has already been reaped.
func (h *Handle) hasExited() bool {
	select {
	case <-h.exited:
		return true
	default:
		return false
	}
}

// Manager owns the set of live process handles under a single mutex, as
// spec.md §3 "Ownership" requires.
type Manager struct {
	mu      sync.Mutex
	handles map[string]*Handle
	log     *slog.Logger
}

// NewManager creates an empty Manager.
func NewManager() *Manager {
	return &Manager{handles: make(map[string]*Handle), log: logger.Default()}
}

// Spawn starts a shell command under the Manager's tracking. The
// returned Handle is already registered; callers must call Wait, which
// reaps the process and unregisters the Handle.
func (m *Manager) Spawn(ctx context.Context, shell, workingDir string, env []string) (*Handle, error) {
	return m.SpawnCapturing(ctx, shell, workingDir, env, nil)
}

// SpawnCapturing is Spawn with caller-supplied stdout/stderr sinks,
// wired before the process starts since exec.Cmd's Stdout/Stderr fields
// are read only at Cmd.Start (os/exec's documented contract). Passing
// nil for output discards it, matching Spawn's behavior.
func (m *Manager) SpawnCapturing(ctx context.Context, shell, workingDir string, env []string, output io.Writer) (*Handle, error) {
	execCtx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(execCtx, "sh", "-c", shell)
	cmd.Dir = workingDir
	if env != nil {
		cmd.Env = env
	}
	cmd.SysProcAttr = processGroupAttr()
	if output != nil {
		cmd.Stdout = output
		cmd.Stderr = output
	}

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("process: failed to start command: %w", err)
	}

	h := &Handle{
		ID:        uuid.NewString(),
		PID:       cmd.Process.Pid,
		StartedAt: time.Now(),
		cmd:       cmd,
		cancel:    cancel,
		exited:    make(chan struct{}),
	}
	m.register(h)
	return h, nil
}

// Wait blocks until the process referenced by h exits, then unregisters
// it and releases its context. Safe to call exactly once per Handle.
func (m *Manager) Wait(h *Handle) error {
	err := h.cmd.Wait()
	h.markExited()
	h.cancel()
	m.unregister(h)
	return err
}

func (m *Manager) register(h *Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handles[h.ID] = h
	m.log.Debug("process registered", slog.String("id", h.ID), slog.Int("pid", h.PID))
}

func (m *Manager) unregister(h *Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.handles, h.ID)
}

// Count returns the number of currently tracked live handles.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.handles)
}

// Terminate drives h through the escalation protocol: graceful signal,
// wait up to 5s; forceful kill, wait up to 2s; process-group kill as a
// last resort. Each step is idempotent against an already-exited
// process.
func (m *Manager) Terminate(h *Handle) {
	if h == nil || h.hasExited() {
		return
	}

	m.log.Info("terminating process", slog.String("id", h.ID), slog.Int("pid", h.PID))

	_ = signalGraceful(h.cmd.Process)
	if waitForExit(h, gracefulWait) {
		return
	}

	_ = h.cmd.Process.Kill()
	if waitForExit(h, forcefulWait) {
		return
	}

	killProcessGroup(h.PID)
}

func waitForExit(h *Handle, timeout time.Duration) bool {
	select {
	case <-h.exited:
		return true
	case <-time.After(timeout):
		return h.hasExited()
	}
}

// CleanupAll terminates every registered handle under the escalation
// protocol and empties the set. Invoked on orchestrator shutdown and on
// catastrophic error.
func (m *Manager) CleanupAll() {
	m.mu.Lock()
	handles := make([]*Handle, 0, len(m.handles))
	for _, h := range m.handles {
		handles = append(handles, h)
	}
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, h := range handles {
		wg.Add(1)
		go func(h *Handle) {
			defer wg.Done()
			m.Terminate(h)
		}(h)
	}
	wg.Wait()

	m.mu.Lock()
	m.handles = make(map[string]*Handle)
	m.mu.Unlock()
}

func signalGraceful(p *os.Process) error {
	if p == nil {
		return nil
	}
	return p.Signal(syscall.SIGTERM)
}
