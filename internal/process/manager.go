package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"
)

// Status represents the current state of a managed process.
type Status string

const (
	StatusStopped Status = "stopped"
	StatusRunning Status = "running"
	StatusExited  Status = "exited"
	StatusFailed  Status = "failed"
)

// stdoutBufferSize is sized for several raw 320x240 rgb24 frames.
const stdoutBufferSize = 1 << 20

// defaultGracefulTimeout is used when Config.GracefulTimeout is zero.
const defaultGracefulTimeout = 2 * time.Second

// ErrAlreadyRunning is returned by Start when the process is running.
var ErrAlreadyRunning = errors.New("process already running")

// Config holds configuration for a managed subprocess.
type Config struct {
	// Name is a human-readable identifier for logging.
	Name string

	// Binary is the path to the executable.
	Binary string

	// Args are command-line arguments to pass to the binary.
	Args []string

	// Env are additional environment variables (key=value format).
	// If nil, inherits from parent process.
	Env []string

	// GracefulTimeout is how long to wait after SIGTERM before SIGKILL.
	GracefulTimeout time.Duration

	// OnExit is called once when the process exits for any reason.
	OnExit func(err error)
}

// Logger defines the logging interface for the process manager.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Manager manages the lifecycle of one subprocess run.
// A stopped or exited Manager can be started again.
type Manager struct {
	config Config
	logger Logger

	mu            sync.RWMutex
	cmd           *exec.Cmd
	pipe          *os.File
	stdout        *bufio.Reader
	status        Status
	starts        int
	lastError     error
	startTime     time.Time
	stopRequested bool

	// done is closed when the current run has been reaped.
	done chan struct{}
}

// NewManager creates a new process manager with the given configuration.
func NewManager(cfg Config) *Manager {
	if cfg.GracefulTimeout == 0 {
		cfg.GracefulTimeout = defaultGracefulTimeout
	}

	return &Manager{
		config: cfg,
		logger: noopLogger{},
		status: StatusStopped,
	}
}

// SetLogger sets the logger for the manager.
func (m *Manager) SetLogger(logger Logger) {
	m.logger = logger
}

// Start launches the subprocess. Its stdout is available from Stdout until
// the process exits.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.status == StatusRunning {
		return fmt.Errorf("%s: %w", m.config.Name, ErrAlreadyRunning)
	}

	cmd := exec.CommandContext(ctx, m.config.Binary, m.config.Args...) //nolint:gosec // Binary comes from operator config

	// Own process group so Stop reaches any children ffmpeg spawns
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}

	if m.config.Env != nil {
		cmd.Env = append(os.Environ(), m.config.Env...)
	}

	// An explicit pipe keeps stdout readable until EOF; StdoutPipe would be
	// closed by Wait while frames are still buffered.
	pr, pw, err := os.Pipe()
	if err != nil {
		return m.failLocked(fmt.Errorf("creating stdout pipe: %w", err))
	}
	cmd.Stdout = pw
	cmd.Stderr = outputLogger{m: m, stream: "stderr"}

	if err := cmd.Start(); err != nil {
		pr.Close() //nolint:errcheck // Error path cleanup
		pw.Close() //nolint:errcheck // Error path cleanup
		return m.failLocked(fmt.Errorf("starting %s: %w", m.config.Name, err))
	}
	pw.Close() //nolint:errcheck // Child holds its own copy

	m.closePipeLocked()
	m.cmd = cmd
	m.pipe = pr
	m.stdout = bufio.NewReaderSize(pr, stdoutBufferSize)
	m.status = StatusRunning
	m.starts++
	m.lastError = nil
	m.startTime = time.Now()
	m.stopRequested = false
	m.done = make(chan struct{})

	m.logger.Debug("process started",
		"name", m.config.Name,
		"pid", cmd.Process.Pid,
	)

	go m.wait(cmd, m.done)

	return nil
}

func (m *Manager) failLocked(err error) error {
	m.status = StatusFailed
	m.lastError = err
	return err
}

// Stdout returns the running process's buffered stdout, or nil when the
// manager has never started.
func (m *Manager) Stdout() io.Reader {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.stdout == nil {
		return nil
	}
	return m.stdout
}

// outputLogger logs whatever the process writes to a stream.
type outputLogger struct {
	m      *Manager
	stream string
}

func (w outputLogger) Write(p []byte) (int, error) {
	w.m.logger.Debug("process output",
		"name", w.m.config.Name,
		"stream", w.stream,
		"output", strings.TrimRight(string(p), "\n"),
	)
	return len(p), nil
}

// closePipeLocked releases the read end of the previous run's stdout.
func (m *Manager) closePipeLocked() {
	if m.pipe != nil {
		m.pipe.Close() //nolint:errcheck // Read end only
		m.pipe = nil
	}
}

// wait reaps the process and records how it ended.
func (m *Manager) wait(cmd *exec.Cmd, done chan struct{}) {
	err := cmd.Wait()

	m.mu.Lock()
	if m.cmd == cmd {
		switch {
		case m.stopRequested:
			m.status = StatusStopped
			err = nil
		case err != nil:
			m.status = StatusFailed
			m.lastError = err
		default:
			m.status = StatusExited
		}
	}
	m.mu.Unlock()
	close(done)

	if err != nil {
		m.logger.Debug("process exited", "name", m.config.Name, "error", err)
	}
	if m.config.OnExit != nil {
		m.config.OnExit(err)
	}
}

// Stop gracefully stops the subprocess and releases its stdout.
// It sends SIGTERM to the process group and waits GracefulTimeout, then
// SIGKILL if needed. Stopping a process that already exited only releases
// the pipe.
func (m *Manager) Stop() error {
	m.mu.Lock()
	if m.status != StatusRunning || m.cmd == nil || m.cmd.Process == nil {
		m.closePipeLocked()
		m.mu.Unlock()
		return nil
	}
	m.stopRequested = true
	pid := m.cmd.Process.Pid
	done := m.done
	m.mu.Unlock()

	m.logger.Debug("stopping process", "name", m.config.Name, "pid", pid)

	if err := syscall.Kill(-pid, syscall.SIGTERM); err != nil && !errors.Is(err, syscall.ESRCH) {
		m.logger.Warn("failed to send SIGTERM to process group", "name", m.config.Name, "error", err)
	}

	defer func() {
		m.mu.Lock()
		m.closePipeLocked()
		m.mu.Unlock()
	}()

	select {
	case <-done:
		return nil
	case <-time.After(m.config.GracefulTimeout):
		m.logger.Warn("graceful shutdown timeout, sending SIGKILL",
			"name", m.config.Name,
			"timeout", m.config.GracefulTimeout,
		)
	}

	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		return fmt.Errorf("killing process group %s: %w", m.config.Name, err)
	}

	<-done
	return nil
}

// Done returns a channel closed when the current run has exited, or nil
// before the first Start.
func (m *Manager) Done() <-chan struct{} {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.done
}

// Status returns the current status of the managed process.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// IsRunning returns true if the process is currently running.
func (m *Manager) IsRunning() bool {
	return m.Status() == StatusRunning
}

// LastError returns the last error that caused the process to fail.
func (m *Manager) LastError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastError
}

// PID returns the process ID, or 0 if not running.
func (m *Manager) PID() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.status == StatusRunning && m.cmd != nil && m.cmd.Process != nil {
		return m.cmd.Process.Pid
	}
	return 0
}

// Stats returns statistics about the managed process.
type Stats struct {
	Name      string        `json:"name"`
	Status    Status        `json:"status"`
	PID       int           `json:"pid,omitempty"`
	Uptime    time.Duration `json:"uptime,omitempty"`
	Starts    int           `json:"starts"`
	LastError string        `json:"last_error,omitempty"`
}

// Stats returns current statistics for the process.
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := Stats{
		Name:   m.config.Name,
		Status: m.status,
		Starts: m.starts,
	}

	if m.status == StatusRunning {
		if m.cmd != nil && m.cmd.Process != nil {
			stats.PID = m.cmd.Process.Pid
		}
		stats.Uptime = time.Since(m.startTime)
	}

	if m.lastError != nil {
		stats.LastError = m.lastError.Error()
	}

	return stats
}

// Output runs binary to completion and returns its stdout. The run is bounded
// by timeout; stderr is included in the error on failure.
func Output(ctx context.Context, timeout time.Duration, binary string, args ...string) ([]byte, error) {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, binary, args...) //nolint:gosec // Binary comes from operator config
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return nil, fmt.Errorf("running %s: %w: %s", binary, err, firstLine(exitErr.Stderr))
		}
		return nil, fmt.Errorf("running %s: %w", binary, err)
	}
	return out, nil
}

func firstLine(b []byte) string {
	for i, c := range b {
		if c == '\n' {
			return string(b[:i])
		}
	}
	return string(b)
}
