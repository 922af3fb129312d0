package process

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"
)

func TestNewManager_Defaults(t *testing.T) {
	m := NewManager(Config{
		Name:   "ffmpeg",
		Binary: "/usr/bin/ffmpeg",
		Args:   []string{"-i", "clip.mp4"},
	})

	if m.config.GracefulTimeout != defaultGracefulTimeout {
		t.Errorf("GracefulTimeout = %v, want %v", m.config.GracefulTimeout, defaultGracefulTimeout)
	}
	if m.Status() != StatusStopped {
		t.Errorf("Status() = %q, want %q", m.Status(), StatusStopped)
	}
	if m.PID() != 0 {
		t.Errorf("PID() = %d, want 0", m.PID())
	}
	if m.Stdout() != nil {
		t.Error("Stdout() should be nil before Start")
	}
	if m.Done() != nil {
		t.Error("Done() should be nil before Start")
	}
}

func TestManager_StopWhenNotRunning(t *testing.T) {
	m := NewManager(Config{Name: "idle", Binary: "/bin/true"})

	if err := m.Stop(); err != nil {
		t.Errorf("Stop() on idle manager error = %v", err)
	}
}

func TestManager_ReadsStdoutToEOF(t *testing.T) {
	m := NewManager(Config{
		Name:   "printf",
		Binary: "/bin/sh",
		Args:   []string{"-c", "printf 'frame-one\\nframe-two\\n'"},
	})

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer m.Stop() //nolint:errcheck // Test cleanup

	data, err := io.ReadAll(m.Stdout())
	if err != nil {
		t.Fatalf("ReadAll() error: %v", err)
	}
	if string(data) != "frame-one\nframe-two\n" {
		t.Errorf("stdout = %q", data)
	}

	select {
	case <-m.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("process did not exit")
	}
	if m.Status() != StatusExited {
		t.Errorf("Status() = %q, want %q", m.Status(), StatusExited)
	}
}

func TestManager_StartAndStop(t *testing.T) {
	exited := make(chan error, 1)
	m := NewManager(Config{
		Name:            "test-sleep",
		Binary:          "/bin/sleep",
		Args:            []string{"60"},
		GracefulTimeout: 2 * time.Second,
		OnExit:          func(err error) { exited <- err },
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	if !m.IsRunning() {
		t.Error("IsRunning() = false after Start()")
	}
	if m.PID() == 0 {
		t.Error("PID() = 0 after Start()")
	}

	if err := m.Start(ctx); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Start() error = %v, want ErrAlreadyRunning", err)
	}

	if err := m.Stop(); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}

	if m.IsRunning() {
		t.Error("IsRunning() = true after Stop()")
	}
	if m.Status() != StatusStopped {
		t.Errorf("Status() = %q, want %q", m.Status(), StatusStopped)
	}

	select {
	case err := <-exited:
		if err != nil {
			t.Errorf("OnExit error = %v, want nil for requested stop", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("OnExit not called")
	}
}

func TestManager_Restart(t *testing.T) {
	m := NewManager(Config{
		Name:   "echo",
		Binary: "/bin/echo",
		Args:   []string{"hello"},
	})

	for i := 0; i < 2; i++ {
		if err := m.Start(context.Background()); err != nil {
			t.Fatalf("Start() #%d error: %v", i+1, err)
		}
		data, err := io.ReadAll(m.Stdout())
		if err != nil {
			t.Fatalf("ReadAll() error: %v", err)
		}
		if strings.TrimSpace(string(data)) != "hello" {
			t.Errorf("stdout = %q, want hello", data)
		}
		<-m.Done()
	}

	if got := m.Stats().Starts; got != 2 {
		t.Errorf("Stats().Starts = %d, want 2", got)
	}
	if err := m.Stop(); err != nil {
		t.Errorf("Stop() error: %v", err)
	}
}

func TestManager_StartWithInvalidBinary(t *testing.T) {
	m := NewManager(Config{
		Name:   "bad-binary",
		Binary: "/nonexistent/binary",
	})

	err := m.Start(context.Background())
	if err == nil {
		t.Fatal("Start() with invalid binary expected error, got nil")
	}

	if m.Status() != StatusFailed {
		t.Errorf("Status() = %q, want %q", m.Status(), StatusFailed)
	}
	if m.LastError() == nil {
		t.Error("LastError() = nil after failed start")
	}
	if m.Stats().LastError == "" {
		t.Error("Stats().LastError empty after failed start")
	}
}

func TestManager_FailedExit(t *testing.T) {
	m := NewManager(Config{
		Name:   "false",
		Binary: "/bin/sh",
		Args:   []string{"-c", "echo boom >&2; exit 3"},
	})

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	_, _ = io.ReadAll(m.Stdout())
	<-m.Done()

	if m.Status() != StatusFailed {
		t.Errorf("Status() = %q, want %q", m.Status(), StatusFailed)
	}
	if m.LastError() == nil {
		t.Error("LastError() = nil after non-zero exit")
	}
}

func TestOutput(t *testing.T) {
	out, err := Output(context.Background(), 5*time.Second, "/bin/echo", "25/1")
	if err != nil {
		t.Fatalf("Output() error: %v", err)
	}
	if strings.TrimSpace(string(out)) != "25/1" {
		t.Errorf("Output() = %q", out)
	}

	_, err = Output(context.Background(), 5*time.Second, "/bin/sh", "-c", "echo 'no such file' >&2; exit 1")
	if err == nil || !strings.Contains(err.Error(), "no such file") {
		t.Errorf("Output() error = %v, want stderr in message", err)
	}
}

func TestManager_SetLogger(t *testing.T) {
	m := NewManager(Config{
		Name:   "test",
		Binary: "/bin/true",
	})

	// Should not panic
	m.SetLogger(noopLogger{})
}
