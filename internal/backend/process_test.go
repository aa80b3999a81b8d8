package backend

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestExecuteCommandCapturesOutput(t *testing.T) {
	ctx := context.Background()
	cmd := newCommand(ctx, "sh", "-c", "echo out; echo err >&2")

	stdout, stderr, err := executeCommand(ctx, cmd, nil)
	if err != nil {
		t.Fatalf("executeCommand() error: %v", err)
	}
	if strings.TrimSpace(string(stdout)) != "out" {
		t.Errorf("stdout = %q, want out", stdout)
	}
	if strings.TrimSpace(string(stderr)) != "err" {
		t.Errorf("stderr = %q, want err", stderr)
	}
}

func TestExecuteCommandFailureIncludesStderr(t *testing.T) {
	ctx := context.Background()
	cmd := newCommand(ctx, "sh", "-c", "echo boom >&2; exit 3")

	_, _, err := executeCommand(ctx, cmd, nil)
	if err == nil {
		t.Fatal("executeCommand() succeeded, want error")
	}
	if !strings.Contains(err.Error(), "boom") {
		t.Errorf("error %v does not surface stderr", err)
	}
}

func TestExecuteCommandLargeOutputNoDeadlock(t *testing.T) {
	// Output larger than the pipe buffer; concurrent draining must prevent
	// the subprocess from blocking.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cmd := newCommand(ctx, "sh", "-c", "yes x | head -c 1048576")
	stdout, _, err := executeCommand(ctx, cmd, nil)
	if err != nil {
		t.Fatalf("executeCommand() error: %v", err)
	}
	if len(stdout) != 1048576 {
		t.Errorf("stdout length = %d, want 1048576", len(stdout))
	}
}

func TestProcessManagerTracking(t *testing.T) {
	pm := NewProcessManager()
	if pm.Count() != 0 {
		t.Fatalf("new manager Count() = %d, want 0", pm.Count())
	}

	ctx := context.Background()
	cmd := newCommand(ctx, "sleep", "5")
	if err := cmd.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	pm.Track(cmd)
	if pm.Count() != 1 {
		t.Errorf("Count() after Track = %d, want 1", pm.Count())
	}

	if err := pm.KillAll(); err != nil {
		t.Errorf("KillAll() error: %v", err)
	}
	cmd.Wait() // reap

	pm.Untrack(cmd)
	if pm.Count() != 0 {
		t.Errorf("Count() after Untrack = %d, want 0", pm.Count())
	}
}
