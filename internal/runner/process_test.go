package runner

import (
	"context"
	"errors"
	"os/exec"
	"syscall"
	"testing"
	"time"
)

func TestProcessManager_TrackAndKillAll(t *testing.T) {
	pm := NewProcessManager()

	cmd := newCommand(context.Background(), "/bin/sh", "-c", "sleep 300")
	if err := cmd.Start(); err != nil {
		t.Fatalf("Failed to start process: %v", err)
	}

	pm.Track(cmd)
	if pm.Count() != 1 {
		t.Errorf("Expected 1 tracked process, got %d", pm.Count())
	}

	if err := pm.KillAll(); err != nil {
		t.Fatalf("KillAll() error = %v", err)
	}

	err := cmd.Wait()
	if err == nil {
		t.Fatal("Expected process to be killed (non-nil error), got nil")
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && !status.Signaled() {
			t.Errorf("Expected process to be signaled, got exit status: %v", status)
		}
	}

	pm.Untrack(cmd)
	if pm.Count() != 0 {
		t.Errorf("Expected 0 tracked processes after Untrack, got %d", pm.Count())
	}
}

func TestProcessManager_TracksWhileRunning(t *testing.T) {
	pm := NewProcessManager()
	r := NewShellRunner(pm)

	done := make(chan error, 1)
	go func() {
		_, err := r.Run(context.Background(), Invocation{Command: "sleep 30"})
		done <- err
	}()

	deadline := time.Now().Add(2 * time.Second)
	for pm.Count() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if pm.Count() != 1 {
		t.Fatalf("Expected running command to be tracked, got %d", pm.Count())
	}

	pm.KillAll()

	select {
	case err := <-done:
		if err == nil {
			t.Error("Expected killed command to report an error")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after KillAll")
	}
	if pm.Count() != 0 {
		t.Errorf("Expected 0 tracked processes, got %d", pm.Count())
	}
}

func TestKillProcessGroup_NotStarted(t *testing.T) {
	cmd := newCommand(context.Background(), "/bin/sh", "-c", "true")
	if err := killProcessGroup(cmd); err == nil {
		t.Error("Expected error for unstarted process")
	}
}
