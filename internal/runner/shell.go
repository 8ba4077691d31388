package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
)

// DefaultShell interprets task commands.
const DefaultShell = "/bin/sh"

// ShellRunner runs commands through a POSIX shell in their own process group.
type ShellRunner struct {
	Shell string          // Defaults to DefaultShell
	PM    *ProcessManager // Optional; tracks live processes for shutdown
}

// NewShellRunner creates a ShellRunner that registers processes with pm.
func NewShellRunner(pm *ProcessManager) *ShellRunner {
	return &ShellRunner{Shell: DefaultShell, PM: pm}
}

// Run executes inv.Command with "sh -c". Cancelling ctx kills the process
// group. A non-zero exit returns an *ExitError alongside the output.
func (r *ShellRunner) Run(ctx context.Context, inv Invocation) (Output, error) {
	if strings.TrimSpace(inv.Command) == "" {
		return Output{ExitCode: -1}, ErrEmptyCommand
	}

	shell := r.Shell
	if shell == "" {
		shell = DefaultShell
	}

	cmd := newCommand(ctx, shell, "-c", inv.Command)
	cmd.Dir = inv.Dir
	cmd.Env = mergeEnv(os.Environ(), inv.Env)

	stdout, stderr, err := executeCommand(cmd, r.PM)
	out := Output{Stdout: string(stdout), Stderr: string(stderr)}
	if err == nil {
		return out, nil
	}

	var exitErr *exec.ExitError
	switch {
	case ctx.Err() != nil:
		out.ExitCode = -1
		return out, fmt.Errorf("command interrupted: %w", ctx.Err())
	case errors.As(err, &exitErr):
		out.ExitCode = exitErr.ExitCode()
		return out, &ExitError{Code: out.ExitCode, Stderr: strings.TrimSpace(out.Stderr)}
	default:
		out.ExitCode = -1
		return out, err
	}
}

// mergeEnv layers task variables over base. Later keys win, and task keys
// are appended in sorted order so the environment is deterministic.
func mergeEnv(base []string, env map[string]string) []string {
	if len(env) == 0 {
		return base
	}

	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	merged := make([]string, 0, len(base)+len(keys))
	for _, kv := range base {
		name, _, _ := strings.Cut(kv, "=")
		if _, overridden := env[name]; !overridden {
			merged = append(merged, kv)
		}
	}
	for _, k := range keys {
		merged = append(merged, k+"="+env[k])
	}
	return merged
}
