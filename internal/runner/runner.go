// Package runner invokes task commands. The scheduler treats commands as
// opaque strings; a Runner decides what they mean.
package runner

import (
	"context"
	"errors"
	"fmt"
)

// Invocation is one attempt at running a task's command.
type Invocation struct {
	Task    string            // Task name, for logging and tracking
	Command string            // Opaque command string
	Env     map[string]string // Task environment, layered over the process environment
	Dir     string            // Working directory ("" means inherit)
	Attempt int               // 1-based attempt number
}

// Output is what a finished command produced.
type Output struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner executes one invocation. A non-nil error marks the attempt as
// failed; the Output is still reported.
type Runner interface {
	Run(ctx context.Context, inv Invocation) (Output, error)
}

// Func adapts a plain function to the Runner interface.
type Func func(ctx context.Context, inv Invocation) (Output, error)

// Run calls f.
func (f Func) Run(ctx context.Context, inv Invocation) (Output, error) {
	return f(ctx, inv)
}

// ErrEmptyCommand is returned for invocations with nothing to run.
var ErrEmptyCommand = errors.New("empty command")

// ExitError reports a command that ran and exited non-zero.
type ExitError struct {
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("exit status %d (stderr: %s)", e.Code, e.Stderr)
	}
	return fmt.Sprintf("exit status %d", e.Code)
}
