package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrAborted is matched by every *AbortError.
var ErrAborted = errors.New("run aborted")

// AbortError describes why a run stopped early.
type AbortError struct {
	RunID  string
	Reason string
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("run %s aborted: %s", e.RunID, e.Reason)
}

func (e *AbortError) Is(target error) bool { return target == ErrAborted }

// TimeoutError reports an attempt that ran past its effective timeout.
type TimeoutError struct {
	Task    string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("task %q timed out after %s", e.Task, e.Timeout)
}

func (e *TimeoutError) Unwrap() error { return context.DeadlineExceeded }

// PanicError reports a runner or condition that panicked.
type PanicError struct {
	Task  string
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("task %q panicked: %v", e.Task, e.Value)
}
