package scheduler

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidGraph is matched by every structural error reported before a
// run starts.
var ErrInvalidGraph = errors.New("invalid task graph")

// CycleError reports a circular dependency. Path starts and ends with the
// same task name.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("circular dependency: %s", strings.Join(e.Path, " -> "))
}

func (e *CycleError) Is(target error) bool { return target == ErrInvalidGraph }

// MissingDependencyError reports a depends_on entry naming an unknown task.
type MissingDependencyError struct {
	Task    string
	Missing string
}

func (e *MissingDependencyError) Error() string {
	return fmt.Sprintf("task %q depends on non-existent task %q", e.Task, e.Missing)
}

func (e *MissingDependencyError) Is(target error) bool { return target == ErrInvalidGraph }

// DuplicateTaskError reports two tasks declared under one name.
type DuplicateTaskError struct {
	Name string
}

func (e *DuplicateTaskError) Error() string {
	return fmt.Sprintf("task with name %q already exists", e.Name)
}

func (e *DuplicateTaskError) Is(target error) bool { return target == ErrInvalidGraph }

// ValidationError collects every structural problem found in one pass.
type ValidationError struct {
	Errors []error
}

// Add appends a problem.
func (e *ValidationError) Add(err error) {
	e.Errors = append(e.Errors, err)
}

// HasErrors reports whether anything was collected.
func (e *ValidationError) HasErrors() bool {
	return len(e.Errors) > 0
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Errors))
	for _, err := range e.Errors {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("%s: %s", ErrInvalidGraph, strings.Join(msgs, "; "))
}

func (e *ValidationError) Unwrap() []error { return e.Errors }

func (e *ValidationError) Is(target error) bool { return target == ErrInvalidGraph }

// Missing returns every missing-dependency problem.
func (e *ValidationError) Missing() []*MissingDependencyError {
	var out []*MissingDependencyError
	for _, err := range e.Errors {
		var missing *MissingDependencyError
		if errors.As(err, &missing) {
			out = append(out, missing)
		}
	}
	return out
}

// Cycle returns the reported cycle, if any.
func (e *ValidationError) Cycle() *CycleError {
	for _, err := range e.Errors {
		var cycle *CycleError
		if errors.As(err, &cycle) {
			return cycle
		}
	}
	return nil
}

// ResourceError reports a task whose requirement can never fit the budget.
type ResourceError struct {
	Task        string
	RequestedMB int
	LimitMB     int
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("task %q requests %d MB but the memory limit is %d MB", e.Task, e.RequestedMB, e.LimitMB)
}
