package scheduler

import (
	"context"
	"strings"
	"time"
)

// DefaultTimeout applies to tasks that declare no timeout of their own.
const DefaultTimeout = 30 * time.Second

// DefaultMemoryMB is the nominal memory charged for tasks without resource
// requirements, so unconstrained tasks still count against the budget.
const DefaultMemoryMB = 64

// Condition decides at scheduling time whether a task should run.
// Returning false skips the task; returning an error fails it.
type Condition func(ctx context.Context) (bool, error)

// Resources is the optional hint a task declares about what it consumes
// while running.
type Resources struct {
	CPU      float64 // Cores, used only as an ordering weight
	MemoryMB int     // Charged against the shared memory budget
}

// Task represents a unit of work in the graph.
type Task struct {
	Name             string            // Unique identifier
	Description      string            // Human-readable summary
	Command          string            // Opaque invocation handed to the runner
	Timeout          time.Duration     // Per-attempt timeout (DefaultTimeout when zero)
	RetryCount       int               // Re-attempts after the first failure
	DependsOn        []string          // Names of tasks that must succeed first
	Environment      map[string]string // Passed to the runner
	WorkingDirectory string            // Optional working directory
	Parallel         bool              // May share a wave with siblings
	Critical         bool              // Failure aborts the run immediately
	Condition        Condition         // Optional skip predicate
	Resources        *Resources        // Optional resource hint
}

// EffectiveTimeout scales the task timeout by the configured multiplier.
func (t *Task) EffectiveTimeout(multiplier float64) time.Duration {
	timeout := t.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if multiplier <= 0 {
		multiplier = 1
	}
	return time.Duration(float64(timeout) * multiplier)
}

// MemoryMB returns the memory the task will be charged, falling back to
// DefaultMemoryMB.
func (t *Task) MemoryMB() int {
	if t.Resources == nil || t.Resources.MemoryMB <= 0 {
		return DefaultMemoryMB
	}
	return t.Resources.MemoryMB
}

// CPU returns the declared core count, or zero.
func (t *Task) CPU() float64 {
	if t.Resources == nil {
		return 0
	}
	return t.Resources.CPU
}

// Program returns the first word of the command, which is what command
// discovery and circuit breakers key on.
func (t *Task) Program() string {
	fields := strings.Fields(t.Command)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func cloneTask(task *Task) *Task {
	if task == nil {
		return nil
	}

	cp := *task
	if task.DependsOn != nil {
		cp.DependsOn = append([]string(nil), task.DependsOn...)
	}
	if task.Environment != nil {
		cp.Environment = make(map[string]string, len(task.Environment))
		for k, v := range task.Environment {
			cp.Environment[k] = v
		}
	}
	if task.Resources != nil {
		res := *task.Resources
		cp.Resources = &res
	}
	return &cp
}
