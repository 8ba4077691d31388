package orchestrator

import (
	"time"

	"github.com/aristath/pipeline/internal/runner"
	"github.com/aristath/pipeline/internal/scheduler"
)

// Status is the terminal outcome of one task.
type Status string

const (
	StatusSuccess  Status = "success"
	StatusFailed   Status = "failed"
	StatusSkipped  Status = "skipped"
	StatusTimedOut Status = "timed_out"
)

// SkipReason explains a skipped result.
type SkipReason string

const (
	SkipCondition SkipReason = "condition" // Condition evaluated false
	SkipUpstream  SkipReason = "upstream"  // A dependency did not succeed
	SkipAborted   SkipReason = "aborted"   // The run aborted before dispatch
)

// TaskResult is the outcome of one task in a run.
type TaskResult struct {
	Name       string
	Status     Status
	SkipReason SkipReason // Set only when Status is StatusSkipped
	Attempts   int
	Wave       int // Planned wave index
	Critical   bool
	Output     runner.Output // From the last attempt
	Err        error         // From the last attempt
	StartedAt  time.Time
	Duration   time.Duration
}

// Failed reports whether the task ran and did not succeed.
func (r TaskResult) Failed() bool {
	return r.Status == StatusFailed || r.Status == StatusTimedOut
}

// ErrString returns the error text or "".
func (r TaskResult) ErrString() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// RunStatus is the terminal outcome of a run.
type RunStatus string

const (
	RunCompleted RunStatus = "completed"
	RunAborted   RunStatus = "aborted"
)

// RunResult aggregates every task outcome of one run. Results are in
// declaration order and include every task, even on abort.
type RunResult struct {
	RunID        string
	Status       RunStatus
	Results      []TaskResult
	QualityScore float64
	AbortReason  string
	Plan         *scheduler.Plan
	WavesRun     int
	PeakParallel int // Highest number of tasks holding budget at once
	StartedAt    time.Time
	Duration     time.Duration
}

// Result returns the named task's result.
func (r *RunResult) Result(name string) (TaskResult, bool) {
	for _, res := range r.Results {
		if res.Name == name {
			return res, true
		}
	}
	return TaskResult{}, false
}

// Counts tallies results by status.
func (r *RunResult) Counts() map[Status]int {
	counts := make(map[Status]int, 4)
	for _, res := range r.Results {
		counts[res.Status]++
	}
	return counts
}

// Err returns nil for a completed run and an *AbortError otherwise.
func (r *RunResult) Err() error {
	if r.Status == RunCompleted {
		return nil
	}
	return &AbortError{RunID: r.RunID, Reason: r.AbortReason}
}
