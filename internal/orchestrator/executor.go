package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sourcegraph/conc/panics"
	"golang.org/x/sync/errgroup"

	"github.com/aristath/pipeline/internal/config"
	"github.com/aristath/pipeline/internal/ctxlog"
	"github.com/aristath/pipeline/internal/events"
	"github.com/aristath/pipeline/internal/runner"
	"github.com/aristath/pipeline/internal/scheduler"
)

// ExecutorConfig configures an Executor.
type ExecutorConfig struct {
	Runner   runner.Runner     // Required
	Budget   *scheduler.Budget // Required
	Config   config.Config
	Retry    RetryPolicy
	Breakers *BreakerRegistry // Optional; nil disables circuit breaking
	Bus      *events.EventBus // Optional
}

// Executor runs the tasks of one wave concurrently. Every task is admitted
// through the budget and reports exactly one TaskResult.
type Executor struct {
	config ExecutorConfig
}

// NewExecutor creates an executor.
func NewExecutor(cfg ExecutorConfig) *Executor {
	return &Executor{config: cfg}
}

// Run starts every task and returns a channel that yields one result per
// task and is closed once all of them have finished.
//
// ctx governs running commands and retries. admit governs admission only:
// once it is cancelled, tasks that have not yet acquired budget are reported
// as skipped instead of started, while admitted tasks run on.
func (e *Executor) Run(ctx, admit context.Context, wave int, tasks []*scheduler.Task) <-chan TaskResult {
	out := make(chan TaskResult, len(tasks))

	go func() {
		defer close(out)

		g := new(errgroup.Group)
		g.SetLimit(e.config.Config.MaxParallel)
		for _, task := range tasks {
			task := task
			g.Go(func() error {
				out <- e.runTask(ctx, admit, wave, task)
				return nil // Task failures are reported as results, not errors
			})
		}
		_ = g.Wait()
	}()

	return out
}

func (e *Executor) runTask(ctx, admit context.Context, wave int, task *scheduler.Task) TaskResult {
	logger := ctxlog.FromContext(ctx).With("task", task.Name, "wave", wave)
	result := TaskResult{Name: task.Name, Wave: wave, Critical: task.Critical}

	if admit.Err() != nil {
		result.Status, result.SkipReason = StatusSkipped, SkipAborted
		return result
	}

	// Conditions are decided before admission so skipped tasks never hold budget.
	if task.Condition != nil {
		run, err := evalCondition(admit, task)
		if err != nil {
			logger.Warn("condition failed", "error", err)
			result.Status, result.Err = StatusFailed, err
			return result
		}
		if !run {
			logger.Debug("condition false, skipping")
			result.Status, result.SkipReason = StatusSkipped, SkipCondition
			return result
		}
	}

	token, err := e.config.Budget.Acquire(admit, task.Resources)
	if err != nil {
		var rerr *scheduler.ResourceError
		if errors.As(err, &rerr) {
			rerr.Task = task.Name
			result.Status, result.Err = StatusFailed, rerr
			return result
		}
		result.Status, result.SkipReason = StatusSkipped, SkipAborted
		return result
	}
	defer e.config.Budget.Release(token)

	result.StartedAt = time.Now()
	e.config.Bus.Publish(events.TaskStartedEvent{Name: task.Name, Wave: wave, Timestamp: result.StartedAt})
	logger.Debug("task started", "memory_mb", token.MemoryMB())

	e.retry(ctx, logger, task, &result)
	result.Duration = time.Since(result.StartedAt)

	switch result.Status {
	case StatusSuccess:
		logger.Debug("task succeeded", "attempts", result.Attempts, "duration", result.Duration)
	default:
		logger.Warn("task did not succeed", "status", result.Status, "attempts", result.Attempts, "error", result.Err)
	}
	return result
}

// retry runs attempts until one succeeds or the retry budget is spent. The
// result reflects the last attempt only.
func (e *Executor) retry(ctx context.Context, logger *slog.Logger, task *scheduler.Task, result *TaskResult) {
	operation := func() error {
		result.Attempts++
		a := e.attempt(ctx, task, result.Attempts)
		result.Output, result.Err = a.out, a.err

		switch {
		case a.err == nil:
			result.Status = StatusSuccess
			return nil
		case a.timedOut:
			result.Status = StatusTimedOut
		default:
			result.Status = StatusFailed
		}

		if ctx.Err() != nil || breakerOpen(a.err) {
			return backoff.Permanent(a.err)
		}
		return a.err
	}

	notify := func(err error, delay time.Duration) {
		logger.Info("retrying task", "attempt", result.Attempts, "delay", delay, "error", err)
		e.config.Bus.Publish(events.TaskRetryingEvent{
			Name:      task.Name,
			Attempt:   result.Attempts,
			Err:       err.Error(),
			Delay:     delay,
			Timestamp: time.Now(),
		})
	}

	// The outcome is already recorded in result; the returned error only
	// repeats it (or reports ctx expiring during a backoff wait).
	_ = backoff.RetryNotify(operation, e.config.Retry.backOff(ctx, task.RetryCount), notify)
}

type attemptResult struct {
	out      runner.Output
	err      error
	timedOut bool
}

// attempt runs the command once under the task's effective timeout.
func (e *Executor) attempt(ctx context.Context, task *scheduler.Task, n int) attemptResult {
	timeout := task.EffectiveTimeout(e.config.Config.TimeoutMultiplier)
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	inv := runner.Invocation{
		Task:    task.Name,
		Command: task.Command,
		Env:     task.Environment,
		Dir:     task.WorkingDirectory,
		Attempt: n,
	}

	call := func() (runner.Output, error) { return e.invoke(actx, timeout, inv) }
	if e.config.Breakers != nil && task.Program() != "" {
		cb := e.config.Breakers.Get(task.Program())
		res, err := cb.Execute(func() (interface{}, error) {
			return call()
		})
		out, _ := res.(runner.Output)
		return attemptResult{out: out, err: err, timedOut: isTimeout(ctx, actx, err)}
	}

	out, err := call()
	return attemptResult{out: out, err: err, timedOut: isTimeout(ctx, actx, err)}
}

// invoke calls the runner in its own goroutine so the timeout holds even
// for runners that ignore ctx. A panicking runner becomes a *PanicError.
func (e *Executor) invoke(ctx context.Context, timeout time.Duration, inv runner.Invocation) (runner.Output, error) {
	type outcome struct {
		out runner.Output
		err error
	}
	done := make(chan outcome, 1)

	go func() {
		var o outcome
		var catcher panics.Catcher
		catcher.Try(func() {
			o.out, o.err = e.config.Runner.Run(ctx, inv)
		})
		if recovered := catcher.Recovered(); recovered != nil {
			o.out, o.err = runner.Output{ExitCode: -1}, &PanicError{Task: inv.Task, Value: recovered.Value}
		}
		done <- o
	}()

	select {
	case o := <-done:
		return o.out, o.err
	case <-ctx.Done():
		// Prefer a result that raced the deadline.
		select {
		case o := <-done:
			return o.out, o.err
		default:
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return runner.Output{ExitCode: -1}, &TimeoutError{Task: inv.Task, Timeout: timeout}
		}
		return runner.Output{ExitCode: -1}, fmt.Errorf("task %q interrupted: %w", inv.Task, ctx.Err())
	}
}

// isTimeout reports a failed attempt whose own deadline expired while the
// run itself was still live.
func isTimeout(parent, attempt context.Context, err error) bool {
	if err == nil || parent.Err() != nil {
		return false
	}
	var terr *TimeoutError
	return errors.As(err, &terr) || errors.Is(attempt.Err(), context.DeadlineExceeded)
}

// evalCondition runs the task condition, converting panics to errors.
func evalCondition(ctx context.Context, task *scheduler.Task) (run bool, err error) {
	var catcher panics.Catcher
	catcher.Try(func() {
		run, err = task.Condition(ctx)
	})
	if recovered := catcher.Recovered(); recovered != nil {
		return false, &PanicError{Task: task.Name, Value: recovered.Value}
	}
	if err != nil {
		return false, fmt.Errorf("evaluating condition of %q: %w", task.Name, err)
	}
	return run, nil
}
