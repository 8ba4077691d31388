package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aristath/pipeline/internal/config"
	"github.com/aristath/pipeline/internal/ctxlog"
	"github.com/aristath/pipeline/internal/events"
	"github.com/aristath/pipeline/internal/runner"
	"github.com/aristath/pipeline/internal/scheduler"
)

// State is the coordinator's lifecycle position.
type State int

const (
	StateIdle State = iota
	StateValidating
	StatePlanning
	StateRunning
	StateDraining
	StateCompleted
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateValidating:
		return "validating"
	case StatePlanning:
		return "planning"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateCompleted:
		return "completed"
	case StateAborted:
		return "aborted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether s is Completed or Aborted.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateAborted
}

// Option customizes a Coordinator.
type Option func(*Coordinator)

// WithRunner sets the command runner. The default is a ShellRunner.
func WithRunner(r runner.Runner) Option {
	return func(c *Coordinator) { c.runner = r }
}

// WithEventBus publishes run, wave and task events to bus.
func WithEventBus(bus *events.EventBus) Option {
	return func(c *Coordinator) { c.bus = bus }
}

// WithCircuitBreakers guards every program with a circuit breaker from reg.
func WithCircuitBreakers(reg *BreakerRegistry) Option {
	return func(c *Coordinator) { c.breakers = reg }
}

// WithScorer replaces the success-rate quality score.
func WithScorer(s Scorer) Option {
	return func(c *Coordinator) { c.scorer = s }
}

// WithForceCancel kills in-flight commands on abort instead of letting them
// finish.
func WithForceCancel() Option {
	return func(c *Coordinator) { c.forceCancel = true }
}

// Coordinator drives one run through validation, planning, wave execution
// and quality checkpoints.
type Coordinator struct {
	cfg         config.Config
	runner      runner.Runner
	bus         *events.EventBus
	breakers    *BreakerRegistry
	scorer      Scorer
	forceCancel bool

	mu    sync.Mutex
	runID string
	state State
	wave  int
}

// NewCoordinator creates a coordinator for cfg.
func NewCoordinator(cfg config.Config, opts ...Option) *Coordinator {
	c := &Coordinator{cfg: cfg, wave: -1}
	for _, opt := range opts {
		opt(c)
	}
	if c.runner == nil {
		c.runner = runner.NewShellRunner(nil)
	}
	return c
}

// State returns the current state and, while running, the wave index.
func (c *Coordinator) State() (State, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state, c.wave
}

func (c *Coordinator) setState(logger *slog.Logger, s State, wave int) {
	c.mu.Lock()
	from, runID := c.state, c.runID
	c.state, c.wave = s, wave
	c.mu.Unlock()

	logger.Debug("state transition", "from", from.String(), "to", s.String(), "wave", wave)
	c.bus.Publish(events.StateChangedEvent{RunID: runID, From: from.String(), To: s.String(), Timestamp: time.Now()})
}

// Execute validates, plans and runs tasks under cfg.
func Execute(ctx context.Context, tasks []scheduler.Task, cfg config.Config, opts ...Option) (*RunResult, error) {
	return NewCoordinator(cfg, opts...).Run(ctx, tasks)
}

// DryRun validates and plans without executing anything.
func DryRun(tasks []scheduler.Task, cfg config.Config) (*scheduler.Plan, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	g, err := buildGraph(tasks)
	if err != nil {
		return nil, err
	}
	return scheduler.NewPlanner(cfg).Plan(g)
}

func buildGraph(tasks []scheduler.Task) (*scheduler.Graph, error) {
	g, err := scheduler.NewGraph(tasks)
	if err != nil {
		return nil, err
	}
	if err := scheduler.Validate(g); err != nil {
		return nil, err
	}
	return g, nil
}

// Run executes one run. Structural problems (invalid graph, impossible
// resources, invalid config) return a nil result and the error. Otherwise a
// RunResult is returned for both completed and aborted runs; the error is
// non-nil only when ctx ended the run.
func (c *Coordinator) Run(ctx context.Context, tasks []scheduler.Task) (*RunResult, error) {
	started := time.Now()

	c.mu.Lock()
	c.runID = uuid.NewString()
	runID := c.runID
	c.mu.Unlock()

	logger := ctxlog.FromContext(ctx).With("run_id", runID)
	ctx = ctxlog.WithLogger(ctx, logger)

	c.setState(logger, StateValidating, -1)
	if err := c.cfg.Validate(); err != nil {
		c.setState(logger, StateAborted, -1)
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	g, err := buildGraph(tasks)
	if err != nil {
		logger.Error("validation failed", "error", err)
		c.setState(logger, StateAborted, -1)
		return nil, err
	}

	c.setState(logger, StatePlanning, -1)
	plan, err := scheduler.NewPlanner(c.cfg).Plan(g)
	if err != nil {
		logger.Error("planning failed", "error", err)
		c.setState(logger, StateAborted, -1)
		return nil, err
	}

	logger.Info("run started", "tasks", g.Len(), "waves", len(plan.Waves))
	c.bus.Publish(events.RunStartedEvent{RunID: runID, Tasks: g.Len(), Waves: len(plan.Waves), Timestamp: started})

	r := &run{
		c:       c,
		logger:  logger,
		graph:   g,
		plan:    plan,
		gate:    NewGate(c.cfg.QualityThreshold, c.scorer),
		budget:  scheduler.NewBudget(c.cfg.MaxParallel, c.cfg.MemoryLimit),
		results: make(map[string]TaskResult, g.Len()),
	}
	r.execute(ctx)

	result := r.collect(runID, started)

	if result.Status == RunCompleted {
		c.setState(logger, StateCompleted, -1)
		logger.Info("run completed", "quality_score", result.QualityScore, "duration", result.Duration)
	} else {
		c.setState(logger, StateAborted, -1)
		logger.Error("run aborted", "reason", result.AbortReason, "quality_score", result.QualityScore)
	}
	c.bus.Publish(events.RunFinishedEvent{
		RunID:        runID,
		Status:       string(result.Status),
		QualityScore: result.QualityScore,
		AbortReason:  result.AbortReason,
		Duration:     result.Duration,
		Timestamp:    time.Now(),
	})

	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

// run holds the mutable state of one execution. Only the coordinator
// goroutine touches it; executor workers hand results over a channel.
type run struct {
	c       *Coordinator
	logger  *slog.Logger
	graph   *scheduler.Graph
	plan    *scheduler.Plan
	gate    *Gate
	budget  *scheduler.Budget
	results map[string]TaskResult

	wavesRun    int
	aborted     bool
	abortReason string
}

func (r *run) execute(ctx context.Context) {
	admit, stopAdmission := context.WithCancel(ctx)
	defer stopAdmission()

	commands := ctx
	if r.c.forceCancel {
		commands = admit
	}

	exec := NewExecutor(ExecutorConfig{
		Runner:   r.c.runner,
		Budget:   r.budget,
		Config:   r.c.cfg,
		Retry:    RetryPolicyFrom(r.c.cfg),
		Breakers: r.c.breakers,
		Bus:      r.c.bus,
	})

	for _, wave := range r.plan.Waves {
		if r.aborted {
			break
		}
		if err := ctx.Err(); err != nil {
			r.abort(fmt.Sprintf("cancelled: %v", err))
			break
		}

		r.c.setState(r.logger, StateRunning, wave.Index)
		r.wavesRun++

		ready := r.admitWave(wave)
		r.c.bus.Publish(events.WaveStartedEvent{Index: wave.Index, Tasks: wave.Tasks, Timestamp: time.Now()})

		for res := range exec.Run(commands, admit, wave.Index, ready) {
			r.record(res)
			if CriticalFailure(res) && !r.aborted {
				r.abort(criticalReason(res))
				stopAdmission()
				r.c.setState(r.logger, StateDraining, wave.Index)
			}
		}

		if r.aborted {
			break
		}
		if err := ctx.Err(); err != nil {
			r.abort(fmt.Sprintf("cancelled: %v", err))
			break
		}

		decision := r.gate.Checkpoint(r.ordered())
		r.c.bus.Publish(events.WaveCompletedEvent{
			Index:        wave.Index,
			QualityScore: decision.Score,
			Continue:     decision.Continue,
			Timestamp:    time.Now(),
		})
		r.logger.Debug("checkpoint", "wave", wave.Index, "score", decision.Score, "continue", decision.Continue)
		if !decision.Continue {
			r.abort(decision.Reason)
			r.c.setState(r.logger, StateDraining, wave.Index)
		}
	}
}

// admitWave returns the wave's tasks whose dependencies succeeded or were
// skipped by their condition. The rest are recorded as skipped.
func (r *run) admitWave(wave scheduler.Wave) []*scheduler.Task {
	ready := make([]*scheduler.Task, 0, len(wave.Tasks))
	for _, name := range wave.Tasks {
		task, _ := r.graph.Get(name)
		if blocker := r.blockedBy(task); blocker != "" {
			r.record(TaskResult{
				Name:       name,
				Status:     StatusSkipped,
				SkipReason: SkipUpstream,
				Wave:       wave.Index,
				Critical:   task.Critical,
				Err:        fmt.Errorf("dependency %q did not succeed", blocker),
			})
			continue
		}
		ready = append(ready, task)
	}
	return ready
}

func (r *run) blockedBy(task *scheduler.Task) string {
	for _, dep := range task.DependsOn {
		res, ok := r.results[dep]
		if !ok {
			return dep
		}
		if res.Status == StatusSuccess || (res.Status == StatusSkipped && res.SkipReason == SkipCondition) {
			continue
		}
		return dep
	}
	return ""
}

func (r *run) record(res TaskResult) {
	r.results[res.Name] = res
	r.c.bus.Publish(events.TaskFinishedEvent{
		Name:      res.Name,
		Status:    string(res.Status),
		Attempts:  res.Attempts,
		Duration:  res.Duration,
		Err:       res.ErrString(),
		Output:    outputTail(res.Output, maxEventOutput),
		Timestamp: time.Now(),
	})
}

// maxEventOutput bounds the output carried on a TaskFinishedEvent.
const maxEventOutput = 4096

func outputTail(out runner.Output, n int) string {
	combined := out.Stdout
	if out.Stderr != "" {
		if combined != "" && !strings.HasSuffix(combined, "\n") {
			combined += "\n"
		}
		combined += out.Stderr
	}
	if len(combined) > n {
		combined = combined[len(combined)-n:]
	}
	return combined
}

func (r *run) abort(reason string) {
	r.aborted = true
	r.abortReason = reason
	r.logger.Warn("aborting run", "reason", reason)
}

// ordered returns recorded results in declaration order.
func (r *run) ordered() []TaskResult {
	out := make([]TaskResult, 0, len(r.results))
	for _, name := range r.graph.Names() {
		if res, ok := r.results[name]; ok {
			out = append(out, res)
		}
	}
	return out
}

// collect fills in tasks that never ran and builds the RunResult.
func (r *run) collect(runID string, started time.Time) *RunResult {
	for _, name := range r.graph.Names() {
		if _, ok := r.results[name]; ok {
			continue
		}
		task, _ := r.graph.Get(name)
		r.record(TaskResult{
			Name:       name,
			Status:     StatusSkipped,
			SkipReason: SkipAborted,
			Wave:       r.plan.WaveOf(name),
			Critical:   task.Critical,
		})
	}

	results := r.ordered()
	status := RunCompleted
	if r.aborted {
		status = RunAborted
	}
	return &RunResult{
		RunID:        runID,
		Status:       status,
		Results:      results,
		QualityScore: r.gate.Score(results),
		AbortReason:  r.abortReason,
		Plan:         r.plan,
		WavesRun:     r.wavesRun,
		PeakParallel: r.budget.PeakSlots(),
		StartedAt:    started,
		Duration:     time.Since(started),
	}
}
