package scheduler

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aristath/pipeline/internal/config"
)

// Wave is a batch of mutually independent tasks whose dependencies all sit
// in earlier waves. An exclusive wave holds a single non-parallel task.
type Wave struct {
	Index     int
	Tasks     []string
	Exclusive bool
}

// Plan is the fixed execution order for one run.
type Plan struct {
	Waves []Wave
	// CriticalPath is the longest chain of dependent tasks, weighted by
	// their effective timeouts.
	CriticalPath         []string
	CriticalPathEstimate time.Duration
}

// TaskCount returns the number of tasks across all waves.
func (p *Plan) TaskCount() int {
	n := 0
	for _, w := range p.Waves {
		n += len(w.Tasks)
	}
	return n
}

// WaveOf returns the index of the wave holding name, or -1.
func (p *Plan) WaveOf(name string) int {
	for _, w := range p.Waves {
		for _, t := range w.Tasks {
			if t == name {
				return w.Index
			}
		}
	}
	return -1
}

// Planner groups a validated graph into waves with Kahn's algorithm.
type Planner struct {
	cfg config.Config
}

// NewPlanner creates a planner for the given configuration.
func NewPlanner(cfg config.Config) *Planner {
	return &Planner{cfg: cfg}
}

// Plan computes waves for g. The graph must already be validated; the
// planner only reports tasks whose memory requirement can never be met.
func (p *Planner) Plan(g *Graph) (*Plan, error) {
	if err := p.checkResources(g); err != nil {
		return nil, err
	}

	remaining := p.remainingEstimates(g)

	inDegree := make(map[string]int, g.Len())
	var frontier []string
	for _, name := range g.names {
		inDegree[name] = len(g.tasks[name].DependsOn)
		if inDegree[name] == 0 {
			frontier = append(frontier, name)
		}
	}

	plan := &Plan{}
	planned := 0
	for len(frontier) > 0 {
		p.rank(g, frontier, remaining)
		for _, w := range split(g, frontier) {
			w.Index = len(plan.Waves)
			plan.Waves = append(plan.Waves, w)
		}
		planned += len(frontier)

		var next []string
		for _, name := range frontier {
			for _, dependent := range g.dependents[name] {
				inDegree[dependent]--
				if inDegree[dependent] == 0 {
					next = append(next, dependent)
				}
			}
		}
		frontier = next
	}

	if planned != g.Len() {
		return nil, fmt.Errorf("%w: %d tasks could not be planned (cycle?)", ErrInvalidGraph, g.Len()-planned)
	}

	plan.CriticalPath, plan.CriticalPathEstimate = criticalPath(g, remaining)
	return plan, nil
}

func (p *Planner) checkResources(g *Graph) error {
	var errs []error
	for _, name := range g.names {
		task := g.tasks[name]
		if task.Resources != nil && task.Resources.MemoryMB > p.cfg.MemoryLimit {
			errs = append(errs, &ResourceError{Task: name, RequestedMB: task.Resources.MemoryMB, LimitMB: p.cfg.MemoryLimit})
		}
	}
	switch len(errs) {
	case 0:
		return nil
	case 1:
		return errs[0]
	default:
		return errors.Join(errs...)
	}
}

// rank orders a frontier in place. Without optimizations declaration order
// wins; with them the heaviest task starts first, then the one heading the
// longest remaining chain.
func (p *Planner) rank(g *Graph, frontier []string, remaining map[string]time.Duration) {
	if !p.cfg.EnableOptimizations {
		sort.SliceStable(frontier, func(i, j int) bool {
			return g.index[frontier[i]] < g.index[frontier[j]]
		})
		return
	}

	sort.SliceStable(frontier, func(i, j int) bool {
		a, b := g.tasks[frontier[i]], g.tasks[frontier[j]]
		if a.MemoryMB() != b.MemoryMB() {
			return a.MemoryMB() > b.MemoryMB()
		}
		if a.CPU() != b.CPU() {
			return a.CPU() > b.CPU()
		}
		if remaining[a.Name] != remaining[b.Name] {
			return remaining[a.Name] > remaining[b.Name]
		}
		return g.index[a.Name] < g.index[b.Name]
	})
}

// split turns one ranked frontier into waves: parallel tasks share a wave
// placed at the rank of its first member, non-parallel tasks get one each.
func split(g *Graph, frontier []string) []Wave {
	var waves []Wave
	shared := -1
	for _, name := range frontier {
		if !g.tasks[name].Parallel {
			waves = append(waves, Wave{Tasks: []string{name}, Exclusive: true})
			continue
		}
		if shared < 0 {
			shared = len(waves)
			waves = append(waves, Wave{})
		}
		waves[shared].Tasks = append(waves[shared].Tasks, name)
	}
	return waves
}

// remainingEstimates returns, per task, the estimated time from its start to
// the end of the longest chain of dependents. Estimates use effective
// timeouts since real durations are unknown before the run.
func (p *Planner) remainingEstimates(g *Graph) map[string]time.Duration {
	memo := make(map[string]time.Duration, g.Len())
	var visit func(name string) time.Duration
	visit = func(name string) time.Duration {
		if d, ok := memo[name]; ok {
			return d
		}
		memo[name] = 0 // guards against cycles in unvalidated graphs
		var longest time.Duration
		for _, dependent := range g.dependents[name] {
			if d := visit(dependent); d > longest {
				longest = d
			}
		}
		memo[name] = g.tasks[name].EffectiveTimeout(p.cfg.TimeoutMultiplier) + longest
		return memo[name]
	}
	for _, name := range g.names {
		visit(name)
	}
	return memo
}

func criticalPath(g *Graph, remaining map[string]time.Duration) ([]string, time.Duration) {
	start := ""
	for _, name := range g.names {
		if len(g.tasks[name].DependsOn) > 0 {
			continue
		}
		if start == "" || remaining[name] > remaining[start] {
			start = name
		}
	}
	if start == "" {
		return nil, 0
	}

	path := []string{start}
	for current := start; ; {
		next := ""
		for _, dependent := range g.dependents[current] {
			if next == "" || remaining[dependent] > remaining[next] {
				next = dependent
			}
		}
		if next == "" {
			break
		}
		path = append(path, next)
		current = next
	}
	return path, remaining[start]
}
