package scheduler

import (
	"fmt"
	"strings"

	"github.com/gammazero/toposort"
)

// Graph is an immutable set of tasks and their depends_on edges. Lookups
// return copies so callers cannot mutate the graph behind the scheduler.
type Graph struct {
	tasks      map[string]*Task    // All tasks indexed by name
	names      []string            // Declaration order
	index      map[string]int      // Name -> declaration index
	dependents map[string][]string // Maps name -> tasks that depend on it
}

// NewGraph builds a graph from tasks in declaration order. Duplicate or empty
// names are reported together as a *ValidationError. Dangling references and
// cycles are left for the Validator.
func NewGraph(tasks []Task) (*Graph, error) {
	g := &Graph{
		tasks:      make(map[string]*Task, len(tasks)),
		names:      make([]string, 0, len(tasks)),
		index:      make(map[string]int, len(tasks)),
		dependents: make(map[string][]string),
	}

	verr := &ValidationError{}
	for i := range tasks {
		task := cloneTask(&tasks[i])
		if strings.TrimSpace(task.Name) == "" {
			verr.Add(fmt.Errorf("%w: task at position %d has no name", ErrInvalidGraph, i))
			continue
		}
		if _, exists := g.tasks[task.Name]; exists {
			verr.Add(&DuplicateTaskError{Name: task.Name})
			continue
		}

		g.index[task.Name] = len(g.names)
		g.names = append(g.names, task.Name)
		g.tasks[task.Name] = task

		// Build dependents map for efficient downstream lookup
		for _, dep := range task.DependsOn {
			g.dependents[dep] = append(g.dependents[dep], task.Name)
		}
	}

	if verr.HasErrors() {
		return nil, verr
	}
	return g, nil
}

// Len returns the number of tasks.
func (g *Graph) Len() int { return len(g.names) }

// Names returns task names in declaration order.
func (g *Graph) Names() []string {
	return append([]string(nil), g.names...)
}

// Get returns a copy of the named task.
func (g *Graph) Get(name string) (*Task, bool) {
	task, exists := g.tasks[name]
	if !exists {
		return nil, false
	}
	return cloneTask(task), true
}

// Has reports whether a task with that name exists.
func (g *Graph) Has(name string) bool {
	_, exists := g.tasks[name]
	return exists
}

// Tasks returns copies of all tasks in declaration order.
func (g *Graph) Tasks() []*Task {
	tasks := make([]*Task, 0, len(g.names))
	for _, name := range g.names {
		tasks = append(tasks, cloneTask(g.tasks[name]))
	}
	return tasks
}

// Dependents returns the names of tasks that directly depend on name.
func (g *Graph) Dependents(name string) []string {
	return append([]string(nil), g.dependents[name]...)
}

// Position returns the declaration index of a task, or -1.
func (g *Graph) Position(name string) int {
	if i, ok := g.index[name]; ok {
		return i
	}
	return -1
}

// Order returns a topological order of task names using gammazero/toposort.
// It fails on cycles and on references to unknown tasks; callers normally run
// the Validator first for a detailed report.
func (g *Graph) Order() ([]string, error) {
	for _, name := range g.names {
		for _, dep := range g.tasks[name].DependsOn {
			if !g.Has(dep) {
				return nil, &MissingDependencyError{Task: name, Missing: dep}
			}
		}
	}

	var edges []toposort.Edge
	for _, name := range g.names {
		task := g.tasks[name]
		if len(task.DependsOn) == 0 {
			// Task with no dependencies - add edge from nil to ensure it's included
			edges = append(edges, toposort.Edge{nil, name})
			continue
		}
		for _, dep := range task.DependsOn {
			// Edge (dep, name) means dep must come before name
			edges = append(edges, toposort.Edge{dep, name})
		}
	}

	sorted, err := toposort.Toposort(edges)
	if err != nil {
		return nil, fmt.Errorf("%w: graph contains cycle: %v", ErrInvalidGraph, err)
	}

	order := make([]string, 0, len(sorted))
	for _, id := range sorted {
		if id != nil {
			order = append(order, id.(string))
		}
	}

	if len(order) != len(g.names) {
		return nil, fmt.Errorf("%w: topological sort lost %d tasks", ErrInvalidGraph, len(g.names)-len(order))
	}
	return order, nil
}
