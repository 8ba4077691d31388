package scheduler

import (
	"fmt"

	"github.com/gammazero/toposort"
)

// Pass is one structural check over a graph. After lists the passes that
// must run before it.
type Pass struct {
	Name  string
	After []string
	Check func(g *Graph) []error
}

// Validator runs its passes in dependency order and reports everything they
// find in a single *ValidationError.
type Validator struct {
	passes []Pass
}

// NewValidator returns a validator with the built-in reference and cycle
// passes plus any extra passes.
func NewValidator(extra ...Pass) *Validator {
	passes := []Pass{
		{Name: "references", Check: checkReferences},
		{Name: "cycles", After: []string{"references"}, Check: checkCycles},
	}
	return &Validator{passes: append(passes, extra...)}
}

// Validate checks the graph and returns nil or a *ValidationError.
func Validate(g *Graph) error {
	return NewValidator().Validate(g)
}

// Validate runs every pass. All passes run even after one reports problems so
// a single call yields the full list.
func (v *Validator) Validate(g *Graph) error {
	passes, err := v.orderedPasses()
	if err != nil {
		return err
	}

	verr := &ValidationError{}
	for _, pass := range passes {
		for _, problem := range pass.Check(g) {
			verr.Add(problem)
		}
	}
	if verr.HasErrors() {
		return verr
	}
	return nil
}

// orderedPasses sorts passes so every pass runs after the ones it names.
func (v *Validator) orderedPasses() ([]Pass, error) {
	byName := make(map[string]Pass, len(v.passes))
	for _, pass := range v.passes {
		if _, exists := byName[pass.Name]; exists {
			return nil, fmt.Errorf("validation pass %q registered twice", pass.Name)
		}
		byName[pass.Name] = pass
	}

	var edges []toposort.Edge
	for _, pass := range v.passes {
		if len(pass.After) == 0 {
			edges = append(edges, toposort.Edge{nil, pass.Name})
			continue
		}
		for _, before := range pass.After {
			if _, ok := byName[before]; !ok {
				return nil, fmt.Errorf("validation pass %q runs after unknown pass %q", pass.Name, before)
			}
			edges = append(edges, toposort.Edge{before, pass.Name})
		}
	}

	sorted, err := toposort.Toposort(edges)
	if err != nil {
		return nil, fmt.Errorf("ordering validation passes: %w", err)
	}

	ordered := make([]Pass, 0, len(v.passes))
	for _, id := range sorted {
		if id != nil {
			ordered = append(ordered, byName[id.(string)])
		}
	}
	return ordered, nil
}

// checkReferences reports every depends_on entry that names an unknown task.
func checkReferences(g *Graph) []error {
	var problems []error
	for _, name := range g.names {
		for _, dep := range g.tasks[name].DependsOn {
			if !g.Has(dep) {
				problems = append(problems, &MissingDependencyError{Task: name, Missing: dep})
			}
		}
	}
	return problems
}

func checkCycles(g *Graph) []error {
	if path := findCycle(g); path != nil {
		return []error{&CycleError{Path: path}}
	}
	return nil
}

// findCycle walks depends_on edges with an explicit stack. A node seen again
// while still on the stack closes a cycle; the returned path runs from that
// node back to itself. Unknown references are ignored here.
func findCycle(g *Graph) []string {
	const (
		unvisited = iota
		visiting
		done
	)

	type frame struct {
		name string
		next int
	}

	state := make(map[string]int, len(g.names))
	for _, root := range g.names {
		if state[root] != unvisited {
			continue
		}

		state[root] = visiting
		stack := []frame{{name: root}}
		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			deps := g.tasks[top.name].DependsOn
			if top.next >= len(deps) {
				state[top.name] = done
				stack = stack[:len(stack)-1]
				continue
			}

			dep := deps[top.next]
			top.next++
			if !g.Has(dep) {
				continue
			}

			switch state[dep] {
			case visiting:
				var path []string
				for i := range stack {
					if stack[i].name == dep {
						for _, f := range stack[i:] {
							path = append(path, f.name)
						}
						break
					}
				}
				return append(path, dep)
			case unvisited:
				state[dep] = visiting
				stack = append(stack, frame{name: dep})
			}
		}
	}
	return nil
}
