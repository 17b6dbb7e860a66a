package skills

import (
	"fmt"
	"sort"
)

// Colors for the iterative depth-first traversal. Gray marks a skill on the
// current traversal path; meeting a gray neighbor is a back-edge (cycle).
const (
	colorWhite = iota
	colorGray
	colorBlack
)

// frame is one entry of the explicit DFS stack. An explicit stack is used
// instead of recursion so large dependency graphs cannot exhaust the call
// stack.
type frame struct {
	name string
	deps []string
	next int
}

// ExecutionOrder returns a topological ordering over the requested skills
// plus their transitive dependencies: every skill appears strictly after all
// of its dependencies. Independent skills are ordered by registration order.
// A cycle is detected and reported before any registry state is touched.
func (r *Registry) ExecutionOrder(names []string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.executionOrderLocked(names, false)
}

// executionOrderLocked runs the three-color DFS. When requiredOnly is set,
// optional dependency edges are ignored (used by activation, which must only
// ensure non-optional dependencies).
func (r *Registry) executionOrderLocked(names []string, requiredOnly bool) ([]string, error) {
	roots := make([]string, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		if _, ok := r.descriptors[n]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrNotRegistered, n)
		}
		if !seen[n] {
			seen[n] = true
			roots = append(roots, n)
		}
	}
	// Independent skills tie-break on stable registration order.
	sort.SliceStable(roots, func(i, j int) bool {
		return r.regOrder[roots[i]] < r.regOrder[roots[j]]
	})

	colors := make(map[string]int)
	var order []string
	var path []string

	for _, root := range roots {
		if colors[root] != colorWhite {
			continue
		}
		deps, err := r.dependencyNamesLocked(root, requiredOnly)
		if err != nil {
			return nil, err
		}
		colors[root] = colorGray
		stack := []frame{{name: root, deps: deps}}
		path = append(path[:0], root)

		for len(stack) > 0 {
			f := &stack[len(stack)-1]
			if f.next >= len(f.deps) {
				colors[f.name] = colorBlack
				order = append(order, f.name)
				stack = stack[:len(stack)-1]
				path = path[:len(path)-1]
				continue
			}

			dep := f.deps[f.next]
			f.next++

			switch colors[dep] {
			case colorBlack:
				// already placed
			case colorGray:
				return nil, &CyclicDependencyError{Cycle: cycleFromPath(path, dep)}
			default:
				depDeps, err := r.dependencyNamesLocked(dep, requiredOnly)
				if err != nil {
					return nil, err
				}
				colors[dep] = colorGray
				stack = append(stack, frame{name: dep, deps: depDeps})
				path = append(path, dep)
			}
		}
	}

	return order, nil
}

// dependencyNamesLocked returns the dependency names of a skill, sorted by
// registration order for deterministic traversal. Missing optional
// dependencies are skipped; a missing required dependency is an error.
func (r *Registry) dependencyNamesLocked(name string, requiredOnly bool) ([]string, error) {
	desc, ok := r.descriptors[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotRegistered, name)
	}

	deps := make([]string, 0, len(desc.Dependencies))
	for _, d := range desc.Dependencies {
		if _, registered := r.descriptors[d.Name]; !registered {
			if d.Optional {
				continue
			}
			return nil, fmt.Errorf("%w: %s (required by %s)", ErrNotRegistered, d.Name, name)
		}
		if requiredOnly && d.Optional {
			continue
		}
		deps = append(deps, d.Name)
	}
	sort.SliceStable(deps, func(i, j int) bool {
		return r.regOrder[deps[i]] < r.regOrder[deps[j]]
	})
	return deps, nil
}

// cycleFromPath extracts the cycle from the current gray path, closing the
// loop back at the offending dependency.
func cycleFromPath(path []string, dep string) []string {
	start := 0
	for i, n := range path {
		if n == dep {
			start = i
			break
		}
	}
	cycle := make([]string, 0, len(path)-start+1)
	cycle = append(cycle, path[start:]...)
	cycle = append(cycle, dep)
	return cycle
}
