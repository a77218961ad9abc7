package registry

import (
	"sync"

	"github.com/aretw0/espalier/pkg/domain"
	"github.com/aretw0/espalier/pkg/ports"
)

// Registry manages the available tools and their declared dependencies.
// Registration happens during workflow construction (single-threaded); the
// mutex guards later concurrent reads from adapters.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]ports.Tool

	// order preserves registration order. Chain building selects among
	// simultaneously eligible tools in this order so identical registries
	// always produce identical chains.
	order []string
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		tools: make(map[string]ports.Tool),
	}
}

// Register adds a tool under its spec name.
// A tool with the same name is overwritten and keeps its original position
// in the registration order.
func (r *Registry) Register(tool ports.Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := tool.Spec().Name
	if _, exists := r.tools[name]; !exists {
		r.order = append(r.order, name)
	}
	r.tools[name] = tool
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (ports.Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// List returns registered tool names in registration order, optionally
// filtered by category.
func (r *Registry) List(category ...domain.ToolCategory) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.order))
	for _, name := range r.order {
		if len(category) > 0 && category[0] != "" {
			if r.tools[name].Spec().Category != category[0] {
				continue
			}
		}
		names = append(names, name)
	}
	return names
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// DependencyChain returns the transitive dependencies of a tool,
// depth-first with dependencies before dependents, duplicates suppressed.
// The named tool itself is not included.
func (r *Registry) DependencyChain(name string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	visited := make(map[string]bool)
	var chain []string

	var collect func(n string) error
	collect = func(n string) error {
		if visited[n] {
			return nil
		}
		visited[n] = true

		tool, ok := r.tools[n]
		if !ok {
			return &domain.UnknownToolError{Name: n}
		}
		for _, dep := range tool.Spec().Dependencies {
			if _, ok := r.tools[dep]; !ok {
				return &domain.UnknownToolError{Name: dep, RequiredBy: n}
			}
			if err := collect(dep); err != nil {
				return err
			}
			if !contains(chain, dep) {
				chain = append(chain, dep)
			}
		}
		return nil
	}

	if err := collect(name); err != nil {
		return nil, err
	}
	return chain, nil
}

// BuildChain computes a topological ordering covering the requested tools
// plus their transitive dependencies: every tool appears after all of its
// dependencies. On a cyclic graph it returns a domain.CycleError naming the
// unresolved set and no partial chain.
func (r *Registry) BuildChain(names ...string) ([]ports.Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	wanted := make(map[string]bool)
	var mark func(n string) error
	mark = func(n string) error {
		if wanted[n] {
			return nil
		}
		tool, ok := r.tools[n]
		if !ok {
			return &domain.UnknownToolError{Name: n}
		}
		wanted[n] = true
		for _, dep := range tool.Spec().Dependencies {
			if _, ok := r.tools[dep]; !ok {
				return &domain.UnknownToolError{Name: dep, RequiredBy: n}
			}
			if err := mark(dep); err != nil {
				return err
			}
		}
		return nil
	}
	for _, n := range names {
		if err := mark(n); err != nil {
			return nil, err
		}
	}

	ordered := make(map[string]bool, len(wanted))
	var chain []ports.Tool

	for len(ordered) < len(wanted) {
		progressed := false
		// Scan in registration order: among simultaneously eligible tools
		// the selection must be stable.
		for _, name := range r.order {
			if !wanted[name] || ordered[name] {
				continue
			}
			if !r.depsSatisfied(name, ordered) {
				continue
			}
			ordered[name] = true
			chain = append(chain, r.tools[name])
			progressed = true
		}
		if !progressed {
			var unresolved []string
			for _, name := range r.order {
				if wanted[name] && !ordered[name] {
					unresolved = append(unresolved, name)
				}
			}
			return nil, &domain.CycleError{Unresolved: unresolved}
		}
	}

	return chain, nil
}

func (r *Registry) depsSatisfied(name string, ordered map[string]bool) bool {
	for _, dep := range r.tools[name].Spec().Dependencies {
		if !ordered[dep] {
			return false
		}
	}
	return true
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
