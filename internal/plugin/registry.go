package plugin

import (
	"fmt"
	"sort"
	"sync"

	"github.com/pkg/errors"
)

// DefaultMaxFailures is the number of non-critical failures a plugin may
// accumulate before Registry auto-disables it.
const DefaultMaxFailures = 3

// Registry holds every registered plugin and tracks per-plugin failure
// counts and disabled state. Mutated only during startup in the normal
// path; loop-time operations are reads and failure-count updates.
type Registry struct {
	mu          sync.RWMutex
	order       []string // registration order, authoritative for hook dispatch
	plugins     map[string]Plugin
	failures    map[string]int
	disabled    map[string]bool
	maxFailures int
}

// NewRegistry returns an empty Registry with DefaultMaxFailures.
func NewRegistry() *Registry {
	return &Registry{
		plugins:     make(map[string]Plugin),
		failures:    make(map[string]int),
		disabled:    make(map[string]bool),
		maxFailures: DefaultMaxFailures,
	}
}

// WithMaxFailures overrides DefaultMaxFailures.
func (r *Registry) WithMaxFailures(n int) *Registry {
	r.maxFailures = n
	return r
}

// Register adds p, appending it to registration order. Registering a name
// twice is an error.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := p.Metadata().Name
	if _, exists := r.plugins[name]; exists {
		return fmt.Errorf("plugin: %q already registered", name)
	}
	r.plugins[name] = p
	r.order = append(r.order, name)
	return nil
}

// RegisterAll registers every plugin in plugins, reordering them first by
// LoadOrder when any declares Requires; plugins with no
// dependencies keep their given order.
func (r *Registry) RegisterAll(plugins []Plugin) error {
	if !anyHasDependencies(plugins) {
		for _, p := range plugins {
			if err := r.Register(p); err != nil {
				return err
			}
		}
		return nil
	}

	byName := make(map[string]Plugin, len(plugins))
	for _, p := range plugins {
		byName[p.Metadata().Name] = p
	}
	order, err := loadOrder(byName)
	if err != nil {
		return err
	}
	for _, name := range order {
		if err := r.Register(byName[name]); err != nil {
			return err
		}
	}
	return nil
}

func anyHasDependencies(plugins []Plugin) bool {
	for _, p := range plugins {
		if len(p.Metadata().Requires) > 0 {
			return true
		}
	}
	return false
}

// Unregister removes a plugin by name.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.plugins, name)
	delete(r.failures, name)
	delete(r.disabled, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Get returns the named plugin, or (nil, false).
func (r *Registry) Get(name string) (Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.plugins[name]
	return p, ok
}

// GetAll returns every registered plugin in registration order.
func (r *Registry) GetAll() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Plugin, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.plugins[name])
	}
	return out
}

// Clear removes every plugin and all tracked state.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plugins = make(map[string]Plugin)
	r.failures = make(map[string]int)
	r.disabled = make(map[string]bool)
	r.order = nil
}

// IsDisabled reports whether name has been auto-disabled after repeated
// non-critical failures.
func (r *Registry) IsDisabled(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.disabled[name]
}

// FailureCount returns the number of recorded non-critical failures for
// name.
func (r *Registry) FailureCount(name string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.failures[name]
}

// recordFailure increments name's failure count and disables it once
// maxFailures is reached. Returns whether this call newly disabled it.
func (r *Registry) recordFailure(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[name]++
	if r.failures[name] >= r.maxFailures && !r.disabled[name] {
		r.disabled[name] = true
		return true
	}
	return false
}

// LoadOrder returns registered plugin names in dependency order, or an
// error if a dependency is unknown or a cycle exists. Grounded on
// firestige-Otus/internal/plugin/registry.go's GetLoadOrder.
func (r *Registry) LoadOrder() ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return loadOrder(r.plugins)
}

func loadOrder(byName map[string]Plugin) ([]string, error) {
	inDegree := make(map[string]int, len(byName))
	graph := make(map[string][]string)

	for name, p := range byName {
		for _, dep := range p.Metadata().Requires {
			if _, ok := byName[dep]; !ok {
				return nil, errors.Errorf("plugin: %q requires unknown plugin %q", name, dep)
			}
			graph[dep] = append(graph[dep], name)
		}
		inDegree[name] = len(p.Metadata().Requires)
	}

	var queue []string
	for name, degree := range inDegree {
		if degree == 0 {
			queue = append(queue, name)
		}
	}
	sort.Strings(queue)

	result := make([]string, 0, len(byName))
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		result = append(result, current)

		dependents := append([]string(nil), graph[current]...)
		sort.Strings(dependents)
		for _, dep := range dependents {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				queue = append(queue, dep)
				sort.Strings(queue)
			}
		}
	}

	if len(result) != len(byName) {
		return nil, errors.New("plugin: circular dependency detected")
	}
	return result, nil
}
