// Package registry holds the process-wide catalog of step definitions.
//
// Registration happens once at startup and the registry is frozen before
// the first turn runs. This guarantees that graph topology cannot change
// mid-execution, which is required for deterministic replay.
package registry

import (
	"fmt"
	"sync"

	"github.com/pennywise-ai/pennywise/pkg/domain"
)

// Registry manages the available step definitions.
type Registry struct {
	mu     sync.RWMutex
	steps  map[string]domain.StepDefinition
	frozen bool
}

// New creates a new empty registry.
func New() *Registry {
	return &Registry{
		steps: make(map[string]domain.StepDefinition),
	}
}

// Register adds a step definition. It fails on duplicate names, on steps
// without a transition function, and after Freeze.
func (r *Registry) Register(def domain.StepDefinition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return fmt.Errorf("register %q: %w", def.Name, domain.ErrRegistryFrozen)
	}
	if def.Name == "" {
		return fmt.Errorf("register: step name must not be empty")
	}
	if def.Run == nil {
		return fmt.Errorf("register %q: step has no transition function", def.Name)
	}
	if _, exists := r.steps[def.Name]; exists {
		return fmt.Errorf("register %q: step already registered", def.Name)
	}

	r.steps[def.Name] = def
	return nil
}

// MustRegister is Register that panics, for boot-time graph wiring.
func (r *Registry) MustRegister(def domain.StepDefinition) {
	if err := r.Register(def); err != nil {
		panic(err)
	}
}

// Freeze seals the registry. After Freeze every Register call fails and the
// step set is immutable for the lifetime of the process.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// Resolve looks up a step by name.
// Returns domain.ErrUnknownStep if it was never registered.
func (r *Registry) Resolve(name string) (domain.StepDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.steps[name]
	if !ok {
		return domain.StepDefinition{}, fmt.Errorf("%w: %s", domain.ErrUnknownStep, name)
	}
	return def, nil
}

// Steps returns all registered definitions, for introspection and graph
// rendering. The returned slice is a copy.
func (r *Registry) Steps() []domain.StepDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.StepDefinition, 0, len(r.steps))
	for _, def := range r.steps {
		out = append(out, def)
	}
	return out
}

// Validate checks that every declared successor resolves to a registered
// step. Run it after wiring the graph, before Freeze.
func (r *Registry) Validate() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for name, def := range r.steps {
		for _, succ := range def.Successors {
			if _, ok := r.steps[succ]; !ok {
				return fmt.Errorf("step %q declares unknown successor %q", name, succ)
			}
		}
	}
	return nil
}
