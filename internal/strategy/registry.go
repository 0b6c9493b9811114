package strategy

import (
	"fmt"
	"os/exec"
	"sort"
	"sync"
)

// Registry maps operator names to strategies and answers availability
// questions against the local PATH.
type Registry struct {
	mu         sync.RWMutex
	strategies map[string]Strategy
	// LookPath is swappable for tests; defaults to exec.LookPath.
	LookPath func(string) (string, error)
}

// NewRegistry returns a registry preloaded with the built-in family.
func NewRegistry() *Registry {
	r := &Registry{
		strategies: make(map[string]Strategy),
		LookPath:   exec.LookPath,
	}
	r.Register(&Aider{})
	r.Register(&OpenCode{})
	r.Register(&Gemini{})
	r.Register(&Claude{})
	return r
}

// Register adds or replaces a strategy under its own name.
func (r *Registry) Register(s Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[s.Name()] = s
}

// Get returns the strategy for name.
func (r *Registry) Get(name string) (Strategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.strategies[name]
	if !ok {
		return nil, fmt.Errorf("no strategy registered for operator %q", name)
	}
	return s, nil
}

// Names lists the registered operator names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.strategies))
	for n := range r.strategies {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Known returns the operator set used by config validation.
func (r *Registry) Known() map[string]bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	known := make(map[string]bool, len(r.strategies))
	for n := range r.strategies {
		known[n] = true
	}
	return known
}

// Available reports whether the operator's binary is on PATH.
func (r *Registry) Available(name string) bool {
	r.mu.RLock()
	s, ok := r.strategies[name]
	look := r.LookPath
	r.mu.RUnlock()
	if !ok {
		return false
	}
	_, err := look(s.Name())
	return err == nil
}
