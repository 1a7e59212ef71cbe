package engine

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Registry maps boardgame names to engines.
type Registry struct {
	mu      sync.RWMutex
	engines map[string]Engine
}

func NewRegistry(engines ...Engine) *Registry {
	r := &Registry{engines: make(map[string]Engine)}
	for _, e := range engines {
		r.Register(e)
	}
	return r
}

// Register adds or replaces the engine for e.Name().
func (r *Registry) Register(e Engine) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.engines[normalize(e.Name())] = e
}

func (r *Registry) Get(name string) (Safe, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.engines[normalize(name)]
	if !ok {
		return Safe{}, fmt.Errorf("%w: %q", ErrUnknown, name)
	}
	return Wrap(e), nil
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.engines))
	for n := range r.engines {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func normalize(name string) string { return strings.ToLower(strings.TrimSpace(name)) }
