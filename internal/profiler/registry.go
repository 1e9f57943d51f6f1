package profiler

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Factory constructs one kind of profiler.
type Factory interface {
	// Name is the identifier the harness selects the profiler by.
	Name() string

	// IsSupported filters factories before anything is constructed.
	// Must be free of side effects.
	IsSupported(opts Options) bool

	// New starts the profiler.
	New(ctx context.Context, cfg Config) (Profiler, error)
}

// SampleFactory builds SampleProfilers.
type SampleFactory struct{}

// Name returns "sample".
func (SampleFactory) Name() string { return SampleName }

// IsSupported delegates to the package-level IsSupported.
func (SampleFactory) IsSupported(opts Options) bool { return IsSupported(opts) }

// New starts a SampleProfiler.
func (SampleFactory) New(ctx context.Context, cfg Config) (Profiler, error) {
	p, err := New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Registry maps profiler names to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// DefaultRegistry returns a registry holding every built-in profiler.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.MustRegister(SampleFactory{})
	return r
}

// Register adds f. Names must be unique.
func (r *Registry) Register(f Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[f.Name()]; ok {
		return fmt.Errorf("profiler %q already registered", f.Name())
	}
	r.factories[f.Name()] = f
	return nil
}

// MustRegister is Register that panics on duplicate names.
func (r *Registry) MustRegister(f Factory) {
	if err := r.Register(f); err != nil {
		panic(err)
	}
}

// Lookup returns the factory registered under name.
func (r *Registry) Lookup(name string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[name]
	return f, ok
}

// Names returns every registered name, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Supported returns the names of factories usable under opts, sorted.
func (r *Registry) Supported(opts Options) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var names []string
	for name, f := range r.factories {
		if f.IsSupported(opts) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
