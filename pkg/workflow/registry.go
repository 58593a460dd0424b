package workflow

import (
	"log/slog"
	"sort"
	"sync"
)

// Registry maps workflow names to factories.
type Registry struct {
	mu        sync.Mutex
	factories map[string]func() Workflow
	logger    *slog.Logger
}

// NewRegistry creates an empty workflow registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]func() Workflow),
		logger:    slog.Default().With("component", "workflow-registry"),
	}
}

// Register binds a factory under a name, warning on overwrite.
func (r *Registry) Register(name string, factory func() Workflow) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; exists {
		r.logger.Warn("Workflow already registered, overwriting", "name", name)
	}
	r.factories[name] = factory
}

// Enabled instantiates the workflows for the given names, defaulting to
// the errors workflow. Unknown names are skipped with a warning.
func (r *Registry) Enabled(names []string) []Workflow {
	if len(names) == 0 {
		names = []string{"errors"}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Workflow
	for _, name := range names {
		factory, ok := r.factories[name]
		if !ok {
			r.logger.Warn("Unknown workflow", "name", name, "available", r.namesLocked())
			continue
		}
		out = append(out, factory())
	}
	return out
}

// Names lists registered workflow names, sorted.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.namesLocked()
}

func (r *Registry) namesLocked() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
