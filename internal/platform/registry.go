package platform

import "fmt"

// Registry maps platform names to their adapters. The orchestrator core
// depends only on the Adapter interface; concrete adapters register here at
// startup.
type Registry struct {
	adapters map[string]Adapter
}

func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

func (r *Registry) Register(name string, a Adapter) {
	r.adapters[name] = a
}

func (r *Registry) Get(name string) (Adapter, error) {
	a, ok := r.adapters[name]
	if !ok {
		return nil, fmt.Errorf("no adapter registered for platform %q", name)
	}
	return a, nil
}

func (r *Registry) Platforms() []string {
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	return names
}
