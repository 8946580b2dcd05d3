package transformz

import (
	"context"
	"slices"
	"sort"
	"sync"
)

// ComputeFunc performs a transformation. Implementations should honour ctx
// when they block.
type ComputeFunc func(ctx context.Context, value any, opts Options) (any, error)

// ValidateFunc reports whether a value is acceptable input.
type ValidateFunc func(value any) bool

// Param describes one option a transformer accepts. Params are descriptive;
// their defaults are layered under the options a step supplies.
type Param struct {
	Default any    `json:"default,omitempty" yaml:"default,omitempty"`
	Name    string `json:"name" yaml:"name"`
	Type    string `json:"type" yaml:"type"`
}

// Descriptor is the capability record of a leaf transformer.
//
// Async marks transformers whose Compute may block on I/O or another
// suspension point. The executor awaits those on a separate goroutine so the
// chain can observe cancellation; synchronous transformers run inline.
// Validate may be nil, which means every input is accepted.
type Descriptor struct {
	Validate   ValidateFunc
	Compute    ComputeFunc
	Name       string
	Category   string
	InputType  string
	OutputType string
	Params     []Param
	Async      bool
}

// options layers opts over the declared parameter defaults.
func (d Descriptor) options(opts Options) Options {
	if len(d.Params) == 0 {
		if opts == nil {
			return Options{}
		}
		return opts
	}
	merged := make(Options, len(d.Params)+len(opts))
	for _, p := range d.Params {
		if p.Default != nil {
			merged[p.Name] = p.Default
		}
	}
	for k, v := range opts {
		merged[k] = v
	}
	return merged
}

// Registry maps transformer names to descriptors and keeps a per-category
// index. It is safe for concurrent use; it is read-heavy and registration is
// expected to happen at startup.
type Registry struct {
	descriptors map[string]Descriptor
	categories  map[string][]string
	order       []string
	mu          sync.RWMutex
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		descriptors: make(map[string]Descriptor),
		categories:  make(map[string][]string),
	}
}

// Register inserts d, replacing any descriptor with the same name.
// A replacement in the same category keeps its position in the category
// index; a replacement in a different category moves to the end of the new one.
func (r *Registry) Register(d Descriptor) {
	d.Params = slices.Clone(d.Params)

	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, exists := r.descriptors[d.Name]; exists {
		if prev.Category != d.Category {
			r.removeFromCategory(prev.Category, d.Name)
			r.addToCategory(d.Category, d.Name)
		}
	} else {
		r.addToCategory(d.Category, d.Name)
	}
	r.descriptors[d.Name] = d
}

// Get returns the descriptor registered under name.
func (r *Registry) Get(name string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.descriptors[name]
	return d, ok
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// Unregister removes name from the registry. It is a no-op for unknown names.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, exists := r.descriptors[name]
	if !exists {
		return
	}
	delete(r.descriptors, name)
	r.removeFromCategory(d.Category, name)
}

// Names returns every registered name, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.descriptors))
	for name := range r.descriptors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Categories returns the categories in the order they were first used.
func (r *Registry) Categories() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.order)
}

// Category returns the names registered under category in registration order.
func (r *Registry) Category(category string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.categories[category])
}

// Len returns the number of registered transformers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.descriptors)
}

func (r *Registry) addToCategory(category, name string) {
	names, seen := r.categories[category]
	if !seen {
		r.order = append(r.order, category)
	}
	r.categories[category] = append(names, name)
}

func (r *Registry) removeFromCategory(category, name string) {
	names := r.categories[category]
	if i := slices.Index(names, name); i >= 0 {
		names = slices.Delete(names, i, i+1)
	}
	if len(names) == 0 {
		delete(r.categories, category)
		if i := slices.Index(r.order, category); i >= 0 {
			r.order = slices.Delete(r.order, i, i+1)
		}
		return
	}
	r.categories[category] = names
}
