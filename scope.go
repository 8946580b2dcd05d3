package transformz

import (
	"context"
	"maps"
	"slices"
	"sync"
)

// Scope is the key/value store shared by the steps of one run.
//
// A child scope created with Child reads its own writes first and falls
// through to its parent. Its writes stay invisible to the parent and to
// sibling scopes until the parent calls Merge, which copies them under
// "namespace.key". Parallel gives every branch a child named "parallel_<i>"
// and merges the children back in declared order once the group succeeds.
type Scope struct {
	parent    *Scope
	values    map[string]any
	namespace string
	keys      []string
	mu        sync.RWMutex
}

// NewScope creates an empty root scope.
func NewScope() *Scope {
	return &Scope{values: make(map[string]any)}
}

// Namespace returns the name the scope was created under; it is empty for a root.
func (s *Scope) Namespace() string {
	return s.namespace
}

// Parent returns the enclosing scope, or nil for a root.
func (s *Scope) Parent() *Scope {
	return s.parent
}

// Get returns the value stored under key in this scope or an ancestor.
func (s *Scope) Get(key string) (any, bool) {
	for cur := s; cur != nil; cur = cur.parent {
		cur.mu.RLock()
		v, ok := cur.values[key]
		cur.mu.RUnlock()
		if ok {
			return v, true
		}
	}
	return nil, false
}

// Has reports whether key is visible from this scope.
func (s *Scope) Has(key string) bool {
	_, ok := s.Get(key)
	return ok
}

// Set stores value under key in this scope.
func (s *Scope) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.values[key]; !exists {
		s.keys = append(s.keys, key)
	}
	s.values[key] = value
}

// Delete removes key from this scope. Values held by ancestors stay visible.
func (s *Scope) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.values[key]; !exists {
		return
	}
	delete(s.values, key)
	if i := slices.Index(s.keys, key); i >= 0 {
		s.keys = slices.Delete(s.keys, i, i+1)
	}
}

// Keys returns the keys written to this scope, in write order.
func (s *Scope) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.keys)
}

// Snapshot returns every value visible from this scope. Writes in a child
// shadow the same key in its ancestors.
func (s *Scope) Snapshot() map[string]any {
	var chain []*Scope
	for cur := s; cur != nil; cur = cur.parent {
		chain = append(chain, cur)
	}
	out := make(map[string]any)
	for i := len(chain) - 1; i >= 0; i-- {
		chain[i].mu.RLock()
		maps.Copy(out, chain[i].values)
		chain[i].mu.RUnlock()
	}
	return out
}

// Child creates a scope nested under s.
func (s *Scope) Child(namespace string) *Scope {
	return &Scope{
		parent:    s,
		namespace: namespace,
		values:    make(map[string]any),
	}
}

// Merge copies the writes of child into s as "namespace.key", in the order
// the child wrote them.
func (s *Scope) Merge(child *Scope) {
	if child == nil || child == s {
		return
	}
	child.mu.RLock()
	keys := slices.Clone(child.keys)
	values := maps.Clone(child.values)
	ns := child.namespace
	child.mu.RUnlock()

	for _, k := range keys {
		key := k
		if ns != "" {
			key = ns + "." + k
		}
		s.Set(key, values[k])
	}
}

type scopeKey struct{}

// ContextWithScope returns a context carrying s. Run uses the scope found in
// its context instead of creating a fresh one, which lets callers seed values
// and read them back after the run.
func ContextWithScope(ctx context.Context, s *Scope) context.Context {
	return context.WithValue(ctx, scopeKey{}, s)
}

// ScopeFromContext returns the scope of the running chain, or nil outside a run.
// Compute functions use it to share values with later steps.
func ScopeFromContext(ctx context.Context) *Scope {
	s, _ := ctx.Value(scopeKey{}).(*Scope)
	return s
}
