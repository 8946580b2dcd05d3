package transformz

import (
	"context"
	"fmt"
	"maps"
)

// Step is one position in a chain. Steps are resolved once, when they are
// constructed or compiled from notation, so execution never re-inspects their
// shape. The set of step kinds is closed: leaves (Name, With, Func), nested
// chains (Sub or a Chain literal) and the combinators Branch, Parallel,
// Fallback, Retry and Timeout.
type Step interface {
	// Identifier names the step in traces, errors and dict merges.
	Identifier() string

	run(ctx context.Context, st *state, value any) (any, error)
	encode() (any, error)
}

// state is shared by every step of a single run.
type state struct {
	exec  *Executor
	runID string
	sync  bool
}

// StepFunc is the signature of a raw callable step.
type StepFunc func(ctx context.Context, value any) (any, error)

type callStep struct {
	opts Options
	name string
}

// Name returns a step that dispatches to the transformer registered under name.
func Name(name string) Step {
	return &callStep{name: name}
}

// With returns a step that dispatches to name with opts layered over the
// transformer's parameter defaults.
func With(name string, opts Options) Step {
	return &callStep{name: name, opts: maps.Clone(opts)}
}

func (s *callStep) Identifier() string { return s.name }

func (s *callStep) run(ctx context.Context, st *state, value any) (any, error) {
	d, ok := st.exec.registry.Get(s.name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTransformer, s.name)
	}
	if st.sync && d.Async {
		return nil, fmt.Errorf("%w: %q", ErrAsyncInSync, s.name)
	}
	return st.exec.invoke(ctx, d, value, s.opts)
}

func (s *callStep) encode() (any, error) {
	if len(s.opts) == 0 {
		return s.name, nil
	}
	return map[string]any{"function": s.name, "options": maps.Clone(map[string]any(s.opts))}, nil
}

type funcStep struct {
	fn    StepFunc
	label string
}

// Func returns a step that calls fn directly. Func steps cannot be encoded
// to notation.
func Func(label string, fn StepFunc) Step {
	return &funcStep{label: label, fn: fn}
}

func (s *funcStep) Identifier() string { return s.label }

func (s *funcStep) run(ctx context.Context, _ *state, value any) (out any, err error) {
	defer recoverFromPanic(&err, s.label)
	out, err = s.fn(ctx, value)
	if err != nil {
		return nil, classify(s.label, err)
	}
	return out, nil
}

func (s *funcStep) encode() (any, error) {
	return nil, fmt.Errorf("%w: func step %q", ErrNotSerializable, s.label)
}

// Chain is an ordered list of steps. A Chain is itself a Step, so chains nest.
type Chain []Step

// Sub returns steps as a nested chain.
func Sub(steps ...Step) Chain {
	return Chain(steps)
}

// Identifier implements Step.
func (c Chain) Identifier() string { return "chain" }

// Identifiers returns the identifier of every step in order.
func (c Chain) Identifiers() []string {
	ids := make([]string, len(c))
	for i, s := range c {
		ids[i] = s.Identifier()
	}
	return ids
}

func (c Chain) run(ctx context.Context, st *state, value any) (any, error) {
	return st.exec.runChain(ctx, st, c, value, nil)
}

func (c Chain) encode() (any, error) {
	out := make([]any, len(c))
	for i, s := range c {
		if s == nil {
			return nil, fmt.Errorf("%w: nil step at index %d", ErrInvalidStep, i)
		}
		v, err := s.encode()
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
