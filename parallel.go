package transformz

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"golang.org/x/sync/errgroup"
)

// MergeStrategy combines the outputs of a Parallel step.
type MergeStrategy struct {
	fn   func(*Object) (any, error)
	kind string
}

var (
	// MergeDict produces an *Object keyed by step identifier in declared
	// order. An empty identifier uses the branch index; a repeated one is
	// suffixed with "_<index>".
	MergeDict = MergeStrategy{kind: "dict"}

	// MergeList produces a []any in declared order.
	MergeList = MergeStrategy{kind: "list"}

	// MergeFirst produces the output of the first branch, in declared order,
	// that succeeded. It fails only when every branch fails.
	MergeFirst = MergeStrategy{kind: "first"}
)

// MergeWith builds a custom strategy from fn, which receives the dict merge.
func MergeWith(fn func(*Object) (any, error)) MergeStrategy {
	return MergeStrategy{kind: "custom", fn: fn}
}

// String returns the notation name of the strategy.
func (m MergeStrategy) String() string {
	if m.kind == "" {
		return "dict"
	}
	return m.kind
}

type parallelStep struct {
	merge MergeStrategy
	steps []Step
}

// Parallel runs every step concurrently over its own deep copy of the input
// and merges the outputs with merge. Each branch writes to a child scope
// named "parallel_<index>"; the children are merged into the enclosing scope
// in declared order once the group succeeds.
//
// Under MergeDict, MergeList and MergeWith the first failure fails the step,
// cancels the remaining branches and discards every result. A Parallel
// without steps fails with ErrInvalidStep.
func Parallel(merge MergeStrategy, steps ...Step) Step {
	return &parallelStep{merge: merge, steps: steps}
}

func (p *parallelStep) Identifier() string { return "parallel" }

func (p *parallelStep) run(ctx context.Context, st *state, value any) (any, error) {
	if len(p.steps) == 0 {
		return nil, fmt.Errorf("%w: parallel without steps", ErrInvalidStep)
	}
	scope := ScopeFromContext(ctx)
	if scope == nil {
		scope = NewScope()
	}
	if p.merge.kind == "first" {
		return p.runFirst(ctx, st, scope, value)
	}

	results := make([]any, len(p.steps))
	children := make([]*Scope, len(p.steps))

	g, gctx := errgroup.WithContext(ctx)
	if st.exec.parallelLimit > 0 {
		g.SetLimit(st.exec.parallelLimit)
	}
	for i, step := range p.steps {
		children[i] = scope.Child(branchNamespace(i))
		input := Clone(value)
		g.Go(func() error {
			out, err := p.branch(gctx, st, children[i], i, step, input)
			if err != nil {
				return err
			}
			results[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, child := range children {
		scope.Merge(child)
	}

	switch p.merge.kind {
	case "list":
		return results, nil
	case "custom":
		if p.merge.fn == nil {
			return nil, fmt.Errorf("%w: custom merge without a function", ErrInvalidStep)
		}
		out, err := p.merge.fn(p.dict(results))
		if err != nil {
			return nil, classify("parallel merge", err)
		}
		return out, nil
	default:
		return p.dict(results), nil
	}
}

// runFirst runs every branch to completion; a failing branch does not cancel
// its siblings. Only the winning branch's scope is merged.
func (p *parallelStep) runFirst(ctx context.Context, st *state, scope *Scope, value any) (any, error) {
	results := make([]any, len(p.steps))
	errs := make([]error, len(p.steps))
	children := make([]*Scope, len(p.steps))

	var g errgroup.Group
	if st.exec.parallelLimit > 0 {
		g.SetLimit(st.exec.parallelLimit)
	}
	for i, step := range p.steps {
		children[i] = scope.Child(branchNamespace(i))
		input := Clone(value)
		g.Go(func() error {
			results[i], errs[i] = p.branch(ctx, st, children[i], i, step, input)
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck

	for i := range p.steps {
		if errs[i] == nil {
			scope.Merge(children[i])
			return results[i], nil
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("%w: %d parallel steps: %w", ErrAllFailed, len(p.steps), errors.Join(errs...))
}

func (p *parallelStep) branch(ctx context.Context, st *state, scope *Scope, i int, step Step, input any) (any, error) {
	start := st.exec.clock.Now()
	if step == nil {
		return nil, &StepError{Err: fmt.Errorf("%w: nil step", ErrInvalidStep), Index: i, Input: input, Timestamp: start}
	}
	st.exec.metrics.Counter(ParallelBranchesTotal).Inc()

	ctx, span := st.exec.tracer.StartSpan(ctx, ParallelBranchSpan)
	span.SetTag(ChainTagRunID, st.runID)
	span.SetTag(ChainTagStep, step.Identifier())
	span.SetTag(ChainTagIndex, strconv.Itoa(i))
	defer span.Finish()

	out, err := step.run(ContextWithScope(ctx, scope), st, input)
	if err != nil {
		span.SetTag(ChainTagSuccess, "false")
		span.SetTag(ChainTagError, err.Error())
		return nil, st.exec.stepFailure(err, step, i, input, start)
	}
	span.SetTag(ChainTagSuccess, "true")
	return out, nil
}

func (p *parallelStep) dict(results []any) *Object {
	obj := NewObject()
	for i, step := range p.steps {
		key := step.Identifier()
		if key == "" {
			key = strconv.Itoa(i)
		}
		if _, exists := obj.Get(key); exists {
			base := key + "_" + strconv.Itoa(i)
			key = base
			for n := 2; ; n++ {
				if _, taken := obj.Get(key); !taken {
					break
				}
				key = base + "_" + strconv.Itoa(n)
			}
		}
		obj.Set(key, results[i])
	}
	return obj
}

func (p *parallelStep) encode() (any, error) {
	if p.merge.kind == "custom" {
		return nil, fmt.Errorf("%w: parallel with a custom merge", ErrNotSerializable)
	}
	steps, err := Chain(p.steps).encode()
	if err != nil {
		return nil, err
	}
	return map[string]any{"parallel": steps, "merge": p.merge.String()}, nil
}

func branchNamespace(i int) string {
	return "parallel_" + strconv.Itoa(i)
}
