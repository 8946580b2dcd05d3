package transformz

import (
	"context"
	"fmt"
)

// Predicate decides which path a Branch takes.
type Predicate func(ctx context.Context, value any) (bool, error)

// Condition is the test of a Branch: either a Go predicate (When) or a step
// whose output must be a bool (WhenStep). Only step conditions can be encoded
// to notation.
type Condition struct {
	fn   Predicate
	step Step
}

// When builds a condition from a Go predicate.
func When(fn Predicate) Condition {
	return Condition{fn: fn}
}

// WhenStep builds a condition from a step. The step sees the branch input and
// must produce a bool.
func WhenStep(step Step) Condition {
	return Condition{step: step}
}

type branchStep struct {
	cond      Condition
	then      Chain
	otherwise Chain
}

// Branch evaluates cond once and runs then or otherwise as a nested chain.
// A nil otherwise passes the value through unchanged.
//
//	transformz.Branch(
//	    transformz.WhenStep(transformz.With("contains", transformz.Options{"substring": "@"})),
//	    transformz.Chain{transformz.Name("email_validator")},
//	    transformz.Chain{transformz.Name("url_validator")},
//	)
func Branch(cond Condition, then, otherwise Chain) Step {
	return &branchStep{cond: cond, then: then, otherwise: otherwise}
}

func (b *branchStep) Identifier() string { return "branch" }

func (b *branchStep) run(ctx context.Context, st *state, value any) (any, error) {
	ok, err := b.test(ctx, st, value)
	if err != nil {
		return nil, err
	}
	path := b.otherwise
	if ok {
		path = b.then
	}
	if path == nil {
		return value, nil
	}
	return st.exec.runChain(ctx, st, path, value, nil)
}

func (b *branchStep) test(ctx context.Context, st *state, value any) (ok bool, err error) {
	switch {
	case b.cond.fn != nil:
		defer recoverFromPanic(&err, "branch condition")
		ok, err = b.cond.fn(ctx, value)
		if err != nil {
			return false, classify("branch condition", err)
		}
		return ok, nil
	case b.cond.step != nil:
		start := st.exec.clock.Now()
		out, err := b.cond.step.run(ctx, st, value)
		if err != nil {
			return false, st.exec.stepFailure(err, b.cond.step, 0, value, start)
		}
		result, isBool := out.(bool)
		if !isBool {
			return false, fmt.Errorf("%w: branch condition %q produced %T, want bool",
				ErrTransformation, b.cond.step.Identifier(), out)
		}
		return result, nil
	}
	return false, fmt.Errorf("%w: branch has no condition", ErrInvalidStep)
}

func (b *branchStep) encode() (any, error) {
	if b.cond.step == nil {
		return nil, fmt.Errorf("%w: branch with a Go predicate", ErrNotSerializable)
	}
	when, err := b.cond.step.encode()
	if err != nil {
		return nil, err
	}
	body := map[string]any{"when": when}
	if b.then != nil {
		then, err := b.then.encode()
		if err != nil {
			return nil, err
		}
		body["then"] = then
	}
	if b.otherwise != nil {
		otherwise, err := b.otherwise.encode()
		if err != nil {
			return nil, err
		}
		body["else"] = otherwise
	}
	return map[string]any{"branch": body}, nil
}
