package transformz

import (
	"context"
	"fmt"
)

type fallbackStep struct {
	steps []Step
}

// Fallback tries steps in order and returns the output of the first one that
// succeeds. Every attempt receives its own copy of the input. When all of
// them fail the error wraps ErrAllFailed and the last failure.
func Fallback(steps ...Step) Step {
	return &fallbackStep{steps: steps}
}

func (f *fallbackStep) Identifier() string { return "fallback" }

func (f *fallbackStep) run(ctx context.Context, st *state, value any) (any, error) {
	if len(f.steps) == 0 {
		return nil, fmt.Errorf("%w: fallback without steps", ErrInvalidStep)
	}
	var lastErr error
	for i, step := range f.steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if step == nil {
			return nil, fmt.Errorf("%w: nil fallback step at index %d", ErrInvalidStep, i)
		}
		start := st.exec.clock.Now()
		out, err := step.run(ctx, st, Clone(value))
		if err == nil {
			return out, nil
		}
		lastErr = st.exec.stepFailure(err, step, i, value, start)
		st.exec.logger.Debug("fallback attempt failed", "run_id", st.runID, "step", step.Identifier(), "index", i, "error", err)
	}
	return nil, fmt.Errorf("%w: %d fallback steps: %w", ErrAllFailed, len(f.steps), lastErr)
}

func (f *fallbackStep) encode() (any, error) {
	steps, err := Chain(f.steps).encode()
	if err != nil {
		return nil, err
	}
	return map[string]any{"fallback": steps}, nil
}
