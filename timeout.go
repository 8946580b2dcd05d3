package transformz

import (
	"context"
	"fmt"
	"time"
)

type timeoutStep struct {
	step     Step
	duration time.Duration
}

// Timeout bounds step to duration, measured on the executor clock. When the
// deadline passes the step fails with context.DeadlineExceeded and the
// resulting StepError reports IsTimeout. The wrapped step should honour ctx;
// one that ignores it keeps running in the background after the timeout.
//
// Timeout takes the identifier of the step it wraps.
func Timeout(step Step, duration time.Duration) Step {
	return &timeoutStep{step: step, duration: duration}
}

func (t *timeoutStep) Identifier() string {
	if t.step == nil {
		return "timeout"
	}
	return t.step.Identifier()
}

func (t *timeoutStep) run(ctx context.Context, st *state, value any) (any, error) {
	if t.step == nil {
		return nil, fmt.Errorf("%w: timeout without a step", ErrInvalidStep)
	}
	ctx, cancel := st.exec.clock.WithTimeout(ctx, t.duration)
	defer cancel()

	type outcome struct {
		value any
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		out, err := t.step.run(ctx, st, Clone(value))
		done <- outcome{value: out, err: err}
	}()

	select {
	case o := <-done:
		return o.value, o.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (t *timeoutStep) encode() (any, error) {
	if t.step == nil {
		return nil, fmt.Errorf("%w: timeout without a step", ErrInvalidStep)
	}
	inner, err := t.step.encode()
	if err != nil {
		return nil, err
	}
	return map[string]any{"timeout": inner, "duration": t.duration.String()}, nil
}
