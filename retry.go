package transformz

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type retryStep struct {
	step     Step
	attempts int
	backoff  time.Duration
}

// Retry runs step up to attempts times, waiting backoff after the first
// failure and doubling the wait after each further one. A zero backoff
// retries immediately. Unknown transformers, invalid steps and async
// transformers in a synchronous run fail at once.
//
// Retry takes the identifier of the step it wraps.
func Retry(step Step, attempts int, backoff time.Duration) Step {
	if attempts < 1 {
		attempts = 1
	}
	return &retryStep{step: step, attempts: attempts, backoff: backoff}
}

func (r *retryStep) Identifier() string {
	if r.step == nil {
		return "retry"
	}
	return r.step.Identifier()
}

func (r *retryStep) run(ctx context.Context, st *state, value any) (any, error) {
	if r.step == nil {
		return nil, fmt.Errorf("%w: retry without a step", ErrInvalidStep)
	}
	clock := st.exec.clock
	delay := r.backoff

	var lastErr error
	for i := 0; i < r.attempts; i++ {
		out, err := r.step.run(ctx, st, Clone(value))
		if err == nil {
			return out, nil
		}
		lastErr = err
		if !retryable(err) || ctx.Err() != nil {
			return nil, err
		}
		if i == r.attempts-1 {
			break
		}

		st.exec.logger.Debug("retrying step", "run_id", st.runID, "step", r.Identifier(),
			"attempt", i+1, "max_attempts", r.attempts, "delay", delay, "error", err)
		if delay <= 0 {
			continue
		}
		select {
		case <-clock.After(delay):
			delay *= 2
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

func retryable(err error) bool {
	return !errors.Is(err, ErrUnknownTransformer) &&
		!errors.Is(err, ErrInvalidStep) &&
		!errors.Is(err, ErrAsyncInSync)
}

func (r *retryStep) encode() (any, error) {
	if r.step == nil {
		return nil, fmt.Errorf("%w: retry without a step", ErrInvalidStep)
	}
	inner, err := r.step.encode()
	if err != nil {
		return nil, err
	}
	out := map[string]any{"retry": inner, "attempts": r.attempts}
	if r.backoff > 0 {
		out["backoff"] = r.backoff.String()
	}
	return out, nil
}
