package transformz

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/zoobzio/clockz"
	"github.com/zoobzio/hookz"
	"github.com/zoobzio/metricz"
	"github.com/zoobzio/tracez"
)

// Observability constants for the Executor.
const (
	// Metrics.
	ChainRunsTotal        = metricz.Key("chain.runs.total")
	ChainSuccessesTotal   = metricz.Key("chain.successes.total")
	ChainFailuresTotal    = metricz.Key("chain.failures.total")
	ChainStepsTotal       = metricz.Key("chain.steps.total")
	ParallelBranchesTotal = metricz.Key("parallel.branches.total")
	ChainDurationMs       = metricz.Key("chain.duration.ms")

	// Spans.
	ChainRunSpan       = tracez.Key("chain.run")
	ChainStepSpan      = tracez.Key("chain.step")
	ParallelBranchSpan = tracez.Key("parallel.branch")

	// Tags.
	ChainTagRunID     = tracez.Tag("chain.run_id")
	ChainTagStepCount = tracez.Tag("chain.step_count")
	ChainTagStep      = tracez.Tag("chain.step")
	ChainTagIndex     = tracez.Tag("chain.index")
	ChainTagSuccess   = tracez.Tag("chain.success")
	ChainTagError     = tracez.Tag("chain.error")

	// Hook event keys.
	ChainEventStepComplete = hookz.Key("chain.step_complete")
	ChainEventComplete     = hookz.Key("chain.complete")
)

// StepEvent is emitted via hookz when a top-level step finishes and when a
// run completes.
type StepEvent struct {
	Timestamp time.Time     // When the event occurred
	Error     error         // Error if the step or run failed
	RunID     string        // Run the event belongs to
	Step      string        // Step identifier (empty for chain.complete)
	Index     int           // Position of the step in the chain
	Steps     int           // Number of steps in the chain
	Duration  time.Duration // Step duration, or total duration for chain.complete
	Success   bool          // Whether the step or run succeeded
}

// TraceEntry records the output of one top-level step.
type TraceEntry struct {
	Value any    `json:"value"`
	Step  string `json:"step"`
	Index int    `json:"index"`
}

// Result is the outcome of a run. When a run fails, Output holds the value
// produced by the last successful step and Trace lists the steps that
// completed before the failure.
type Result struct {
	Output any          `json:"output"`
	Scope  *Scope       `json:"-"`
	RunID  string       `json:"run_id"`
	Trace  []TraceEntry `json:"trace"`
}

// Executor runs chains against a Registry.
//
// An Executor is safe for concurrent use. Every run gets a fresh Scope unless
// the context carries one (see ContextWithScope).
//
// # Observability
//
// Metrics:
//   - chain.runs.total: Counter of runs
//   - chain.successes.total: Counter of successful runs
//   - chain.failures.total: Counter of failed runs
//   - chain.steps.total: Counter of executed steps at every nesting level
//   - parallel.branches.total: Counter of parallel branches started
//   - chain.duration.ms: Gauge of the last run's duration
//
// Traces:
//   - chain.run: Parent span for a run
//   - chain.step: Child span for every step
//   - parallel.branch: Child span for every parallel branch
//
// Events (via hooks):
//   - chain.step_complete: Fired as each top-level step finishes
//   - chain.complete: Fired when a run finishes, successfully or not
type Executor struct {
	registry      *Registry
	clock         clockz.Clock
	logger        *slog.Logger
	metrics       *metricz.Registry
	tracer        *tracez.Tracer
	hooks         *hookz.Hooks[StepEvent]
	parallelLimit int
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithClock sets the clock used for timing, retries and timeouts.
func WithClock(clock clockz.Clock) ExecutorOption {
	return func(e *Executor) { e.clock = clock }
}

// WithLogger sets the logger used for debug tracing of dispatch.
func WithLogger(logger *slog.Logger) ExecutorOption {
	return func(e *Executor) { e.logger = logger }
}

// WithParallelLimit bounds the number of branches a Parallel step runs at
// once. Zero or a negative value means no limit.
func WithParallelLimit(n int) ExecutorOption {
	return func(e *Executor) { e.parallelLimit = n }
}

// NewExecutor creates an Executor that resolves step names in reg. A nil
// registry is replaced by an empty one.
func NewExecutor(reg *Registry, opts ...ExecutorOption) *Executor {
	if reg == nil {
		reg = NewRegistry()
	}

	metrics := metricz.New()
	metrics.Counter(ChainRunsTotal)
	metrics.Counter(ChainSuccessesTotal)
	metrics.Counter(ChainFailuresTotal)
	metrics.Counter(ChainStepsTotal)
	metrics.Counter(ParallelBranchesTotal)
	metrics.Gauge(ChainDurationMs)

	e := &Executor{
		registry: reg,
		clock:    clockz.RealClock,
		logger:   slog.Default(),
		metrics:  metrics,
		tracer:   tracez.New(),
		hooks:    hookz.New[StepEvent](),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.clock == nil {
		e.clock = clockz.RealClock
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e
}

// Registry returns the registry the executor dispatches to.
func (e *Executor) Registry() *Registry {
	return e.registry
}

// Run executes chain over input. Async transformers are awaited while the
// run watches ctx for cancellation.
//
// On failure both returns are non-nil: the Result carries the trace of the
// steps that completed and the error is a *StepError locating the failure.
func (e *Executor) Run(ctx context.Context, chain Chain, input any) (*Result, error) {
	return e.execute(ctx, chain, input, false)
}

// RunSync executes chain like Run but refuses to invoke async transformers,
// at any nesting level, failing with ErrAsyncInSync instead.
func (e *Executor) RunSync(ctx context.Context, chain Chain, input any) (*Result, error) {
	return e.execute(ctx, chain, input, true)
}

// Transform invokes a single transformer.
func (e *Executor) Transform(ctx context.Context, name string, value any, opts Options) (any, error) {
	res, err := e.Run(ctx, Chain{With(name, opts)}, value)
	if err != nil {
		return nil, err
	}
	return res.Output, nil
}

func (e *Executor) execute(ctx context.Context, chain Chain, input any, sync bool) (result *Result, err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	scope := ScopeFromContext(ctx)
	if scope == nil {
		scope = NewScope()
		ctx = ContextWithScope(ctx, scope)
	}

	st := &state{exec: e, runID: uuid.NewString(), sync: sync}
	result = &Result{RunID: st.runID, Scope: scope, Trace: make([]TraceEntry, 0, len(chain))}

	e.metrics.Counter(ChainRunsTotal).Inc()
	start := e.clock.Now()

	ctx, span := e.tracer.StartSpan(ctx, ChainRunSpan)
	span.SetTag(ChainTagRunID, st.runID)
	span.SetTag(ChainTagStepCount, strconv.Itoa(len(chain)))
	e.logger.Debug("chain started", "run_id", st.runID, "steps", len(chain), "sync", sync)

	defer func() {
		elapsed := e.clock.Since(start)
		e.metrics.Gauge(ChainDurationMs).Set(float64(elapsed.Milliseconds()))
		if err == nil {
			span.SetTag(ChainTagSuccess, "true")
			e.metrics.Counter(ChainSuccessesTotal).Inc()
		} else {
			span.SetTag(ChainTagSuccess, "false")
			span.SetTag(ChainTagError, err.Error())
			e.metrics.Counter(ChainFailuresTotal).Inc()
		}
		span.Finish()

		_ = e.hooks.Emit(ctx, ChainEventComplete, StepEvent{ //nolint:errcheck
			RunID:     st.runID,
			Steps:     len(chain),
			Success:   err == nil,
			Error:     err,
			Duration:  elapsed,
			Timestamp: e.clock.Now(),
		})
		e.logger.Debug("chain finished", "run_id", st.runID, "success", err == nil, "duration", elapsed)
	}()

	result.Output, err = e.runChain(ctx, st, chain, input, &result.Trace)
	return result, err
}

// runChain folds value through chain. Only the top-level chain passes a
// trace; nested chains record nothing and emit no step events.
func (e *Executor) runChain(ctx context.Context, st *state, chain Chain, value any, trace *[]TraceEntry) (any, error) {
	current := value
	for i, step := range chain {
		start := e.clock.Now()
		if step == nil {
			return current, &StepError{
				Err:       fmt.Errorf("%w: nil step", ErrInvalidStep),
				Index:     i,
				Input:     current,
				Timestamp: start,
			}
		}
		if err := ctx.Err(); err != nil {
			return current, e.stepFailure(err, step, i, current, start)
		}

		id := step.Identifier()
		stepCtx, span := e.tracer.StartSpan(ctx, ChainStepSpan)
		span.SetTag(ChainTagRunID, st.runID)
		span.SetTag(ChainTagStep, id)
		span.SetTag(ChainTagIndex, strconv.Itoa(i))
		e.logger.Debug("dispatching step", "run_id", st.runID, "step", id, "index", i)

		out, err := step.run(stepCtx, st, current)
		duration := e.clock.Since(start)
		e.metrics.Counter(ChainStepsTotal).Inc()
		if err != nil {
			span.SetTag(ChainTagSuccess, "false")
			span.SetTag(ChainTagError, err.Error())
		} else {
			span.SetTag(ChainTagSuccess, "true")
		}
		span.Finish()

		if trace != nil {
			_ = e.hooks.Emit(ctx, ChainEventStepComplete, StepEvent{ //nolint:errcheck
				RunID:     st.runID,
				Step:      id,
				Index:     i,
				Steps:     len(chain),
				Success:   err == nil,
				Error:     err,
				Duration:  duration,
				Timestamp: e.clock.Now(),
			})
		}
		if err != nil {
			e.logger.Debug("step failed", "run_id", st.runID, "step", id, "index", i, "error", err)
			return current, e.stepFailure(err, step, i, current, start)
		}

		current = out
		if trace != nil {
			*trace = append(*trace, TraceEntry{Index: i, Step: id, Value: out})
		}
	}
	return current, nil
}

// stepFailure attaches the position of step to err. A failure that already
// carries a StepError from a nested chain gets the step and its index
// prepended to its path.
func (e *Executor) stepFailure(err error, step Step, index int, input any, start time.Time) error {
	var stepErr *StepError
	if errors.As(err, &stepErr) {
		stepErr.Path = append([]string{step.Identifier()}, stepErr.Path...)
		stepErr.Positions = append([]int{index}, stepErr.Positions...)
		return err
	}
	id := step.Identifier()
	return &StepError{
		Err:       err,
		Step:      id,
		Index:     index,
		Path:      []string{id},
		Positions: []int{index},
		Input:     input,
		Timestamp: e.clock.Now(),
		Duration:  e.clock.Since(start),
		Timeout:   errors.Is(err, context.DeadlineExceeded),
		Canceled:  errors.Is(err, context.Canceled),
	}
}

// invoke validates and computes a leaf. Async leaves compute on their own
// goroutine so the run can return as soon as ctx is done.
func (e *Executor) invoke(ctx context.Context, d Descriptor, value any, opts Options) (any, error) {
	opts = d.options(opts)
	if !d.Async {
		return compute(ctx, d, value, opts)
	}

	type outcome struct {
		value any
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		v, err := compute(ctx, d, value, opts)
		done <- outcome{value: v, err: err}
	}()

	select {
	case o := <-done:
		return o.value, o.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func compute(ctx context.Context, d Descriptor, value any, opts Options) (out any, err error) {
	defer recoverFromPanic(&err, d.Name)

	if d.Validate != nil && !d.Validate(value) {
		return nil, fmt.Errorf("%w: %s rejected input of type %T", ErrValidation, d.Name, value)
	}
	if d.Compute == nil {
		return nil, fmt.Errorf("%w: %s has no compute function", ErrTransformation, d.Name)
	}
	out, err = d.Compute(ctx, value, opts)
	if err != nil {
		return nil, classify(d.Name, err)
	}
	return out, nil
}

// Metrics returns the metrics registry for this executor.
func (e *Executor) Metrics() *metricz.Registry {
	return e.metrics
}

// Tracer returns the tracer for this executor.
func (e *Executor) Tracer() *tracez.Tracer {
	return e.tracer
}

// Close gracefully shuts down observability components.
func (e *Executor) Close() error {
	if e.tracer != nil {
		e.tracer.Close()
	}
	e.hooks.Close()
	return nil
}

// OnStepComplete registers a handler called asynchronously each time a
// top-level step finishes, whether it succeeds or fails.
func (e *Executor) OnStepComplete(handler func(context.Context, StepEvent) error) error {
	_, err := e.hooks.Hook(ChainEventStepComplete, handler)
	return err
}

// OnComplete registers a handler called asynchronously when a run finishes.
func (e *Executor) OnComplete(handler func(context.Context, StepEvent) error) error {
	_, err := e.hooks.Hook(ChainEventComplete, handler)
	return err
}
