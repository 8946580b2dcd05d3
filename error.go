package transformz

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sentinel errors. Every error returned by an Executor or Extractor wraps
// exactly one of these, so callers can classify failures with errors.Is.
var (
	// ErrUnknownTransformer is returned when a step names a transformer that
	// is not in the registry. It is never retried.
	ErrUnknownTransformer = errors.New("unknown transformer")

	// ErrValidation is returned when a transformer's Validate rejects its input.
	ErrValidation = errors.New("validation failed")

	// ErrTransformation is returned when a transformer's Compute fails.
	ErrTransformation = errors.New("transformation failed")

	// ErrParse is returned for malformed structured input.
	ErrParse = errors.New("parse error")

	// ErrAsyncInSync is returned by RunSync when a chain reaches an async transformer.
	ErrAsyncInSync = errors.New("async transformer in synchronous run")

	// ErrMalformedSpec is returned for pattern specs the extractor cannot apply.
	ErrMalformedSpec = errors.New("malformed pattern spec")

	// ErrMaxDepth is returned when a pattern spec nests deeper than allowed.
	ErrMaxDepth = fmt.Errorf("%w: maximum depth exceeded", ErrMalformedSpec)

	// ErrPathRequired is returned when a required selector does not resolve.
	ErrPathRequired = errors.New("required path did not resolve")

	// ErrInvalidStep is returned for step notation that cannot be compiled.
	ErrInvalidStep = errors.New("invalid step")

	// ErrNotSerializable is returned when encoding a step that holds Go code.
	ErrNotSerializable = errors.New("step is not serializable")

	// ErrAllFailed is returned by first-success combinators when nothing succeeded.
	ErrAllFailed = errors.New("all steps failed")
)

// StepError provides context about a chain failure: which step failed, at
// which position, what it was given and how long it ran. Composition steps
// prepend their identifier to Path and their index to Positions as the error
// travels outwards, so both read from the outermost chain to the failing
// leaf. Index is the leaf's position in its innermost chain; Positions[0] is
// the position in the chain that was run.
type StepError struct {
	Input     any
	Timestamp time.Time
	Err       error
	Step      string
	Path      []string
	Positions []int
	Duration  time.Duration
	Index     int
	Timeout   bool
	Canceled  bool
}

// Error implements the error interface.
func (e *StepError) Error() string {
	location := fmt.Sprintf("step %q (index %d)", e.Step, e.Index)
	if len(e.Path) > 1 {
		location = fmt.Sprintf("%s at %s", location, e.location())
	}
	if e.Timeout {
		return fmt.Sprintf("%s timed out after %v: %v", location, e.Duration, e.Err)
	}
	if e.Canceled {
		return fmt.Sprintf("%s canceled after %v: %v", location, e.Duration, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", location, e.Err)
}

// location renders Path, with each entry's position when Positions is aligned.
func (e *StepError) location() string {
	if len(e.Positions) != len(e.Path) {
		return strings.Join(e.Path, " -> ")
	}
	parts := make([]string, len(e.Path))
	for i, id := range e.Path {
		parts[i] = fmt.Sprintf("%s[%d]", id, e.Positions[i])
	}
	return strings.Join(parts, " -> ")
}

// Unwrap returns the underlying error.
func (e *StepError) Unwrap() error {
	return e.Err
}

// Position returns the index of the failing step in the outermost chain.
func (e *StepError) Position() int {
	if len(e.Positions) > 0 {
		return e.Positions[0]
	}
	return e.Index
}

// IsTimeout reports whether the failure was caused by a deadline.
func (e *StepError) IsTimeout() bool {
	return e.Timeout || errors.Is(e.Err, context.DeadlineExceeded)
}

// IsCanceled reports whether the failure was caused by cancellation.
func (e *StepError) IsCanceled() bool {
	return e.Canceled || errors.Is(e.Err, context.Canceled)
}

// ExtractError locates a pattern extraction failure by property path and selector.
type ExtractError struct {
	Err      error
	Property string
	Selector string
}

// Error implements the error interface.
func (e *ExtractError) Error() string {
	if e.Selector == "" {
		return fmt.Sprintf("property %q: %v", e.Property, e.Err)
	}
	return fmt.Sprintf("property %q (selector %q): %v", e.Property, e.Selector, e.Err)
}

// Unwrap returns the underlying error.
func (e *ExtractError) Unwrap() error {
	return e.Err
}

// panicError captures a recovered panic from a leaf transformer.
type panicError struct {
	value any
	name  string
}

func (p *panicError) Error() string {
	return fmt.Sprintf("panic in transformer %q: %v", p.name, p.value)
}

// recoverFromPanic converts a panic in a transformer into an error.
func recoverFromPanic(err *error, name string) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("%w: %w", ErrTransformation, &panicError{name: name, value: r})
	}
}

// classify wraps a compute failure in ErrTransformation unless it already
// carries one of the taxonomy sentinels.
func classify(name string, err error) error {
	switch {
	case errors.Is(err, ErrValidation),
		errors.Is(err, ErrTransformation),
		errors.Is(err, ErrParse),
		errors.Is(err, ErrUnknownTransformer),
		errors.Is(err, ErrAsyncInSync),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrTransformation, name, err)
}
