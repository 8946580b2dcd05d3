package transformz

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strconv"

	"github.com/zoobzio/metricz"
	"github.com/zoobzio/tracez"
)

// Observability constants for the Extractor.
const (
	// Metrics.
	ExtractPropertiesTotal = metricz.Key("extract.properties.total")
	ExtractMissingTotal    = metricz.Key("extract.missing.total")
	ExtractDurationMs      = metricz.Key("extract.duration.ms")

	// Spans.
	ExtractRunSpan = tracez.Key("extract.run")

	// Tags.
	ExtractTagProperties = tracez.Tag("extract.properties")
	ExtractTagSuccess    = tracez.Tag("extract.success")
	ExtractTagError      = tracez.Tag("extract.error")
)

// DefaultMaxDepth bounds the nesting of pattern properties.
const DefaultMaxDepth = 32

// Extractor applies patterns to documents. It holds no per-document state,
// so extracting the same document twice yields equal results.
//
// Unresolved selectors are a normal outcome: the property takes its Default
// and the key is still written. A selector that resolves to nil passes nil
// through and skips the transform chain.
type Extractor struct {
	exec     *Executor
	metrics  *metricz.Registry
	tracer   *tracez.Tracer
	maxDepth int
}

// ExtractorOption configures an Extractor.
type ExtractorOption func(*Extractor)

// WithMaxDepth sets the deepest property nesting accepted. Values below one
// restore DefaultMaxDepth.
func WithMaxDepth(n int) ExtractorOption {
	return func(x *Extractor) { x.maxDepth = n }
}

// NewExtractor creates an Extractor that runs property transforms on exec.
// A nil exec gets an executor over an empty registry.
func NewExtractor(exec *Executor, opts ...ExtractorOption) *Extractor {
	if exec == nil {
		exec = NewExecutor(nil)
	}
	metrics := metricz.New()
	metrics.Counter(ExtractPropertiesTotal)
	metrics.Counter(ExtractMissingTotal)
	metrics.Gauge(ExtractDurationMs)

	x := &Extractor{
		exec:     exec,
		metrics:  metrics,
		tracer:   tracez.New(),
		maxDepth: DefaultMaxDepth,
	}
	for _, opt := range opts {
		opt(x)
	}
	if x.maxDepth < 1 {
		x.maxDepth = DefaultMaxDepth
	}
	return x
}

// Extract applies pattern to doc. The keys of the result follow the order
// the properties are declared in; a repeated name keeps its first position
// and the last value.
func (x *Extractor) Extract(ctx context.Context, doc any, pattern Pattern) (result *Object, err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	start := x.exec.clock.Now()
	ctx, span := x.tracer.StartSpan(ctx, ExtractRunSpan)
	span.SetTag(ExtractTagProperties, strconv.Itoa(len(pattern.Properties)))
	defer func() {
		x.metrics.Gauge(ExtractDurationMs).Set(float64(x.exec.clock.Since(start).Milliseconds()))
		if err != nil {
			span.SetTag(ExtractTagSuccess, "false")
			span.SetTag(ExtractTagError, err.Error())
		} else {
			span.SetTag(ExtractTagSuccess, "true")
		}
		span.Finish()
	}()

	return x.object(ctx, doc, pattern.Properties, "", 1)
}

// ExtractProperty applies a single property to doc and returns its value.
func (x *Extractor) ExtractProperty(ctx context.Context, doc any, spec PropertySpec) (any, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	return x.property(ctx, doc, spec, spec.Name, 1)
}

func (x *Extractor) object(ctx context.Context, node any, props []PropertySpec, parent string, depth int) (*Object, error) {
	if depth > x.maxDepth {
		return nil, &ExtractError{
			Property: parent,
			Err:      fmt.Errorf("%w: %d levels", ErrMaxDepth, x.maxDepth),
		}
	}
	out := NewObject()
	for _, spec := range props {
		path := spec.Name
		if parent != "" {
			path = parent + "." + spec.Name
		}
		v, err := x.property(ctx, node, spec, path, depth)
		if err != nil {
			return nil, err
		}
		out.Set(spec.Name, v)
	}
	return out, nil
}

func (x *Extractor) property(ctx context.Context, node any, spec PropertySpec, path string, depth int) (any, error) {
	fail := func(err error) error {
		var extractErr *ExtractError
		if errors.As(err, &extractErr) {
			return err
		}
		return &ExtractError{Property: path, Selector: spec.Selector, Err: err}
	}

	if spec.Name == "" {
		return nil, fail(fmt.Errorf("%w: property without a name", ErrMalformedSpec))
	}
	if !spec.Type.valid() {
		return nil, fail(fmt.Errorf("%w: unknown type %q", ErrMalformedSpec, spec.Type))
	}
	x.metrics.Counter(ExtractPropertiesTotal).Inc()
	x.exec.logger.Debug("extracting property", "property", path, "selector", spec.Selector)

	target, ok := node, true
	if spec.Selector != "" {
		target, ok = Resolve(node, spec.Selector)
	}
	if !ok || IsMissing(target) {
		x.metrics.Counter(ExtractMissingTotal).Inc()
		if spec.Required {
			return nil, fail(ErrPathRequired)
		}
		return Clone(spec.Default), nil
	}

	if spec.Filter != nil {
		if elems, isSeq := asSequence(target); isSeq {
			target = applyFilter(elems, spec.Filter)
		}
	}

	var (
		v   any
		err error
	)
	if len(spec.Properties) > 0 {
		v, err = x.nested(ctx, target, spec, path, depth)
	} else {
		v, err = x.leaf(ctx, target, spec)
	}
	if err != nil {
		return nil, fail(err)
	}
	return v, nil
}

func (x *Extractor) nested(ctx context.Context, target any, spec PropertySpec, path string, depth int) (any, error) {
	if target == nil {
		return nil, nil
	}
	if elems, isSeq := asSequence(target); isSeq {
		if spec.Type == TypeScalar || spec.Type == TypeObject {
			return nil, fmt.Errorf("%w: %s property with nested properties resolved to a sequence", ErrMalformedSpec, spec.Type)
		}
		out := make([]any, len(elems))
		for i, elem := range elems {
			if IsMissing(elem) {
				x.metrics.Counter(ExtractMissingTotal).Inc()
				out[i] = Clone(spec.Default)
				continue
			}
			if elem == nil {
				continue
			}
			if !isMapping(elem) {
				return nil, fmt.Errorf("%w: element %d is %T, not a mapping", ErrMalformedSpec, i, elem)
			}
			obj, err := x.object(ctx, elem, spec.Properties, fmt.Sprintf("%s[%d]", path, i), depth+1)
			if err != nil {
				return nil, err
			}
			out[i] = obj
		}
		return out, nil
	}
	if !isMapping(target) {
		return nil, fmt.Errorf("%w: nested properties on %T", ErrMalformedSpec, target)
	}
	obj, err := x.object(ctx, target, spec.Properties, path, depth+1)
	if err != nil {
		return nil, err
	}
	if spec.Type == TypeArray {
		return []any{obj}, nil
	}
	return obj, nil
}

func (x *Extractor) leaf(ctx context.Context, target any, spec PropertySpec) (any, error) {
	if target == nil {
		return nil, nil
	}
	switch spec.Type {
	case TypeScalar:
		return x.transform(ctx, target, spec.Transform)
	case TypeObject:
		if !isMapping(target) {
			return nil, fmt.Errorf("%w: object property resolved to %T", ErrMalformedSpec, target)
		}
		return x.transform(ctx, target, spec.Transform)
	}

	elems, isSeq := asSequence(target)
	if !isSeq {
		if spec.Type != TypeArray {
			return x.transform(ctx, target, spec.Transform)
		}
		elems = []any{target}
	}
	out := make([]any, len(elems))
	for i, elem := range elems {
		if IsMissing(elem) {
			x.metrics.Counter(ExtractMissingTotal).Inc()
			out[i] = Clone(spec.Default)
			continue
		}
		v, err := x.transform(ctx, elem, spec.Transform)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

func (x *Extractor) transform(ctx context.Context, value any, chain Chain) (any, error) {
	if len(chain) == 0 || value == nil {
		return value, nil
	}
	res, err := x.exec.Run(ctx, chain, value)
	if err != nil {
		return nil, err
	}
	return res.Output, nil
}

func applyFilter(elems []any, f *Filter) []any {
	out := make([]any, 0, len(elems))
	for _, elem := range elems {
		v, ok := Resolve(elem, f.Field)
		if ok && looseEqual(v, f.Value) {
			out = append(out, elem)
		}
	}
	return out
}

func looseEqual(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return fa == fb
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}

// Metrics returns the metrics registry for this extractor.
func (x *Extractor) Metrics() *metricz.Registry {
	return x.metrics
}

// Tracer returns the tracer for this extractor.
func (x *Extractor) Tracer() *tracez.Tracer {
	return x.tracer
}

// Close gracefully shuts down observability components.
func (x *Extractor) Close() error {
	if x.tracer != nil {
		x.tracer.Close()
	}
	return nil
}
