// Package testing provides test utilities for transformz-based applications.
//
// It includes mock transformers, assertion helpers and chaos tools that
// inject failures and latency into real transformers.
//
// Example usage:
//
//	func TestMyChain(t *testing.T) {
//		reg := transformz.NewRegistry()
//		mock := ztesting.NewMockTransformer(t, "enrich").WithReturn("enriched", nil)
//		mock.Register(reg)
//
//		exec := transformz.NewExecutor(reg)
//		res, err := exec.Run(context.Background(), transformz.Chain{transformz.Name("enrich")}, "input")
//		if err != nil {
//			t.Fatal(err)
//		}
//		ztesting.AssertCalled(t, mock, 1)
//		ztesting.AssertCalledWith(t, mock, "input")
//	}
package testing

import (
	"context"
	"errors"
	"fmt"
	mathrand "math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/zoobzio/clockz"
	"golang.org/x/sync/errgroup"

	"github.com/zoobzio/transformz"
)

// MockTransformer is a configurable transformer for tests. It records calls
// and returns a configured value, by default its input.
type MockTransformer struct { //nolint:govet // fieldalignment: Test helper struct optimized for functionality over memory efficiency
	t           *testing.T
	name        string
	category    string
	callCount   int64
	lastInput   any
	lastOptions transformz.Options
	returnVal   any
	returnErr   error
	returnSet   bool
	fn          transformz.ComputeFunc
	validate    transformz.ValidateFunc
	delay       time.Duration
	panicMsg    string
	async       bool
	params      []transformz.Param
	mu          sync.RWMutex
	callHistory []MockCall
	maxHistory  int
}

// MockCall represents a single call to the mock transformer.
type MockCall struct {
	Input     any
	Options   transformz.Options
	Timestamp time.Time
	Context   context.Context
}

// NewMockTransformer creates a mock named name in the "mock" category.
func NewMockTransformer(t *testing.T, name string) *MockTransformer {
	return &MockTransformer{
		t:          t,
		name:       name,
		category:   "mock",
		maxHistory: 100, // Keep last 100 calls by default
	}
}

// WithReturn configures the mock to return specific values.
func (m *MockTransformer) WithReturn(val any, err error) *MockTransformer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.returnVal = val
	m.returnErr = err
	m.returnSet = true
	return m
}

// WithFunc makes the mock compute its result with fn. It takes precedence
// over WithReturn.
func (m *MockTransformer) WithFunc(fn transformz.ComputeFunc) *MockTransformer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fn = fn
	return m
}

// WithValidate sets the descriptor's input validator.
func (m *MockTransformer) WithValidate(fn transformz.ValidateFunc) *MockTransformer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.validate = fn
	return m
}

// WithDelay makes every call wait d, or until ctx is done.
func (m *MockTransformer) WithDelay(d time.Duration) *MockTransformer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
	return m
}

// WithPanic makes every call panic with msg.
func (m *MockTransformer) WithPanic(msg string) *MockTransformer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.panicMsg = msg
	return m
}

// WithAsync marks the descriptor as async.
func (m *MockTransformer) WithAsync(async bool) *MockTransformer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.async = async
	return m
}

// WithCategory sets the descriptor's category.
func (m *MockTransformer) WithCategory(category string) *MockTransformer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.category = category
	return m
}

// WithParams sets the descriptor's declared parameters.
func (m *MockTransformer) WithParams(params ...transformz.Param) *MockTransformer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.params = params
	return m
}

// WithHistorySize sets how many calls are kept. Zero disables history.
func (m *MockTransformer) WithHistorySize(size int) *MockTransformer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.maxHistory = size
	if size == 0 {
		m.callHistory = nil
	} else if len(m.callHistory) > size {
		m.callHistory = m.callHistory[len(m.callHistory)-size:]
	}
	return m
}

// Name returns the transformer name.
func (m *MockTransformer) Name() string {
	return m.name
}

// Descriptor returns the capability record of the mock.
func (m *MockTransformer) Descriptor() transformz.Descriptor {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return transformz.Descriptor{
		Name:       m.name,
		Category:   m.category,
		InputType:  "any",
		OutputType: "any",
		Params:     m.params,
		Async:      m.async,
		Validate:   m.validate,
		Compute:    m.compute,
	}
}

// Register adds the mock to reg and returns the mock.
func (m *MockTransformer) Register(reg *transformz.Registry) *MockTransformer {
	reg.Register(m.Descriptor())
	return m
}

func (m *MockTransformer) compute(ctx context.Context, value any, opts transformz.Options) (any, error) {
	atomic.AddInt64(&m.callCount, 1)

	m.mu.Lock()
	m.lastInput = value
	m.lastOptions = opts
	if m.maxHistory > 0 {
		m.callHistory = append(m.callHistory, MockCall{
			Input:     value,
			Options:   opts,
			Timestamp: time.Now(),
			Context:   ctx,
		})
		if len(m.callHistory) > m.maxHistory {
			m.callHistory = m.callHistory[1:] // Remove oldest
		}
	}

	delay := m.delay
	fn := m.fn
	returnVal, returnErr, returnSet := m.returnVal, m.returnErr, m.returnSet
	panicMsg := m.panicMsg
	m.mu.Unlock()

	if panicMsg != "" {
		panic(panicMsg)
	}

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if fn != nil {
		return fn(ctx, value, opts)
	}
	if !returnSet {
		return value, nil
	}
	return returnVal, returnErr
}

// CallCount returns the number of times the mock has computed.
func (m *MockTransformer) CallCount() int {
	return int(atomic.LoadInt64(&m.callCount))
}

// LastInput returns the input from the most recent call.
func (m *MockTransformer) LastInput() any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastInput
}

// LastOptions returns the options from the most recent call.
func (m *MockTransformer) LastOptions() transformz.Options {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastOptions
}

// CallHistory returns a copy of the recorded calls.
func (m *MockTransformer) CallHistory() []MockCall {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.maxHistory == 0 {
		return nil
	}
	history := make([]MockCall, len(m.callHistory))
	copy(history, m.callHistory)
	return history
}

// Reset clears all call tracking.
func (m *MockTransformer) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	atomic.StoreInt64(&m.callCount, 0)
	m.lastInput = nil
	m.lastOptions = nil
	m.callHistory = nil
}

// Assertion Helpers

// AssertCalled verifies that the mock computed exactly expectedCalls times.
func AssertCalled(t *testing.T, mock *MockTransformer, expectedCalls int) {
	t.Helper()
	actualCalls := mock.CallCount()
	if actualCalls != expectedCalls {
		t.Errorf("expected mock transformer %s to be called %d times, but was called %d times",
			mock.name, expectedCalls, actualCalls)
	}
}

// AssertNotCalled verifies that the mock never computed.
func AssertNotCalled(t *testing.T, mock *MockTransformer) {
	t.Helper()
	AssertCalled(t, mock, 0)
}

// AssertCalledWith verifies the input of the most recent call.
func AssertCalledWith(t *testing.T, mock *MockTransformer, expectedInput any) {
	t.Helper()
	if mock.CallCount() == 0 {
		t.Errorf("expected mock transformer %s to be called with input %v, but it was never called",
			mock.name, expectedInput)
		return
	}
	if diff := cmp.Diff(expectedInput, mock.LastInput()); diff != "" {
		t.Errorf("mock transformer %s input mismatch (-want +got):\n%s", mock.name, diff)
	}
}

// AssertCalledBetween verifies that the mock computed between minCalls and maxCalls times.
func AssertCalledBetween(t *testing.T, mock *MockTransformer, minCalls, maxCalls int) {
	t.Helper()
	actualCalls := mock.CallCount()
	if actualCalls < minCalls || actualCalls > maxCalls {
		t.Errorf("expected mock transformer %s to be called between %d and %d times, but was called %d times",
			mock.name, minCalls, maxCalls, actualCalls)
	}
}

// ErrInjected marks failures a ChaosTransformer produced on purpose. The
// executor classifies it as a transformation failure.
var ErrInjected = errors.New("injected failure")

// ChaosConfig sets the rates at which a ChaosTransformer misbehaves. Rates
// are probabilities in [0, 1]. Latency is drawn uniformly from
// [LatencyMin, LatencyMax] and waited on Clock, so a fake clock makes it
// controllable. A zero Seed picks one at random.
type ChaosConfig struct {
	Clock       clockz.Clock
	LatencyMin  time.Duration
	LatencyMax  time.Duration
	FailureRate float64
	TimeoutRate float64
	PanicRate   float64
	Seed        int64
}

// ChaosTransformer wraps a descriptor and makes its Compute fail, stall or
// panic at configured rates. The wrapped Compute runs only when no fault was
// drawn, so Stats().Passed() counts real computations.
type ChaosTransformer struct {
	wrapped transformz.Descriptor
	config  ChaosConfig
	rng     *mathrand.Rand
	stats   chaosCounters
	mu      sync.Mutex
}

type chaosCounters struct {
	calls, failures, timeouts, panics atomic.Int64
}

// fault is what a single call draws.
type fault int

const (
	noFault fault = iota
	panicFault
	timeoutFault
	failureFault
)

// NewChaosTransformer wraps d. The returned transformer keeps d's name, so
// registering it replaces d.
func NewChaosTransformer(d transformz.Descriptor, config ChaosConfig) *ChaosTransformer {
	if config.Clock == nil {
		config.Clock = clockz.RealClock
	}
	seed := config.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &ChaosTransformer{
		wrapped: d,
		config:  config,
		rng:     mathrand.New(mathrand.NewSource(seed)), //nolint:gosec // reproducible fault injection
	}
}

// Descriptor returns the wrapped descriptor with faults injected into Compute.
func (c *ChaosTransformer) Descriptor() transformz.Descriptor {
	d := c.wrapped
	d.Compute = c.compute
	return d
}

// Register adds the chaos transformer to reg and returns it.
func (c *ChaosTransformer) Register(reg *transformz.Registry) *ChaosTransformer {
	reg.Register(c.Descriptor())
	return c
}

// draw picks the latency and fault for one call under the rng lock.
func (c *ChaosTransformer) draw() (time.Duration, fault) {
	c.mu.Lock()
	defer c.mu.Unlock()

	latency := c.config.LatencyMin
	if spread := c.config.LatencyMax - c.config.LatencyMin; spread > 0 {
		latency += time.Duration(c.rng.Int63n(int64(spread)))
	}
	switch r := c.rng.Float64(); {
	case r < c.config.PanicRate:
		return latency, panicFault
	case r < c.config.PanicRate+c.config.TimeoutRate:
		return latency, timeoutFault
	case r < c.config.PanicRate+c.config.TimeoutRate+c.config.FailureRate:
		return latency, failureFault
	}
	return latency, noFault
}

func (c *ChaosTransformer) compute(ctx context.Context, value any, opts transformz.Options) (any, error) {
	c.stats.calls.Add(1)
	latency, f := c.draw()

	if latency > 0 {
		select {
		case <-c.config.Clock.After(latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	switch f {
	case panicFault:
		c.stats.panics.Add(1)
		panic(fmt.Sprintf("chaos: %s panicked", c.wrapped.Name))
	case timeoutFault:
		c.stats.timeouts.Add(1)
		return nil, fmt.Errorf("chaos: %s: %w", c.wrapped.Name, context.DeadlineExceeded)
	case failureFault:
		c.stats.failures.Add(1)
		return nil, fmt.Errorf("%w: %s", ErrInjected, c.wrapped.Name)
	}

	if c.wrapped.Compute == nil {
		return value, nil
	}
	return c.wrapped.Compute(ctx, value, opts)
}

// Stats returns the faults injected so far.
func (c *ChaosTransformer) Stats() ChaosStats {
	return ChaosStats{
		Calls:    c.stats.calls.Load(),
		Failures: c.stats.failures.Load(),
		Timeouts: c.stats.timeouts.Load(),
		Panics:   c.stats.panics.Load(),
	}
}

// ChaosStats counts the calls a ChaosTransformer saw by outcome.
type ChaosStats struct {
	Calls    int64
	Failures int64
	Timeouts int64
	Panics   int64
}

// Passed returns the number of calls that reached the wrapped Compute.
func (s ChaosStats) Passed() int64 {
	return s.Calls - s.Failures - s.Timeouts - s.Panics
}

// FaultRate returns the share of calls that drew a fault.
func (s ChaosStats) FaultRate() float64 {
	if s.Calls == 0 {
		return 0
	}
	return float64(s.Calls-s.Passed()) / float64(s.Calls)
}

func (s ChaosStats) String() string {
	return fmt.Sprintf("%d calls: %d passed, %d failed, %d timed out, %d panicked",
		s.Calls, s.Passed(), s.Failures, s.Timeouts, s.Panics)
}

// WaitForCalls polls mock until it has computed at least n times or timeout
// elapses, and reports whether the count was reached.
func WaitForCalls(mock *MockTransformer, n int, timeout time.Duration) bool {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	deadline := time.After(timeout)
	for mock.CallCount() < n {
		select {
		case <-ticker.C:
		case <-deadline:
			return mock.CallCount() >= n
		}
	}
	return true
}

// RunConcurrently runs chain over every input on its own goroutine and
// returns the results in input order. Failed runs are reported through t and
// leave their result's Output as the executor returned it.
func RunConcurrently(t *testing.T, exec *transformz.Executor, chain transformz.Chain, inputs []any) []*transformz.Result {
	t.Helper()

	results := make([]*transformz.Result, len(inputs))
	var g errgroup.Group
	for i, input := range inputs {
		g.Go(func() error {
			res, err := exec.Run(context.Background(), chain, input)
			results[i] = res
			if err != nil {
				return fmt.Errorf("input %d: %w", i, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Errorf("concurrent run failed: %v", err)
	}
	return results
}
