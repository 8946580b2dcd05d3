package transformz

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/zoobzio/clockz"
)

func TestTimeout(t *testing.T) {
	t.Run("Completes Within Timeout", func(t *testing.T) {
		exec := NewExecutor(testRegistry())
		defer exec.Close()

		res, err := exec.Run(context.Background(), Chain{Timeout(Name("async_upper"), time.Second)}, "x")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Output != "X" {
			t.Errorf("expected X, got %v", res.Output)
		}
		if res.Trace[0].Step != "async_upper" {
			t.Errorf("expected timeout to take the inner identifier, got %s", res.Trace[0].Step)
		}
	})

	t.Run("Deadline On Fake Clock", func(t *testing.T) {
		clock := clockz.NewFakeClock()
		exec := NewExecutor(testRegistry(), WithClock(clock))
		defer exec.Close()

		done := make(chan struct{})
		var res *Result
		var err error
		go func() {
			defer close(done)
			res, err = exec.Run(context.Background(), Chain{Name("strip"), Timeout(Name("block"), 100*time.Millisecond)}, " x ")
		}()

		// Allow the goroutine to start
		time.Sleep(10 * time.Millisecond)

		clock.Advance(100 * time.Millisecond)
		clock.BlockUntilReady()
		time.Sleep(10 * time.Millisecond)

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("test timed out")
		}

		var stepErr *StepError
		if !errors.As(err, &stepErr) {
			t.Fatalf("expected StepError, got %v", err)
		}
		if !stepErr.IsTimeout() {
			t.Errorf("expected timeout error, got %v", err)
		}
		if stepErr.Index != 1 || stepErr.Step != "block" {
			t.Errorf("expected block/1, got %s/%d", stepErr.Step, stepErr.Index)
		}
		if res.Output != "x" {
			t.Errorf("expected last good value x, got %v", res.Output)
		}
	})

	t.Run("Inner Failure Passes Through", func(t *testing.T) {
		exec := NewExecutor(testRegistry())
		defer exec.Close()

		_, err := exec.Run(context.Background(), Chain{Timeout(Name("fail"), time.Second)}, "x")
		if !errors.Is(err, ErrTransformation) {
			t.Errorf("expected ErrTransformation, got %v", err)
		}
	})
}
