package transformz

import (
	"context"
	"errors"
	"math/rand"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/zoobzio/clockz"
)

func sleepy(label string, d time.Duration, out any) Step {
	return Func(label, func(ctx context.Context, _ any) (any, error) {
		select {
		case <-time.After(d):
			return out, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
}

func TestParallel(t *testing.T) {
	t.Run("List Keeps Declared Order", func(t *testing.T) {
		exec := NewExecutor(testRegistry())
		defer exec.Close()

		step := Parallel(MergeList,
			sleepy("a", 30*time.Millisecond, "a"),
			sleepy("b", 10*time.Millisecond, "b"),
			sleepy("c", 0, "c"),
		)
		res, err := exec.Run(context.Background(), Chain{step}, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if diff := cmp.Diff([]any{"a", "b", "c"}, res.Output); diff != "" {
			t.Errorf("order mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("Merge Order Ignores Completion Order", func(t *testing.T) {
		labels := []string{"a", "b", "c", "d", "e"}
		for seed := int64(1); seed <= 5; seed++ {
			delays := rand.New(rand.NewSource(seed)).Perm(len(labels))
			for _, merge := range []MergeStrategy{MergeList, MergeDict} {
				clock := clockz.NewFakeClock()
				exec := NewExecutor(testRegistry(), WithClock(clock))

				steps := make([]Step, len(labels))
				for i, label := range labels {
					d := time.Duration(delays[i]+1) * 10 * time.Millisecond
					steps[i] = Func(label, func(ctx context.Context, _ any) (any, error) {
						select {
						case <-clock.After(d):
							return label, nil
						case <-ctx.Done():
							return nil, ctx.Err()
						}
					})
				}

				done := make(chan *Result, 1)
				go func() {
					res, err := exec.Run(context.Background(), Chain{Parallel(merge, steps...)}, nil)
					if err != nil {
						t.Errorf("seed %d %s: unexpected error: %v", seed, merge, err)
					}
					done <- res
				}()

				var res *Result
				deadline := time.After(2 * time.Second)
			wait:
				for {
					select {
					case res = <-done:
						break wait
					case <-deadline:
						t.Fatalf("seed %d %s: parallel did not complete", seed, merge)
					case <-time.After(5 * time.Millisecond):
						clock.Advance(10 * time.Millisecond)
						clock.BlockUntilReady()
					}
				}
				exec.Close()

				if merge.String() == "list" {
					want := []any{"a", "b", "c", "d", "e"}
					if diff := cmp.Diff(want, res.Output); diff != "" {
						t.Errorf("seed %d delays %v: order mismatch (-want +got):\n%s", seed, delays, diff)
					}
					continue
				}
				obj, ok := res.Output.(*Object)
				if !ok {
					t.Fatalf("seed %d: expected *Object, got %T", seed, res.Output)
				}
				if diff := cmp.Diff(labels, obj.Keys()); diff != "" {
					t.Errorf("seed %d delays %v: keys mismatch (-want +got):\n%s", seed, delays, diff)
				}
			}
		}
	})

	t.Run("Dict Keys", func(t *testing.T) {
		exec := NewExecutor(testRegistry())
		defer exec.Close()

		anon := Func("", func(_ context.Context, v any) (any, error) { return v, nil })
		step := Parallel(MergeDict, Name("upper"), Name("strip"), Name("upper"), anon)
		res, err := exec.Run(context.Background(), Chain{step}, " x ")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		obj, ok := res.Output.(*Object)
		if !ok {
			t.Fatalf("expected *Object, got %T", res.Output)
		}
		if diff := cmp.Diff([]string{"upper", "strip", "upper_2", "3"}, obj.Keys()); diff != "" {
			t.Errorf("keys mismatch (-want +got):\n%s", diff)
		}
		want := map[string]any{"upper": " X ", "strip": "x", "upper_2": " X ", "3": " x "}
		if diff := cmp.Diff(want, obj.Map()); diff != "" {
			t.Errorf("values mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("Dict Keys Never Collide", func(t *testing.T) {
		exec := NewExecutor(testRegistry())
		defer exec.Close()

		constant := func(label string, v any) Step {
			return Func(label, func(context.Context, any) (any, error) { return v, nil })
		}
		step := Parallel(MergeDict, constant("a", 1), constant("a_2", 2), constant("a", 3), constant("a_2", 4))
		res, err := exec.Run(context.Background(), Chain{step}, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		obj := res.Output.(*Object)
		if diff := cmp.Diff([]string{"a", "a_2", "a_2_2", "a_2_3"}, obj.Keys()); diff != "" {
			t.Errorf("keys mismatch (-want +got):\n%s", diff)
		}
		want := map[string]any{"a": 1, "a_2": 2, "a_2_2": 3, "a_2_3": 4}
		if diff := cmp.Diff(want, obj.Map()); diff != "" {
			t.Errorf("values mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("Empty Parallel Is Invalid", func(t *testing.T) {
		exec := NewExecutor(testRegistry())
		defer exec.Close()

		for _, merge := range []MergeStrategy{MergeDict, MergeList, MergeFirst} {
			_, err := exec.Run(context.Background(), Chain{Parallel(merge)}, "x")
			if !errors.Is(err, ErrInvalidStep) {
				t.Errorf("%s: expected ErrInvalidStep, got %v", merge, err)
			}
		}
	})

	t.Run("Zero Value Strategy Is Dict", func(t *testing.T) {
		exec := NewExecutor(testRegistry())
		defer exec.Close()

		res, err := exec.Run(context.Background(), Chain{Parallel(MergeStrategy{}, Name("upper"))}, "x")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, ok := res.Output.(*Object); !ok {
			t.Errorf("expected *Object, got %T", res.Output)
		}
	})

	t.Run("First Success In Declared Order", func(t *testing.T) {
		exec := NewExecutor(testRegistry())
		defer exec.Close()

		step := Parallel(MergeFirst,
			Name("fail"),
			sleepy("slow", 20*time.Millisecond, "slow"),
			sleepy("fast", 0, "fast"),
		)
		res, err := exec.Run(context.Background(), Chain{step}, "x")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Output != "slow" {
			t.Errorf("expected slow, got %v", res.Output)
		}
	})

	t.Run("First Fails When All Fail", func(t *testing.T) {
		exec := NewExecutor(testRegistry())
		defer exec.Close()

		_, err := exec.Run(context.Background(), Chain{Parallel(MergeFirst, Name("fail"), Name("upper"))}, 5)
		if !errors.Is(err, ErrAllFailed) {
			t.Fatalf("expected ErrAllFailed, got %v", err)
		}
		if !errors.Is(err, ErrTransformation) || !errors.Is(err, ErrValidation) {
			t.Errorf("expected both branch causes, got %v", err)
		}
	})

	t.Run("Custom Merge", func(t *testing.T) {
		exec := NewExecutor(testRegistry())
		defer exec.Close()

		count := MergeWith(func(o *Object) (any, error) { return o.Len(), nil })
		res, err := exec.Run(context.Background(), Chain{Parallel(count, Name("upper"), Name("strip"))}, "x")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Output != 2 {
			t.Errorf("expected 2, got %v", res.Output)
		}

		broken := MergeWith(func(*Object) (any, error) { return nil, errors.New("no") })
		_, err = exec.Run(context.Background(), Chain{Parallel(broken, Name("upper"))}, "x")
		if !errors.Is(err, ErrTransformation) {
			t.Errorf("expected ErrTransformation, got %v", err)
		}
	})

	t.Run("Failure Discards Results And Cancels Siblings", func(t *testing.T) {
		exec := NewExecutor(testRegistry())
		defer exec.Close()

		writer := Func("writer", func(ctx context.Context, v any) (any, error) {
			ScopeFromContext(ctx).Set("k", v)
			return v, nil
		})
		step := Parallel(MergeList, writer, Name("block"), Name("fail"))

		start := time.Now()
		res, err := exec.Run(context.Background(), Chain{step}, "x")
		if time.Since(start) > time.Second {
			t.Error("expected blocked sibling to be canceled")
		}
		var stepErr *StepError
		if !errors.As(err, &stepErr) {
			t.Fatalf("expected StepError, got %v", err)
		}
		if diff := cmp.Diff([]string{"parallel", "fail"}, stepErr.Path); diff != "" {
			t.Errorf("path mismatch (-want +got):\n%s", diff)
		}
		if stepErr.Index != 2 {
			t.Errorf("expected index 2, got %d", stepErr.Index)
		}
		if diff := cmp.Diff([]int{0, 2}, stepErr.Positions); diff != "" {
			t.Errorf("positions mismatch (-want +got):\n%s", diff)
		}
		if len(res.Scope.Keys()) != 0 {
			t.Errorf("expected no merged scope keys, got %v", res.Scope.Keys())
		}
	})

	t.Run("Branches Get Isolated Copies", func(t *testing.T) {
		exec := NewExecutor(testRegistry())
		defer exec.Close()

		mutate := Func("mutate", func(_ context.Context, v any) (any, error) {
			m := v.(map[string]any)
			m["k"] = "changed"
			return m["k"], nil
		})
		read := Func("read", func(_ context.Context, v any) (any, error) {
			time.Sleep(10 * time.Millisecond)
			return v.(map[string]any)["k"], nil
		})

		input := map[string]any{"k": "orig"}
		res, err := exec.Run(context.Background(), Chain{Parallel(MergeList, mutate, read)}, input)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if diff := cmp.Diff([]any{"changed", "orig"}, res.Output); diff != "" {
			t.Errorf("output mismatch (-want +got):\n%s", diff)
		}
		if input["k"] != "orig" {
			t.Errorf("expected caller input untouched, got %v", input["k"])
		}
	})

	t.Run("Branch Scopes Merge In Declared Order", func(t *testing.T) {
		exec := NewExecutor(testRegistry())
		defer exec.Close()

		writer := func(label string, d time.Duration) Step {
			return Func(label, func(ctx context.Context, _ any) (any, error) {
				time.Sleep(d)
				scope := ScopeFromContext(ctx)
				if scope.Has("sibling") {
					return nil, errors.New("saw sibling write")
				}
				scope.Set("sibling", label)
				return label, nil
			})
		}

		res, err := exec.Run(context.Background(), Chain{Parallel(MergeList, writer("a", 20*time.Millisecond), writer("b", 0))}, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if diff := cmp.Diff([]string{"parallel_0.sibling", "parallel_1.sibling"}, res.Scope.Keys()); diff != "" {
			t.Errorf("keys mismatch (-want +got):\n%s", diff)
		}
		if v, _ := res.Scope.Get("parallel_1.sibling"); v != "b" {
			t.Errorf("expected b, got %v", v)
		}
	})

	t.Run("Parallel Limit", func(t *testing.T) {
		exec := NewExecutor(testRegistry(), WithParallelLimit(1))
		defer exec.Close()

		var active, peak int32
		tracked := Func("tracked", func(_ context.Context, v any) (any, error) {
			n := atomic.AddInt32(&active, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&active, -1)
			return v, nil
		})

		_, err := exec.Run(context.Background(), Chain{Parallel(MergeList, tracked, tracked, tracked)}, 1)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if atomic.LoadInt32(&peak) != 1 {
			t.Errorf("expected at most 1 concurrent branch, got %d", peak)
		}
		if v := exec.Metrics().Counter(ParallelBranchesTotal).Value(); v != 3 {
			t.Errorf("expected 3 branches, got %f", v)
		}
	})

	t.Run("Nil Branch", func(t *testing.T) {
		exec := NewExecutor(testRegistry())
		defer exec.Close()

		_, err := exec.Run(context.Background(), Chain{Parallel(MergeList, Name("upper"), nil)}, "x")
		if !errors.Is(err, ErrInvalidStep) {
			t.Errorf("expected ErrInvalidStep, got %v", err)
		}
	})

	t.Run("Strategy Names", func(t *testing.T) {
		got := []string{MergeDict.String(), MergeList.String(), MergeFirst.String(), MergeWith(nil).String(), MergeStrategy{}.String()}
		if diff := cmp.Diff([]string{"dict", "list", "first", "custom", "dict"}, got); diff != "" {
			t.Errorf("names mismatch (-want +got):\n%s", diff)
		}
	})
}
