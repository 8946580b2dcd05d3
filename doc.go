// Package transformz provides named, composable data transformers and a
// declarative pattern engine for pulling structured records out of nested
// documents.
//
// # Overview
//
// A Registry maps transformer names to Descriptors. Chains of Steps refer to
// transformers by name and are run by an Executor, which folds a value
// through the chain left to right, validating and computing each leaf and
// recording a trace of intermediate outputs. Composition steps nest chains:
//
//   - Sub / Chain: Run a nested chain
//   - Branch: Choose between two chains with a predicate
//   - Parallel: Run steps concurrently on copies of the input and merge the outputs
//   - Fallback: Try alternatives until one succeeds
//   - Retry: Retry a step with exponential backoff
//   - Timeout: Bound a step by a deadline
//
// Chains can be written in Go or compiled from JSON/YAML notation with
// Compile, and encoded back with EncodeChain.
//
// # Path Resolution
//
// Resolve navigates documents built from maps, slices and Objects with a
// small selector grammar: dot-separated keys, "key[n]" indexing and a single
// "[*]" wildcard that maps the rest of the path over a sequence. An
// unresolved path reports false, which is distinct from a path that resolves
// to nil.
//
// # Pattern Extraction
//
// An Extractor applies a Pattern, a tree of PropertySpecs, to a document.
// Each property selects a target, optionally filters and transforms it, and
// writes one key of an ordered Object. Nested properties produce nested
// Objects, one per element when the target is a sequence.
//
// # Usage Example
//
//	reg := transformz.NewRegistry()
//	builtin.Register(reg)
//
//	exec := transformz.NewExecutor(reg)
//	defer exec.Close()
//
//	res, err := exec.Run(ctx, transformz.Chain{
//	    transformz.Name("strip"),
//	    transformz.With("truncate", transformz.Options{"length": 5}),
//	}, " Hello World! ")
//	if err != nil {
//	    var stepErr *transformz.StepError
//	    if errors.As(err, &stepErr) {
//	        log.Printf("step %s at index %d failed", stepErr.Step, stepErr.Index)
//	    }
//	    return err
//	}
//	fmt.Println(res.Output) // He...
//
// # Errors
//
// Every failure wraps one of the package sentinels (ErrUnknownTransformer,
// ErrValidation, ErrTransformation, ErrParse and the rest) so callers can
// classify it with errors.Is. Chain failures are *StepError values carrying
// the failing step, its index and its path through nested steps; extraction
// failures are *ExtractError values carrying the property path and selector.
package transformz
