package transformz

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Compile turns step notation into a Chain. The notation is what JSON or
// YAML decoding produces:
//
//	"strip"                                          // bare name
//	{"function": "truncate", "options": {"length": 5}}
//	{"function": "truncate", "length": 5}            // inline options
//	["strip", "lowercase"]                           // nested chain
//	{"branch": {"when": step, "then": [...], "else": [...]}}
//	{"parallel": [...], "merge": "dict" | "list" | "first"}
//	{"fallback": [...]}
//	{"retry": step, "attempts": 3, "backoff": "10ms"}
//	{"timeout": step, "duration": "1s"}
//
// "name" is accepted in place of "function". Once a mapping names a function
// every other field is an option, including fields such as "timeout" or
// "retry" that would otherwise select a combinator. A list compiles to a chain of
// its elements; any other value compiles to a one-step chain. Step values
// may be mixed into the notation and are used as is.
func Compile(notation any) (Chain, error) {
	if list, ok := notation.([]any); ok {
		return compileList(list)
	}
	if c, ok := notation.(Chain); ok {
		return c, nil
	}
	step, err := compileStep(notation)
	if err != nil {
		return nil, err
	}
	return Chain{step}, nil
}

// EncodeChain returns the notation of chain. Steps holding Go code fail with
// ErrNotSerializable.
func EncodeChain(chain Chain) ([]any, error) {
	v, err := chain.encode()
	if err != nil {
		return nil, err
	}
	return v.([]any), nil
}

func compileList(list []any) (Chain, error) {
	chain := make(Chain, len(list))
	for i, item := range list {
		step, err := compileStep(item)
		if err != nil {
			return nil, fmt.Errorf("index %d: %w", i, err)
		}
		chain[i] = step
	}
	return chain, nil
}

func compileStep(v any) (Step, error) {
	switch t := v.(type) {
	case Step:
		return t, nil
	case string:
		if t == "" {
			return nil, fmt.Errorf("%w: empty step name", ErrInvalidStep)
		}
		return Name(t), nil
	case []any:
		return compileList(t)
	}

	m, ok := asMap(v)
	if !ok {
		return nil, fmt.Errorf("%w: unsupported notation %T", ErrInvalidStep, v)
	}

	if isCall(m) {
		return compileCall(m)
	}

	switch {
	case has(m, "branch"):
		return compileBranch(m["branch"])
	case has(m, "parallel"):
		return compileParallel(m)
	case has(m, "fallback"):
		list, ok := asList(m["fallback"])
		if !ok {
			return nil, fmt.Errorf("%w: fallback must be a list", ErrInvalidStep)
		}
		steps, err := compileList(list)
		if err != nil {
			return nil, fmt.Errorf("fallback: %w", err)
		}
		return Fallback(steps...), nil
	case has(m, "retry"):
		inner, err := compileStep(m["retry"])
		if err != nil {
			return nil, fmt.Errorf("retry: %w", err)
		}
		opts := Options(m)
		return Retry(inner, opts.Int("attempts", 3), opts.Duration("backoff", 0)), nil
	case has(m, "timeout"):
		inner, err := compileStep(m["timeout"])
		if err != nil {
			return nil, fmt.Errorf("timeout: %w", err)
		}
		d := Options(m).Duration("duration", 0)
		if d <= 0 {
			return nil, fmt.Errorf("%w: timeout needs a positive duration", ErrInvalidStep)
		}
		return Timeout(inner, d), nil
	}
	return compileCall(m)
}

// combinators are the keys that make a mapping a composition step.
var combinators = []string{"branch", "parallel", "fallback", "retry", "timeout"}

// isCall reports whether m is a leaf call. A "function" key always names a
// call, so its other fields are options even when they share a combinator
// key. "name" names a call only when no combinator key is present.
func isCall(m map[string]any) bool {
	if _, ok := m["function"].(string); ok {
		return true
	}
	if _, ok := m["name"].(string); !ok {
		return false
	}
	for _, key := range combinators {
		if has(m, key) {
			return false
		}
	}
	return true
}

func compileCall(m map[string]any) (Step, error) {
	name, _ := m["function"].(string)
	if name == "" {
		name, _ = m["name"].(string)
	}
	if name == "" {
		return nil, fmt.Errorf("%w: step needs a function name", ErrInvalidStep)
	}

	opts := Options{}
	for k, val := range m {
		if k == "function" || k == "name" || k == "options" {
			continue
		}
		opts[k] = val
	}
	if raw, present := m["options"]; present && raw != nil {
		explicit, ok := asMap(raw)
		if !ok {
			return nil, fmt.Errorf("%w: options of %q must be a mapping", ErrInvalidStep, name)
		}
		for k, val := range explicit {
			opts[k] = val
		}
	}
	if len(opts) == 0 {
		return Name(name), nil
	}
	return With(name, opts), nil
}

func compileBranch(v any) (Step, error) {
	m, ok := asMap(v)
	if !ok {
		return nil, fmt.Errorf("%w: branch must be a mapping", ErrInvalidStep)
	}
	if !has(m, "when") {
		return nil, fmt.Errorf("%w: branch needs a when step", ErrInvalidStep)
	}
	when, err := compileStep(m["when"])
	if err != nil {
		return nil, fmt.Errorf("branch when: %w", err)
	}
	then, err := compilePath(m, "then")
	if err != nil {
		return nil, err
	}
	otherwise, err := compilePath(m, "else")
	if err != nil {
		return nil, err
	}
	return Branch(WhenStep(when), then, otherwise), nil
}

func compilePath(m map[string]any, key string) (Chain, error) {
	raw, present := m[key]
	if !present || raw == nil {
		return nil, nil
	}
	chain, err := Compile(raw)
	if err != nil {
		return nil, fmt.Errorf("branch %s: %w", key, err)
	}
	return chain, nil
}

func compileParallel(m map[string]any) (Step, error) {
	list, ok := asList(m["parallel"])
	if !ok {
		return nil, fmt.Errorf("%w: parallel must be a list", ErrInvalidStep)
	}
	steps, err := compileList(list)
	if err != nil {
		return nil, fmt.Errorf("parallel: %w", err)
	}
	merge := MergeDict
	switch name := Options(m).String("merge", "dict"); name {
	case "dict":
	case "list":
		merge = MergeList
	case "first":
		merge = MergeFirst
	default:
		return nil, fmt.Errorf("%w: unknown merge strategy %q", ErrInvalidStep, name)
	}
	return Parallel(merge, steps...), nil
}

func has(m map[string]any, key string) bool {
	_, ok := m[key]
	return ok
}

func asMap(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case map[string]any:
		return t, true
	case Options:
		return t, true
	case *Object:
		if t == nil {
			return nil, false
		}
		return t.Map(), true
	}
	return nil, false
}

func asList(v any) ([]any, bool) {
	switch t := v.(type) {
	case []any:
		return t, true
	case Chain:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out, true
	}
	return nil, false
}

// MarshalJSON encodes the chain as notation.
func (c Chain) MarshalJSON() ([]byte, error) {
	v, err := c.encode()
	if err != nil {
		return nil, err
	}
	return json.Marshal(v)
}

// UnmarshalJSON compiles notation into the chain.
func (c *Chain) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %w", ErrParse, err)
	}
	if raw == nil {
		*c = nil
		return nil
	}
	chain, err := Compile(raw)
	if err != nil {
		return err
	}
	*c = chain
	return nil
}

// MarshalYAML encodes the chain as notation.
func (c Chain) MarshalYAML() (any, error) {
	return c.encode()
}

// UnmarshalYAML compiles notation into the chain.
func (c *Chain) UnmarshalYAML(node *yaml.Node) error {
	var raw any
	if err := node.Decode(&raw); err != nil {
		return fmt.Errorf("%w: %w", ErrParse, err)
	}
	if raw == nil {
		*c = nil
		return nil
	}
	chain, err := Compile(raw)
	if err != nil {
		return err
	}
	*c = chain
	return nil
}
