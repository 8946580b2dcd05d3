package transformz

import (
	"maps"
	"slices"
)

// Cloner is implemented by values that deep-copy themselves. Parallel hands
// every branch its own copy of the input, so custom types carried through a
// chain should implement it when they hold mutable state.
type Cloner interface {
	CloneValue() any
}

// Clone returns a deep copy of v. Maps, slices and Objects produced by the
// document decoders are copied recursively; scalars are returned as is.
func Clone(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case Cloner:
		return t.CloneValue()
	case *Object:
		return t.Clone()
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = Clone(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = Clone(e)
		}
		return out
	case []map[string]any:
		out := make([]map[string]any, len(t))
		for i, e := range t {
			out[i] = Clone(e).(map[string]any)
		}
		return out
	case []*Object:
		out := make([]*Object, len(t))
		for i, e := range t {
			out[i] = e.Clone()
		}
		return out
	case map[string]string:
		return maps.Clone(t)
	case []string:
		return slices.Clone(t)
	case []int:
		return slices.Clone(t)
	case []float64:
		return slices.Clone(t)
	case []byte:
		return slices.Clone(t)
	}
	return v
}
