package transformz

import (
	"strconv"
	"strings"
)

// Mapping is implemented by document nodes that can be navigated by key.
type Mapping interface {
	Lookup(key string) (any, bool)
}

// missing marks an element of a wildcard result that did not resolve.
type missing struct{}

// Missing is placed in wildcard results at the positions of elements whose
// remaining path did not resolve, so results stay aligned with their input.
var Missing any = missing{}

// IsMissing reports whether v is the Missing marker.
func IsMissing(v any) bool {
	_, ok := v.(missing)
	return ok
}

func (missing) MarshalJSON() ([]byte, error) { return []byte("null"), nil }

func (missing) MarshalYAML() (any, error) { return nil, nil }

func (missing) String() string { return "<missing>" }

const wildcard = "[*]"

// Resolve walks doc along path and returns the value found there.
//
// The path grammar is a sequence of dot-separated keys. A key may carry an
// index suffix, "items[2]", selecting one element of the sequence stored under
// the key. The literal "[*]" maps the rest of the path over every element of
// the sequence reached so far:
//
//	Resolve(doc, "a.b[*].c") // [c of each element of a.b]
//
// The second return is false when the path does not resolve; a path that
// resolves to nil returns (nil, true). An empty path returns doc.
func Resolve(doc any, path string) (any, bool) {
	if i := strings.Index(path, wildcard); i >= 0 {
		return resolveWildcard(doc, path[:i], path[i+len(wildcard):])
	}
	current := doc
	for _, segment := range splitSegments(path) {
		var ok bool
		current, ok = resolveSegment(current, segment)
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func resolveWildcard(doc any, before, after string) (any, bool) {
	base := doc
	if before != "" {
		var ok bool
		base, ok = Resolve(doc, before)
		if !ok {
			return nil, false
		}
	}
	elems, ok := asSequence(base)
	if !ok {
		return nil, false
	}
	after = strings.TrimPrefix(after, ".")
	if after == "" {
		return elems, true
	}
	out := make([]any, len(elems))
	for i, elem := range elems {
		v, ok := Resolve(elem, after)
		if !ok {
			v = Missing
		}
		out[i] = v
	}
	return out, true
}

// splitSegments splits path on dots that are not inside brackets.
func splitSegments(path string) []string {
	if path == "" {
		return nil
	}
	var segments []string
	depth, start := 0, 0
	for i := 0; i < len(path); i++ {
		switch path[i] {
		case '[':
			depth++
		case ']':
			if depth > 0 {
				depth--
			}
		case '.':
			if depth == 0 {
				segments = append(segments, path[start:i])
				start = i + 1
			}
		}
	}
	return append(segments, path[start:])
}

func resolveSegment(current any, segment string) (any, bool) {
	key, index, indexed := parseIndexed(segment)
	if !indexed {
		return lookup(current, segment)
	}
	v := current
	if key != "" {
		var ok bool
		if v, ok = resolveSegment(current, key); !ok {
			return nil, false
		}
	}
	elems, ok := asSequence(v)
	if !ok || index < 0 || index >= len(elems) {
		return nil, false
	}
	return elems[index], true
}

// parseIndexed splits "key[n]" into key and n. The key may itself be
// indexed ("grid[1][0]") or empty ("[0]" indexes the current node).
func parseIndexed(segment string) (string, int, bool) {
	if !strings.HasSuffix(segment, "]") {
		return "", 0, false
	}
	open := strings.LastIndexByte(segment, '[')
	if open < 0 {
		return "", 0, false
	}
	n, err := strconv.Atoi(segment[open+1 : len(segment)-1])
	if err != nil {
		return "", 0, false
	}
	return segment[:open], n, true
}

func lookup(current any, key string) (any, bool) {
	switch m := current.(type) {
	case map[string]any:
		v, ok := m[key]
		return v, ok
	case *Object:
		return m.Get(key)
	case map[string]string:
		v, ok := m[key]
		return v, ok
	case Mapping:
		return m.Lookup(key)
	}
	return nil, false
}

// asSequence returns v as a []any when it is one of the supported sequence types.
func asSequence(v any) ([]any, bool) {
	switch s := v.(type) {
	case []any:
		return s, true
	case []string:
		return convert(s), true
	case []map[string]any:
		return convert(s), true
	case []*Object:
		return convert(s), true
	case []int:
		return convert(s), true
	case []float64:
		return convert(s), true
	}
	return nil, false
}

func convert[E any](s []E) []any {
	out := make([]any, len(s))
	for i, e := range s {
		out[i] = e
	}
	return out
}

func isMapping(v any) bool {
	switch v.(type) {
	case map[string]any, *Object, map[string]string, Mapping:
		return true
	}
	return false
}
