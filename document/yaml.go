package document

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/zoobzio/transformz"
)

// ParseYAML decodes the first document of a YAML stream. Mappings keep their
// key order; aliases are expanded.
func ParseYAML(data []byte) (any, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, &Error{Format: FormatYAML, Err: err}
	}
	if root.Kind == 0 {
		return nil, nil
	}
	v, err := fromNode(&root, 0)
	if err != nil {
		return nil, &Error{Format: FormatYAML, Err: err}
	}
	return v, nil
}

const maxAliasDepth = 64

func fromNode(n *yaml.Node, depth int) (any, error) {
	if depth > maxAliasDepth {
		return nil, fmt.Errorf("line %d: nesting too deep", n.Line)
	}
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return nil, nil
		}
		return fromNode(n.Content[0], depth+1)
	case yaml.MappingNode:
		obj := transformz.NewObject()
		for i := 0; i+1 < len(n.Content); i += 2 {
			key, val := n.Content[i], n.Content[i+1]
			if key.ShortTag() == "!!merge" {
				if err := mergeInto(obj, val, depth); err != nil {
					return nil, err
				}
				continue
			}
			v, err := fromNode(val, depth+1)
			if err != nil {
				return nil, err
			}
			obj.Set(key.Value, v)
		}
		return obj, nil
	case yaml.SequenceNode:
		out := make([]any, len(n.Content))
		for i, c := range n.Content {
			v, err := fromNode(c, depth+1)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case yaml.AliasNode:
		return fromNode(n.Alias, depth+1)
	case yaml.ScalarNode:
		var v any
		if err := n.Decode(&v); err != nil {
			return nil, fmt.Errorf("line %d: %w", n.Line, err)
		}
		return v, nil
	}
	return nil, fmt.Errorf("line %d: unsupported node kind %d", n.Line, n.Kind)
}

// mergeInto applies a "<<" merge key; explicit keys of obj win.
func mergeInto(obj *transformz.Object, n *yaml.Node, depth int) error {
	v, err := fromNode(n, depth+1)
	if err != nil {
		return err
	}
	sources := []any{v}
	if list, ok := v.([]any); ok {
		sources = list
	}
	for _, src := range sources {
		m, ok := src.(*transformz.Object)
		if !ok {
			return fmt.Errorf("line %d: merge value is %T, not a mapping", n.Line, src)
		}
		for _, k := range m.Keys() {
			if _, exists := obj.Get(k); !exists {
				val, _ := m.Get(k)
				obj.Set(k, val)
			}
		}
	}
	return nil
}
