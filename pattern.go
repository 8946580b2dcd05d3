package transformz

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// PropertyType shapes the value a property produces.
type PropertyType string

// Property types. The empty type is inferred from the resolved target: a
// sequence is mapped element-wise, anything else is transformed whole.
const (
	TypeInferred PropertyType = ""
	TypeScalar   PropertyType = "scalar"
	TypeArray    PropertyType = "array"
	TypeObject   PropertyType = "object"
)

func (t PropertyType) valid() bool {
	switch t {
	case TypeInferred, TypeScalar, TypeArray, TypeObject:
		return true
	}
	return false
}

// Filter keeps the elements of a sequence whose Field resolves to Value.
// Numbers compare by value regardless of their Go type. An empty Field
// compares the element itself.
type Filter struct {
	Value any    `json:"value" yaml:"value"`
	Field string `json:"field" yaml:"field"`
}

// PropertySpec describes one output key of a pattern.
type PropertySpec struct {
	Default    any            `json:"default,omitempty" yaml:"default,omitempty"`
	Filter     *Filter        `json:"filter,omitempty" yaml:"filter,omitempty"`
	Name       string         `json:"name" yaml:"name"`
	Selector   string         `json:"selector,omitempty" yaml:"selector,omitempty"`
	Type       PropertyType   `json:"type,omitempty" yaml:"type,omitempty"`
	Transform  Chain          `json:"transform,omitempty" yaml:"transform,omitempty"`
	Properties []PropertySpec `json:"properties,omitempty" yaml:"properties,omitempty"`
	Required   bool           `json:"required,omitempty" yaml:"required,omitempty"`
}

// Pattern is the root of a property tree.
type Pattern struct {
	Properties []PropertySpec `json:"properties" yaml:"properties"`
}

// ParsePattern decodes a JSON pattern.
func ParsePattern(data []byte) (Pattern, error) {
	var p Pattern
	if err := json.Unmarshal(data, &p); err != nil {
		return Pattern{}, fmt.Errorf("%w: pattern: %w", ErrParse, err)
	}
	return p, nil
}

// ParsePatternYAML decodes a YAML pattern.
func ParsePatternYAML(data []byte) (Pattern, error) {
	var p Pattern
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Pattern{}, fmt.Errorf("%w: pattern: %w", ErrParse, err)
	}
	return p, nil
}
