// Package builtin provides a small set of leaf transformers for text,
// validation, numbers, JSON, HTML and hashing.
//
//	reg := transformz.NewRegistry()
//	builtin.Register(reg)
package builtin

import (
	"fmt"

	"github.com/zoobzio/transformz"
)

// Categories.
const (
	CategoryText       = "text"
	CategoryValidation = "validation"
	CategoryNumeric    = "numeric"
	CategoryJSON       = "json"
	CategoryHTML       = "html"
	CategoryCrypto     = "crypto"
)

// Descriptors returns every built-in transformer, grouped by category.
func Descriptors() []transformz.Descriptor {
	var all []transformz.Descriptor
	all = append(all, textDescriptors()...)
	all = append(all, validationDescriptors()...)
	all = append(all, numericDescriptors()...)
	all = append(all, jsonDescriptors()...)
	all = append(all, htmlDescriptors()...)
	all = append(all, cryptoDescriptors()...)
	return all
}

// Register adds every built-in transformer to reg.
func Register(reg *transformz.Registry) {
	for _, d := range Descriptors() {
		reg.Register(d)
	}
}

// NewRegistry returns a registry holding the built-in transformers.
func NewRegistry() *transformz.Registry {
	reg := transformz.NewRegistry()
	Register(reg)
	return reg
}

func isString(v any) bool {
	_, ok := v.(string)
	return ok
}

// text returns v as a string for transformers that read strings.
func text(name string, v any) (string, error) {
	switch s := v.(type) {
	case string:
		return s, nil
	case []byte:
		return string(s), nil
	}
	return "", fmt.Errorf("%w: %s expects a string, got %T", transformz.ErrValidation, name, v)
}
