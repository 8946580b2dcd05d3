// Package document decodes JSON, YAML and HTML input into the nested model
// walked by transformz.Resolve: *transformz.Object for mappings, []any for
// sequences and plain scalars.
package document

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/zoobzio/transformz"
)

// Format names an input encoding.
type Format string

// Supported formats.
const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatHTML Format = "html"
)

// Error reports input that could not be decoded. It wraps transformz.ErrParse.
type Error struct {
	Err    error
	Format Format
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Format, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is transformz.ErrParse.
func (e *Error) Is(target error) bool {
	return target == transformz.ErrParse
}

// Parse decodes data in the given format.
func Parse(format Format, data []byte) (any, error) {
	switch format {
	case FormatJSON:
		return ParseJSON(data)
	case FormatYAML:
		return ParseYAML(data)
	case FormatHTML:
		return ParseHTML(data)
	}
	return nil, &Error{Format: format, Err: fmt.Errorf("unsupported format")}
}

// Detect guesses the format of a file from its name, falling back to the
// first non-space byte of its content.
func Detect(name string, data []byte) Format {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json":
		return FormatJSON
	case ".yaml", ".yml":
		return FormatYAML
	case ".html", ".htm":
		return FormatHTML
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return FormatJSON
	}
	switch trimmed[0] {
	case '{', '[', '"':
		return FormatJSON
	case '<':
		return FormatHTML
	}
	return FormatYAML
}

// ParseJSON decodes a JSON document, keeping object key order.
func ParseJSON(data []byte) (any, error) {
	v, err := transformz.DecodeOrderedJSON(data)
	if err != nil {
		return nil, &Error{Format: FormatJSON, Err: err}
	}
	return v, nil
}
