package builtin

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/zoobzio/transformz"
)

// LastRegexMatchKey is the scope key under which regex stores the groups of
// its last match.
const LastRegexMatchKey = "last_regex_match"

func textDescriptors() []transformz.Descriptor {
	return []transformz.Descriptor{
		{
			Name:       "strip",
			Category:   CategoryText,
			InputType:  "string",
			OutputType: "string",
			Validate:   isString,
			Compute: func(_ context.Context, v any, _ transformz.Options) (any, error) {
				return strings.TrimSpace(v.(string)), nil
			},
		},
		{
			Name:       "lowercase",
			Category:   CategoryText,
			InputType:  "string",
			OutputType: "string",
			Validate:   isString,
			Compute: func(_ context.Context, v any, _ transformz.Options) (any, error) {
				return strings.ToLower(v.(string)), nil
			},
		},
		{
			Name:       "uppercase",
			Category:   CategoryText,
			InputType:  "string",
			OutputType: "string",
			Validate:   isString,
			Compute: func(_ context.Context, v any, _ transformz.Options) (any, error) {
				return strings.ToUpper(v.(string)), nil
			},
		},
		{
			Name:       "truncate",
			Category:   CategoryText,
			InputType:  "string",
			OutputType: "string",
			Params: []transformz.Param{
				{Name: "length", Type: "int", Default: 50},
				{Name: "suffix", Type: "string", Default: "..."},
			},
			Validate: isString,
			Compute:  truncate,
		},
		{
			Name:       "replace",
			Category:   CategoryText,
			InputType:  "string",
			OutputType: "string",
			Params: []transformz.Param{
				{Name: "old", Type: "string", Default: ""},
				{Name: "new", Type: "string", Default: ""},
			},
			Validate: isString,
			Compute: func(_ context.Context, v any, opts transformz.Options) (any, error) {
				old := opts.String("old", "")
				if old == "" {
					return v, nil
				}
				return strings.ReplaceAll(v.(string), old, opts.String("new", "")), nil
			},
		},
		{
			Name:       "regex",
			Category:   CategoryText,
			InputType:  "string",
			OutputType: "string",
			Params: []transformz.Param{
				{Name: "pattern", Type: "string"},
				{Name: "template", Type: "string"},
			},
			Validate: isString,
			Compute:  regex,
		},
		{
			Name:       "split",
			Category:   CategoryText,
			InputType:  "string",
			OutputType: "list",
			Params: []transformz.Param{
				{Name: "delimiter", Type: "string", Default: ","},
				{Name: "trim", Type: "bool", Default: false},
			},
			Validate: isString,
			Compute: func(_ context.Context, v any, opts transformz.Options) (any, error) {
				s := v.(string)
				if s == "" {
					return []any{}, nil
				}
				parts := strings.Split(s, opts.String("delimiter", ","))
				trim := opts.Bool("trim", false)
				out := make([]any, len(parts))
				for i, p := range parts {
					if trim {
						p = strings.TrimSpace(p)
					}
					out[i] = p
				}
				return out, nil
			},
		},
		{
			Name:       "join",
			Category:   CategoryText,
			InputType:  "list",
			OutputType: "string",
			Params: []transformz.Param{
				{Name: "separator", Type: "string", Default: ","},
			},
			Compute: join,
		},
		{
			Name:       "contains",
			Category:   CategoryText,
			InputType:  "string",
			OutputType: "bool",
			Params: []transformz.Param{
				{Name: "substring", Type: "string", Default: ""},
			},
			Validate: isString,
			Compute: func(_ context.Context, v any, opts transformz.Options) (any, error) {
				return strings.Contains(v.(string), opts.String("substring", "")), nil
			},
		},
	}
}

// truncate shortens a string to length runes, the suffix included.
// A length shorter than the suffix keeps only the leading part of the suffix.
func truncate(_ context.Context, v any, opts transformz.Options) (any, error) {
	s := []rune(v.(string))
	length := opts.Int("length", 50)
	if length < 0 {
		return nil, fmt.Errorf("truncate length %d is negative", length)
	}
	if len(s) <= length {
		return v, nil
	}
	suffix := []rune(opts.String("suffix", "..."))
	if len(suffix) >= length {
		return string(suffix[:length]), nil
	}
	return string(s[:length-len(suffix)]) + string(suffix), nil
}

// regex returns the first capture group of the first match, the whole match
// when the pattern has no groups, or the template with {n} replaced by group
// n. Input without a match is returned unchanged.
func regex(ctx context.Context, v any, opts transformz.Options) (any, error) {
	pattern := opts.String("pattern", "")
	if pattern == "" {
		return nil, fmt.Errorf("regex needs a pattern")
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("regex pattern %q: %w", pattern, err)
	}
	s := v.(string)
	match := re.FindStringSubmatch(s)
	if match == nil {
		return s, nil
	}

	if scope := transformz.ScopeFromContext(ctx); scope != nil {
		groups := make([]any, len(match))
		for i, g := range match {
			groups[i] = g
		}
		scope.Set(LastRegexMatchKey, groups)
	}

	if tmpl := opts.String("template", ""); tmpl != "" {
		for i := 1; i < len(match); i++ {
			tmpl = strings.ReplaceAll(tmpl, "{"+strconv.Itoa(i)+"}", match[i])
		}
		return tmpl, nil
	}
	if len(match) > 1 {
		return match[1], nil
	}
	return match[0], nil
}

func join(_ context.Context, v any, opts transformz.Options) (any, error) {
	sep := opts.String("separator", ",")
	switch s := v.(type) {
	case []string:
		return strings.Join(s, sep), nil
	case []any:
		parts := make([]string, len(s))
		for i, e := range s {
			if str, ok := e.(string); ok {
				parts[i] = str
				continue
			}
			parts[i] = fmt.Sprint(e)
		}
		return strings.Join(parts, sep), nil
	}
	return nil, fmt.Errorf("%w: join expects a list, got %T", transformz.ErrValidation, v)
}
