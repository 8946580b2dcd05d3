package builtin

import (
	"context"
	"fmt"

	"github.com/zoobzio/transformz"
)

func jsonDescriptors() []transformz.Descriptor {
	return []transformz.Descriptor{
		{
			Name:       "json_parse",
			Category:   CategoryJSON,
			InputType:  "string",
			OutputType: "any",
			Params: []transformz.Param{
				{Name: "strict", Type: "bool", Default: true},
			},
			Compute: func(_ context.Context, v any, opts transformz.Options) (any, error) {
				s, err := text("json_parse", v)
				if err != nil {
					return nil, err
				}
				parsed, err := transformz.DecodeOrderedJSON([]byte(s))
				if err != nil {
					if !opts.Bool("strict", true) {
						return v, nil
					}
					return nil, fmt.Errorf("json_parse: %w", err)
				}
				return parsed, nil
			},
		},
	}
}
