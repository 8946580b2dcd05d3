package builtin

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/zoobzio/transformz"
)

func numericDescriptors() []transformz.Descriptor {
	return []transformz.Descriptor{
		{
			Name:       "int",
			Category:   CategoryNumeric,
			InputType:  "any",
			OutputType: "int",
			Compute: func(_ context.Context, v any, _ transformz.Options) (any, error) {
				f, err := number(v)
				if err != nil {
					return nil, err
				}
				return int(math.Trunc(f)), nil
			},
		},
		{
			Name:       "float",
			Category:   CategoryNumeric,
			InputType:  "any",
			OutputType: "float",
			Compute: func(_ context.Context, v any, _ transformz.Options) (any, error) {
				return number(v)
			},
		},
		{
			Name:       "round",
			Category:   CategoryNumeric,
			InputType:  "number",
			OutputType: "float",
			Params: []transformz.Param{
				{Name: "decimals", Type: "int", Default: 0},
			},
			Compute: func(_ context.Context, v any, opts transformz.Options) (any, error) {
				f, err := number(v)
				if err != nil {
					return nil, err
				}
				scale := math.Pow(10, float64(opts.Int("decimals", 0)))
				return math.Round(f*scale) / scale, nil
			},
		},
	}
}

// number converts strings, bools and every numeric kind to float64.
func number(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case bool:
		if n {
			return 1, nil
		}
		return 0, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, fmt.Errorf("%q is not a number", n)
		}
		return f, nil
	}
	return 0, fmt.Errorf("%w: cannot convert %T to a number", transformz.ErrValidation, v)
}
