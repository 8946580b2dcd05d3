package builtin

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/zoobzio/transformz"
)

// The sha256 transformer is async so the executor can abandon it on
// cancellation when it is fed large inputs.
func cryptoDescriptors() []transformz.Descriptor {
	return []transformz.Descriptor{
		{
			Name:       "sha256",
			Category:   CategoryCrypto,
			InputType:  "string",
			OutputType: "string",
			Async:      true,
			Compute: func(ctx context.Context, v any, _ transformz.Options) (any, error) {
				s, err := text("sha256", v)
				if err != nil {
					return nil, err
				}
				if err := ctx.Err(); err != nil {
					return nil, err
				}
				sum := sha256.Sum256([]byte(s))
				return hex.EncodeToString(sum[:]), nil
			},
		},
	}
}
