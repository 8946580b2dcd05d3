package builtin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"

	"github.com/zoobzio/transformz"
)

func htmlDescriptors() []transformz.Descriptor {
	return []transformz.Descriptor{
		{
			Name:       "strip_html_tags",
			Category:   CategoryHTML,
			InputType:  "string",
			OutputType: "string",
			Compute: func(_ context.Context, v any, _ transformz.Options) (any, error) {
				s, err := text("strip_html_tags", v)
				if err != nil {
					return nil, err
				}
				return stripTags(s)
			},
		},
	}
}

// stripTags keeps the text tokens of s, skipping script and style bodies.
func stripTags(s string) (string, error) {
	z := html.NewTokenizer(strings.NewReader(s))
	var b strings.Builder
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			if err := z.Err(); !errors.Is(err, io.EOF) {
				return "", fmt.Errorf("%w: %w", transformz.ErrParse, err)
			}
			return strings.TrimSpace(b.String()), nil
		case html.StartTagToken:
			if name, _ := z.TagName(); rawText(string(name)) {
				skip++
			}
		case html.EndTagToken:
			if name, _ := z.TagName(); rawText(string(name)) && skip > 0 {
				skip--
			}
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
			}
		}
	}
}

func rawText(tag string) bool {
	return tag == "script" || tag == "style"
}
