package document

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"

	"github.com/zoobzio/transformz"
)

// HTML elements become Objects:
//
//   - attributes are stored under "@name"
//   - the element's own text, whitespace-collapsed, under "#text"
//   - child elements under their tag name, as an Object for a single child
//     and as a []any of Objects when the tag repeats
//
// so "body.ul.li[*].#text" lists the items of the first list in the body.
const (
	AttrPrefix = "@"
	TextKey    = "#text"
)

// ParseHTML parses an HTML document and returns its <html> element.
func ParseHTML(data []byte) (any, error) {
	root, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, &Error{Format: FormatHTML, Err: err}
	}
	for n := root.FirstChild; n != nil; n = n.NextSibling {
		if n.Type == html.ElementNode {
			return element(n), nil
		}
	}
	return transformz.NewObject(), nil
}

func element(n *html.Node) *transformz.Object {
	obj := transformz.NewObject()
	for _, a := range n.Attr {
		obj.Set(AttrPrefix+a.Key, a.Val)
	}

	var text []string
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.TextNode:
			if t := strings.Join(strings.Fields(c.Data), " "); t != "" {
				text = append(text, t)
			}
		case html.ElementNode:
			child := element(c)
			existing, seen := obj.Get(c.Data)
			switch {
			case !seen:
				obj.Set(c.Data, child)
			case isList(existing):
				obj.Set(c.Data, append(existing.([]any), child))
			default:
				obj.Set(c.Data, []any{existing, child})
			}
		}
	}
	if len(text) > 0 {
		obj.Set(TextKey, strings.Join(text, " "))
	}
	return obj
}

func isList(v any) bool {
	_, ok := v.([]any)
	return ok
}
