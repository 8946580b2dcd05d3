package builtin

import (
	"context"
	"net/url"
	"regexp"

	"github.com/zoobzio/transformz"
)

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s.]+$`)

// Validators return their input when it is valid and nil otherwise, so a
// chain can follow them with a default or a branch.
func validationDescriptors() []transformz.Descriptor {
	return []transformz.Descriptor{
		{
			Name:       "email_validator",
			Category:   CategoryValidation,
			InputType:  "string",
			OutputType: "string",
			Validate:   isString,
			Compute: func(_ context.Context, v any, _ transformz.Options) (any, error) {
				if emailPattern.MatchString(v.(string)) {
					return v, nil
				}
				return nil, nil
			},
		},
		{
			Name:       "url_validator",
			Category:   CategoryValidation,
			InputType:  "string",
			OutputType: "string",
			Params: []transformz.Param{
				{Name: "schemes", Type: "list"},
			},
			Validate: isString,
			Compute: func(_ context.Context, v any, opts transformz.Options) (any, error) {
				if validURL(v.(string), opts["schemes"]) {
					return v, nil
				}
				return nil, nil
			},
		},
	}
}

func validURL(s string, schemes any) bool {
	u, err := url.Parse(s)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return false
	}
	allowed, ok := schemes.([]any)
	if !ok || len(allowed) == 0 {
		return u.Scheme == "http" || u.Scheme == "https"
	}
	for _, scheme := range allowed {
		if scheme == u.Scheme {
			return true
		}
	}
	return false
}
