package service

import (
	"strings"
	"unicode"
	"unicode/utf8"

	appErrors "github.com/unclebandit/campaign-dispatch/internal/errors"
	"github.com/unclebandit/campaign-dispatch/internal/model"
)

// Rendered is a subject/body pair with every placeholder substituted.
type Rendered struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// reservedValue resolves placeholder names that always come from the
// recipient, in both the English and Japanese spellings used by templates.
func reservedValue(name string, c model.Company) (string, bool) {
	switch name {
	case "name", "company_name", "会社名":
		return c.Name, true
	case "email", "メールアドレス":
		return c.Email, true
	case "industry", "業種":
		return c.Industry, true
	case "region", "地域":
		return c.Region, true
	}
	return "", false
}

// IsReserved reports whether name always resolves from the recipient record.
func IsReserved(name string) bool {
	_, ok := reservedValue(name, model.Company{})
	return ok
}

// TemplateEngine substitutes {placeholder} tokens in a single pass.
// Substituted values are never scanned again.
type TemplateEngine struct{}

func NewTemplateEngine() *TemplateEngine {
	return &TemplateEngine{}
}

// Render substitutes subject and body for one recipient. Reserved names take
// precedence over caller variables. A placeholder without a non-empty value
// fails with an unresolved placeholder error.
func (e *TemplateEngine) Render(subject, body string, recipient model.Company, variables map[string]string) (Rendered, error) {
	if err := e.Validate(subject, body); err != nil {
		return Rendered{}, err
	}
	lookup := func(name string) (string, bool) {
		if v, ok := reservedValue(name, recipient); ok {
			return v, v != ""
		}
		v, ok := variables[name]
		return v, ok && v != ""
	}

	renderedSubject, err := expand(subject, lookup)
	if err != nil {
		return Rendered{}, err
	}
	renderedBody, err := expand(body, lookup)
	if err != nil {
		return Rendered{}, err
	}
	return Rendered{Subject: renderedSubject, Body: renderedBody}, nil
}

// Validate checks that both patterns are usable at all.
func (e *TemplateEngine) Validate(subject, body string) error {
	switch {
	case strings.TrimSpace(subject) == "":
		return appErrors.NewMalformedPattern("subject is empty")
	case strings.TrimSpace(body) == "":
		return appErrors.NewMalformedPattern("body is empty")
	case !utf8.ValidString(subject):
		return appErrors.NewMalformedPattern("subject is not valid UTF-8")
	case !utf8.ValidString(body):
		return appErrors.NewMalformedPattern("body is not valid UTF-8")
	}
	return nil
}

// Placeholders lists the distinct placeholder names in the patterns, in
// order of first appearance.
func (e *TemplateEngine) Placeholders(patterns ...string) []string {
	seen := map[string]struct{}{}
	names := []string{}
	for _, p := range patterns {
		for i := 0; i < len(p); i++ {
			if p[i] != '{' {
				continue
			}
			name, end, ok := scanPlaceholder(p, i)
			if !ok {
				continue
			}
			if _, dup := seen[name]; !dup {
				seen[name] = struct{}{}
				names = append(names, name)
			}
			i = end - 1
		}
	}
	return names
}

func expand(pattern string, lookup func(string) (string, bool)) (string, error) {
	var b strings.Builder
	b.Grow(len(pattern))
	for i := 0; i < len(pattern); {
		if pattern[i] == '{' {
			if name, end, ok := scanPlaceholder(pattern, i); ok {
				v, found := lookup(name)
				if !found {
					return "", appErrors.NewUnresolvedPlaceholder(name)
				}
				b.WriteString(v)
				i = end
				continue
			}
		}
		b.WriteByte(pattern[i])
		i++
	}
	return b.String(), nil
}

// scanPlaceholder matches {name} at s[start]. end is the index just past the
// closing brace.
func scanPlaceholder(s string, start int) (name string, end int, ok bool) {
	for j := start + 1; j < len(s); {
		r, size := utf8.DecodeRuneInString(s[j:])
		if r == '}' {
			if j == start+1 {
				return "", 0, false
			}
			return s[start+1 : j], j + 1, true
		}
		if !isNameRune(r) {
			return "", 0, false
		}
		j += size
	}
	return "", 0, false
}

func isNameRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-'
}
