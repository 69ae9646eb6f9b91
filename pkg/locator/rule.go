package locator

import (
	"fmt"
	"strconv"
	"strings"
)

// RuleKind identifies how a rule matches elements.
type RuleKind string

const (
	// RuleCSS matches by attribute or structure
	RuleCSS RuleKind = "css"

	// RuleText matches an element tag by its visible text
	RuleText RuleKind = "text"

	// RuleRole matches by ARIA role and accessible name
	RuleRole RuleKind = "role"
)

// ArgPlaceholder is replaced by Query.Arg when a rule is compiled.
const ArgPlaceholder = "{arg}"

// Rule is one way of finding a semantic target.
type Rule struct {
	// Name identifies the rule in diagnostics
	Name string `yaml:"name"`

	// Kind selects which of the fields below apply
	Kind RuleKind `yaml:"kind"`

	// CSS is the selector for css rules
	CSS string `yaml:"css,omitempty"`

	// Tag and Text describe text rules. Exact requires the whole visible
	// text to equal Text instead of containing it.
	Tag   string `yaml:"tag,omitempty"`
	Text  string `yaml:"text,omitempty"`
	Exact bool   `yaml:"exact,omitempty"`

	// Role and Label describe role rules. Label is the accessible name.
	Role  string `yaml:"role,omitempty"`
	Label string `yaml:"label,omitempty"`
}

// Validate checks that the fields required by the rule kind are present.
func (r Rule) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("rule name is required")
	}
	switch r.Kind {
	case RuleCSS:
		if r.CSS == "" {
			return fmt.Errorf("rule %q: css selector is required", r.Name)
		}
	case RuleText:
		if r.Tag == "" || r.Text == "" {
			return fmt.Errorf("rule %q: text rules need both tag and text", r.Name)
		}
	case RuleRole:
		if r.Role == "" {
			return fmt.Errorf("rule %q: role is required", r.Name)
		}
	default:
		return fmt.Errorf("rule %q: unknown kind %q (must be 'css', 'text', or 'role')", r.Name, r.Kind)
	}
	return nil
}

// Compile renders the rule as a selector string understood by the browser
// driver, substituting arg for the {arg} placeholder.
func (r Rule) Compile(arg string) string {
	switch r.Kind {
	case RuleText:
		text := substitute(r.Text, arg)
		if r.Exact {
			return fmt.Sprintf("%s:text-is(%s)", r.Tag, strconv.Quote(text))
		}
		return fmt.Sprintf("%s:has-text(%s)", r.Tag, strconv.Quote(text))
	case RuleRole:
		if r.Label == "" {
			return "role=" + r.Role
		}
		return fmt.Sprintf("role=%s[name=%s]", r.Role, strconv.Quote(substitute(r.Label, arg)))
	default:
		return substituteCSS(r.CSS, arg)
	}
}

// substitute replaces the placeholder in free text.
func substitute(s, arg string) string {
	return strings.ReplaceAll(s, ArgPlaceholder, arg)
}

// substituteCSS replaces the placeholder inside a CSS selector, where the
// argument usually sits between double quotes.
func substituteCSS(s, arg string) string {
	escaped := strings.ReplaceAll(arg, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `"`, `\"`)
	return strings.ReplaceAll(s, ArgPlaceholder, escaped)
}
