package locator

import (
	"fmt"
	"strings"
)

// Attempt records what happened when one rule was tried.
type Attempt struct {
	Rule     string
	Selector string
	Result   string
}

// ElementNotFound is returned when every rule of a strategy was exhausted
// before the timeout elapsed.
type ElementNotFound struct {
	Target string
	Arg    string
	Tried  []Attempt
	Passes int
	Err    error // context error, when resolution was cut short
}

func (e *ElementNotFound) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "element %q not found", e.Target)
	if e.Arg != "" {
		fmt.Fprintf(&b, " (arg %q)", e.Arg)
	}
	fmt.Fprintf(&b, " after %d pass(es)", e.Passes)
	if len(e.Tried) > 0 {
		parts := make([]string, len(e.Tried))
		for i, a := range e.Tried {
			parts[i] = fmt.Sprintf("%s: %s", a.Rule, a.Result)
		}
		fmt.Fprintf(&b, "; tried [%s]", strings.Join(parts, ", "))
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *ElementNotFound) Unwrap() error {
	return e.Err
}

// TriedRules returns the names of the rules tried in the last pass.
func (e *ElementNotFound) TriedRules() []string {
	names := make([]string, len(e.Tried))
	for i, a := range e.Tried {
		names[i] = a.Rule
	}
	return names
}
