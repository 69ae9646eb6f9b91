package locator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/entrhq/deepdiver/pkg/logging"
)

// DefaultBackoff is the pause between resolution passes.
const DefaultBackoff = 250 * time.Millisecond

// Query is a semantic element request: a catalog target plus an optional
// argument substituted into the target's rules.
type Query struct {
	Target string
	Arg    string
}

// Q is shorthand for building a Query.
func Q(target string, arg ...string) Query {
	q := Query{Target: target}
	if len(arg) > 0 {
		q.Arg = arg[0]
	}
	return q
}

// IsZero reports whether the query names no target.
func (q Query) IsZero() bool {
	return q.Target == ""
}

func (q Query) String() string {
	if q.Arg == "" {
		return q.Target
	}
	return fmt.Sprintf("%s(%s)", q.Target, q.Arg)
}

// Resolver resolves semantic targets against a Catalog.
type Resolver struct {
	catalog *Catalog
	logger  *logging.Logger
	backoff time.Duration
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithLogger sets the resolver's logger.
func WithLogger(l *logging.Logger) ResolverOption {
	return func(r *Resolver) {
		r.logger = l
	}
}

// WithBackoff sets the pause between resolution passes.
func WithBackoff(d time.Duration) ResolverOption {
	return func(r *Resolver) {
		if d > 0 {
			r.backoff = d
		}
	}
}

// NewResolver creates a resolver over catalog.
func NewResolver(catalog *Catalog, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		catalog: catalog,
		logger:  logging.Nop(),
		backoff: DefaultBackoff,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Catalog returns the resolver's catalog.
func (r *Resolver) Catalog() *Catalog {
	return r.catalog
}

// Resolve returns the first present and interactable element for q within
// scope. Rules are tried in declared order on every pass; passes repeat until
// timeout elapses. At least one pass is always made.
func (r *Resolver) Resolve(ctx context.Context, q Query, scope Scope, timeout time.Duration) (Element, error) {
	els, err := r.resolve(ctx, q, scope, timeout, checkInteractable, true)
	if err != nil {
		return nil, err
	}
	return els[0], nil
}

// ResolveAttached is like Resolve but only requires the element to be
// present. It serves hidden file inputs and read-only containers.
func (r *Resolver) ResolveAttached(ctx context.Context, q Query, scope Scope, timeout time.Duration) (Element, error) {
	els, err := r.resolve(ctx, q, scope, timeout, checkAttached, true)
	if err != nil {
		return nil, err
	}
	return els[0], nil
}

// ResolveAll returns every visible element matched by the first rule that
// matches anything visible.
func (r *Resolver) ResolveAll(ctx context.Context, q Query, scope Scope, timeout time.Duration) ([]Element, error) {
	return r.resolve(ctx, q, scope, timeout, checkVisible, false)
}

// Present makes a single pass and reports whether any rule currently
// matches a visible element.
func (r *Resolver) Present(q Query, scope Scope) (bool, error) {
	strategy, err := r.catalog.Strategy(q.Target)
	if err != nil {
		return false, err
	}
	for _, rule := range strategy.Rules {
		els, _, _ := r.tryRule(rule, q.Arg, scope, checkVisible, true)
		if len(els) > 0 {
			return true, nil
		}
	}
	return false, nil
}

// check inspects one candidate and returns a non-empty reason when it must
// be skipped.
type check func(Element) string

func (r *Resolver) resolve(ctx context.Context, q Query, scope Scope, timeout time.Duration, accept check, firstOnly bool) ([]Element, error) {
	strategy, err := r.catalog.Strategy(q.Target)
	if err != nil {
		return nil, err
	}

	deadline := time.Now().Add(timeout)
	passes := 0
	var attempts []Attempt

	for {
		passes++
		attempts = attempts[:0]
		for _, rule := range strategy.Rules {
			els, selector, result := r.tryRule(rule, q.Arg, scope, accept, firstOnly)
			if len(els) > 0 {
				r.logger.Debugf("resolved %s via rule %q (%s) on pass %d", q, rule.Name, selector, passes)
				return els, nil
			}
			attempts = append(attempts, Attempt{Rule: rule.Name, Selector: selector, Result: result})
		}

		if err := ctx.Err(); err != nil {
			return nil, r.notFound(q, attempts, passes, err)
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, r.notFound(q, attempts, passes, nil)
		}

		wait := r.backoff
		if remaining < wait {
			wait = remaining
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, r.notFound(q, attempts, passes, ctx.Err())
		case <-timer.C:
		}
	}
}

func (r *Resolver) notFound(q Query, attempts []Attempt, passes int, cause error) error {
	err := &ElementNotFound{
		Target: q.Target,
		Arg:    q.Arg,
		Tried:  append([]Attempt(nil), attempts...),
		Passes: passes,
		Err:    cause,
	}
	r.logger.Warnf("%v", err)
	return err
}

// tryRule evaluates a single rule and returns accepted elements, the
// compiled selector and a short description of the outcome.
func (r *Resolver) tryRule(rule Rule, arg string, scope Scope, accept check, firstOnly bool) ([]Element, string, string) {
	selector := rule.Compile(arg)
	candidates, err := scope.Find(selector)
	if err != nil {
		return nil, selector, fmt.Sprintf("error: %v", err)
	}
	if len(candidates) == 0 {
		return nil, selector, "no match"
	}

	var accepted []Element
	var reasons []string
	for _, el := range candidates {
		if reason := accept(el); reason != "" {
			reasons = append(reasons, reason)
			continue
		}
		accepted = append(accepted, el)
		if firstOnly {
			break
		}
	}
	if len(accepted) > 0 {
		return accepted, selector, "matched"
	}
	return nil, selector, fmt.Sprintf("%d match(es), none usable: %s", len(candidates), strings.Join(dedupe(reasons), "; "))
}

func checkAttached(Element) string {
	return ""
}

func checkVisible(el Element) string {
	visible, err := el.IsVisible()
	if err != nil {
		return fmt.Sprintf("visibility check failed: %v", err)
	}
	if !visible {
		return "hidden"
	}
	return ""
}

// checkInteractable requires the element to be visible, enabled and not
// covered by another element.
func checkInteractable(el Element) string {
	if reason := checkVisible(el); reason != "" {
		return reason
	}
	enabled, err := el.IsEnabled()
	if err != nil {
		return fmt.Sprintf("enabled check failed: %v", err)
	}
	if !enabled {
		return "disabled"
	}
	ariaDisabled, err := el.Attribute("aria-disabled")
	if err == nil && strings.EqualFold(ariaDisabled, "true") {
		return "disabled"
	}
	obscured, err := el.IsObscured()
	if err != nil {
		return fmt.Sprintf("hit test failed: %v", err)
	}
	if obscured {
		return "obscured"
	}
	return ""
}

func dedupe(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := values[:0]
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
