// Package interaction runs ordered UI protocols: each step resolves its
// target, performs an action and verifies the effect before the next step
// starts.
package interaction

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/entrhq/deepdiver/pkg/locator"
	"github.com/entrhq/deepdiver/pkg/logging"
)

const (
	// DefaultStepTimeout applies to steps that do not set their own.
	DefaultStepTimeout = 10 * time.Second

	defaultEffectPoll = 100 * time.Millisecond
)

// Sequencer executes protocols against a scope.
type Sequencer struct {
	resolver    *locator.Resolver
	logger      *logging.Logger
	stepTimeout time.Duration
	effectPoll  time.Duration
}

// Option configures a Sequencer.
type Option func(*Sequencer)

// WithLogger sets the sequencer's logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Sequencer) { s.logger = l }
}

// WithStepTimeout sets the default per-step timeout.
func WithStepTimeout(d time.Duration) Option {
	return func(s *Sequencer) {
		if d > 0 {
			s.stepTimeout = d
		}
	}
}

// WithEffectPoll sets how often effects are re-checked.
func WithEffectPoll(d time.Duration) Option {
	return func(s *Sequencer) {
		if d > 0 {
			s.effectPoll = d
		}
	}
}

// NewSequencer creates a sequencer resolving targets through resolver.
func NewSequencer(resolver *locator.Resolver, opts ...Option) *Sequencer {
	s := &Sequencer{
		resolver:    resolver,
		logger:      logging.Nop(),
		stepTimeout: DefaultStepTimeout,
		effectPoll:  defaultEffectPoll,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run executes p's steps strictly in order within scope. It stops at the
// first failure and returns it as a *StepFailed.
func (s *Sequencer) Run(ctx context.Context, p Protocol, scope locator.Scope) error {
	if err := p.Validate(); err != nil {
		return err
	}

	scopes := []locator.Scope{scope}
	for i, step := range p.Steps {
		if err := ctx.Err(); err != nil {
			return &StepFailed{Protocol: p.Name, Index: i, Step: step, Cause: err}
		}

		current := scopes[len(scopes)-1]
		if step.Action == ActionLeave {
			scopes = scopes[:len(scopes)-1]
			continue
		}

		el, skipped, err := s.run(ctx, step, current)
		if err != nil {
			s.logger.Errorf("protocol %s: step %d (%s) failed: %v", p.Name, i, step, err)
			return &StepFailed{Protocol: p.Name, Index: i, Step: step, Cause: err}
		}
		if skipped {
			s.logger.Debugf("protocol %s: step %d (%s) skipped", p.Name, i, step)
			continue
		}
		if step.Action == ActionEnter {
			scopes = append(scopes, el)
		}
		s.logger.Debugf("protocol %s: step %d (%s) done", p.Name, i, step)
	}
	return nil
}

func (s *Sequencer) timeout(step Step) time.Duration {
	if step.Timeout > 0 {
		return step.Timeout
	}
	return s.stepTimeout
}

// run performs a single step. skipped is true for optional steps whose
// target was absent.
func (s *Sequencer) run(ctx context.Context, step Step, scope locator.Scope) (el locator.Element, skipped bool, err error) {
	timeout := s.timeout(step)

	el, err = s.resolve(ctx, step, scope, timeout)
	if err != nil {
		var notFound *locator.ElementNotFound
		if step.Optional && errors.As(err, &notFound) && ctx.Err() == nil {
			return nil, true, nil
		}
		return nil, false, err
	}

	switch step.Action {
	case ActionClick:
		err = el.Click(timeout)
	case ActionSelect:
		var already bool
		already, err = IsSelected(el)
		if err != nil {
			return nil, false, err
		}
		if already {
			if step.CloseWith != "" {
				err = el.Press(step.CloseWith, timeout)
			}
		} else {
			err = el.Click(timeout)
		}
	case ActionFill:
		err = el.Fill(step.Value, timeout)
	case ActionPress:
		err = el.Press(step.Value, timeout)
	case ActionUpload:
		err = el.SetFiles(step.Files, timeout)
	case ActionWait, ActionEnter:
	}
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", step.Action, err)
	}

	if err := s.verify(ctx, step, el, scope, timeout); err != nil {
		return nil, false, err
	}
	return el, false, nil
}

func (s *Sequencer) resolve(ctx context.Context, step Step, scope locator.Scope, timeout time.Duration) (locator.Element, error) {
	switch step.Action {
	case ActionUpload:
		return s.resolver.ResolveAttached(ctx, step.Target, scope, timeout)
	case ActionWait, ActionEnter:
		els, err := s.resolver.ResolveAll(ctx, step.Target, scope, timeout)
		if err != nil {
			return nil, err
		}
		return els[0], nil
	default:
		return s.resolver.Resolve(ctx, step.Target, scope, timeout)
	}
}

func (s *Sequencer) verify(ctx context.Context, step Step, el locator.Element, scope locator.Scope, timeout time.Duration) error {
	var cond func() (bool, error)

	switch step.Effect.Kind {
	case EffectNone:
		return nil
	case EffectSelected:
		cond = func() (bool, error) { return IsSelected(el) }
	case EffectHidden:
		if step.Effect.Target.IsZero() {
			cond = func() (bool, error) {
				visible, err := el.IsVisible()
				return !visible, err
			}
		} else {
			cond = func() (bool, error) {
				present, err := s.resolver.Present(step.Effect.Target, scope)
				return !present, err
			}
		}
	case EffectVisible:
		cond = func() (bool, error) { return s.resolver.Present(step.Effect.Target, scope) }
	default:
		return fmt.Errorf("unknown effect %q", step.Effect.Kind)
	}

	return s.waitFor(ctx, timeout, step.Effect, cond)
}

// waitFor polls cond until it holds, ctx ends or timeout elapses. cond is
// always evaluated at least once.
func (s *Sequencer) waitFor(ctx context.Context, timeout time.Duration, effect Effect, cond func() (bool, error)) error {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for {
		ok, err := cond()
		if err == nil && ok {
			return nil
		}
		lastErr = err

		remaining := time.Until(deadline)
		if remaining <= 0 {
			if lastErr != nil {
				return fmt.Errorf("%w: %v", &EffectNotObserved{Effect: effect}, lastErr)
			}
			return &EffectNotObserved{Effect: effect}
		}
		wait := s.effectPoll
		if remaining < wait {
			wait = remaining
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// IsSelected reports whether an option-like element is currently selected,
// judged by its ARIA state or a checked/selected class.
func IsSelected(el locator.Element) (bool, error) {
	for _, attr := range []string{"aria-checked", "aria-pressed", "aria-selected"} {
		v, err := el.Attribute(attr)
		if err != nil {
			return false, err
		}
		if strings.EqualFold(v, "true") {
			return true, nil
		}
	}
	class, err := el.Attribute("class")
	if err != nil {
		return false, err
	}
	for _, token := range strings.Fields(class) {
		if strings.HasSuffix(token, "-checked") || strings.HasSuffix(token, "-selected") || token == "checked" || token == "selected" {
			return true, nil
		}
	}
	return false, nil
}
