package interaction

import (
	"fmt"
	"time"

	"github.com/entrhq/deepdiver/pkg/locator"
)

// Action is what a step does with its resolved target.
type Action string

const (
	ActionClick  Action = "click"
	ActionSelect Action = "select"
	ActionFill   Action = "fill"
	ActionPress  Action = "press"
	ActionWait   Action = "wait"
	ActionUpload Action = "upload"

	// ActionEnter narrows the scope of the following steps to the resolved
	// container. ActionLeave restores the previous scope.
	ActionEnter Action = "enter"
	ActionLeave Action = "leave"
)

// EffectKind names the observable state a step must produce.
type EffectKind string

const (
	EffectNone     EffectKind = ""
	EffectSelected EffectKind = "selected"
	EffectHidden   EffectKind = "hidden"
	EffectVisible  EffectKind = "visible"
)

// Effect is the expected result of a step, verified after the action.
type Effect struct {
	Kind EffectKind

	// Target is the element whose state is checked. For EffectHidden an
	// empty target means the step's own element.
	Target locator.Query
}

// Selected expects the step's element to report a selected state.
func Selected() Effect { return Effect{Kind: EffectSelected} }

// Hidden expects the step's element to disappear.
func Hidden() Effect { return Effect{Kind: EffectHidden} }

// HiddenTarget expects q to stop matching any visible element.
func HiddenTarget(q locator.Query) Effect { return Effect{Kind: EffectHidden, Target: q} }

// Visible expects q to match a visible element.
func Visible(q locator.Query) Effect { return Effect{Kind: EffectVisible, Target: q} }

func (e Effect) String() string {
	switch {
	case e.Kind == EffectNone:
		return "none"
	case e.Target.IsZero():
		return string(e.Kind)
	default:
		return fmt.Sprintf("%s:%s", e.Kind, e.Target)
	}
}

// Step is one unit of a protocol.
type Step struct {
	Name   string
	Action Action
	Target locator.Query

	// Value is the text for fill and the key for press.
	Value string

	// Files are the paths for upload.
	Files []string

	// Timeout bounds both resolution and effect verification. Zero uses
	// the sequencer default.
	Timeout time.Duration

	Effect Effect

	// Optional steps are skipped when their target cannot be resolved.
	Optional bool

	// CloseWith is a key pressed on the target when a select step finds
	// the option already selected, to dismiss an open overlay.
	CloseWith string
}

func (s Step) String() string {
	name := s.Name
	if name == "" {
		name = string(s.Action)
	}
	if s.Target.IsZero() {
		return name
	}
	return fmt.Sprintf("%s %s", name, s.Target)
}

// Protocol is an ordered list of steps forming one workflow.
type Protocol struct {
	Name  string
	Steps []Step
}

// Validate checks that every step is well formed.
func (p Protocol) Validate() error {
	if len(p.Steps) == 0 {
		return fmt.Errorf("protocol %q has no steps", p.Name)
	}
	depth := 0
	for i, s := range p.Steps {
		switch s.Action {
		case ActionClick, ActionSelect, ActionWait, ActionEnter:
			if s.Target.IsZero() {
				return fmt.Errorf("protocol %q step %d (%s): target is required", p.Name, i, s.Action)
			}
		case ActionFill, ActionPress:
			if s.Target.IsZero() {
				return fmt.Errorf("protocol %q step %d (%s): target is required", p.Name, i, s.Action)
			}
			if s.Action == ActionPress && s.Value == "" {
				return fmt.Errorf("protocol %q step %d: press needs a key", p.Name, i)
			}
		case ActionUpload:
			if s.Target.IsZero() || len(s.Files) == 0 {
				return fmt.Errorf("protocol %q step %d: upload needs a target and files", p.Name, i)
			}
		case ActionLeave:
		default:
			return fmt.Errorf("protocol %q step %d: unknown action %q", p.Name, i, s.Action)
		}
		switch s.Action {
		case ActionEnter:
			depth++
		case ActionLeave:
			if depth == 0 {
				return fmt.Errorf("protocol %q step %d: leave without enter", p.Name, i)
			}
			depth--
		}
	}
	return nil
}
