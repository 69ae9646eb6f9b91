package interaction

import "fmt"

// StepFailed reports the first step of a protocol that could not complete.
type StepFailed struct {
	Protocol string
	Index    int
	Step     Step
	Cause    error
}

func (e *StepFailed) Error() string {
	return fmt.Sprintf("protocol %q: step %d (%s) failed: %v", e.Protocol, e.Index, e.Step, e.Cause)
}

func (e *StepFailed) Unwrap() error {
	return e.Cause
}

// EffectNotObserved is the cause when an action ran but its declared
// effect did not appear in time.
type EffectNotObserved struct {
	Effect Effect
}

func (e *EffectNotObserved) Error() string {
	return fmt.Sprintf("effect %s not observed", e.Effect)
}
