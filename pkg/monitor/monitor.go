// Package monitor polls a long-running server-side job until it reaches a
// terminal state.
//
// A job starts Submitted and moves to Polling on the first check. From there
// exactly one of Completed, Failed, TimedOut or Cancelled is reached. The
// budget is checked before every inspection, so a job whose polling time
// reaches the budget always ends TimedOut.
package monitor

import (
	"context"
	"time"

	"github.com/entrhq/deepdiver/pkg/logging"
)

// DefaultInterval is the pause between inspections.
const DefaultInterval = 5 * time.Second

// Probe inspects the UI for the job carrying tag. Errors are treated as
// transient and the next poll proceeds as usual.
type Probe interface {
	Inspect(ctx context.Context, tag string) (Signal, error)
}

// ProbeFunc adapts a function to Probe.
type ProbeFunc func(ctx context.Context, tag string) (Signal, error)

func (f ProbeFunc) Inspect(ctx context.Context, tag string) (Signal, error) {
	return f(ctx, tag)
}

// Clock abstracts time so tests can run budgets instantly.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// SystemClock is the wall clock.
var SystemClock Clock = realClock{}

// Result is the terminal report of one Watch call.
type Result struct {
	Tag         string
	State       State
	Message     string
	Polls       int
	ProbeErrors int
	Elapsed     time.Duration
}

// Observer is notified of every state change.
type Observer func(tag string, state State)

// Monitor runs the polling state machine.
type Monitor struct {
	probe    Probe
	clock    Clock
	interval time.Duration
	logger   *logging.Logger
	observer Observer
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(m *Monitor) { m.clock = c }
}

// WithInterval sets the poll interval.
func WithInterval(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithLogger sets the monitor's logger.
func WithLogger(l *logging.Logger) Option {
	return func(m *Monitor) { m.logger = l }
}

// WithObserver registers a state change callback.
func WithObserver(o Observer) Option {
	return func(m *Monitor) { m.observer = o }
}

// New creates a monitor over probe.
func New(probe Probe, opts ...Option) *Monitor {
	m := &Monitor{
		probe:    probe,
		clock:    SystemClock,
		interval: DefaultInterval,
		logger:   logging.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Interval returns the configured poll interval.
func (m *Monitor) Interval() time.Duration {
	return m.interval
}

// Watch polls the job identified by tag until a terminal state. It never
// returns a non-terminal Result.
func (m *Monitor) Watch(ctx context.Context, tag string, budget time.Duration) Result {
	start := m.clock.Now()
	res := Result{Tag: tag, State: Submitted}
	m.notify(tag, Submitted)

	finish := func(state State, msg string) Result {
		res.State = state
		res.Message = msg
		res.Elapsed = m.clock.Now().Sub(start)
		m.notify(tag, state)
		m.logger.Infof("job %s: %s after %s (%d polls)", tag, state, res.Elapsed, res.Polls)
		return res
	}

	for {
		if err := ctx.Err(); err != nil {
			return finish(Cancelled, err.Error())
		}

		elapsed := m.clock.Now().Sub(start)
		if elapsed >= budget {
			return finish(TimedOut, "budget of "+budget.String()+" exhausted")
		}

		if res.Polls == 0 {
			m.notify(tag, Polling)
		}
		res.Polls++

		sig, err := m.probe.Inspect(ctx, tag)
		switch {
		case ctx.Err() != nil:
			return finish(Cancelled, ctx.Err().Error())
		case err != nil:
			res.ProbeErrors++
			m.logger.Warnf("job %s: inspection failed, will retry: %v", tag, err)
		case sig.Kind == SignalError:
			return finish(Failed, sig.Message)
		case sig.Kind == SignalReady:
			return finish(Completed, sig.Message)
		}

		wait := m.interval
		if remaining := budget - m.clock.Now().Sub(start); remaining < wait {
			wait = remaining
		}
		if wait <= 0 {
			continue
		}

		select {
		case <-ctx.Done():
			return finish(Cancelled, ctx.Err().Error())
		case <-m.clock.After(wait):
		}
	}
}

func (m *Monitor) notify(tag string, s State) {
	if m.observer != nil {
		m.observer(tag, s)
	}
}
