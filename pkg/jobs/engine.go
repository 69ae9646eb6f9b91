// Package jobs models generation jobs and runs them end to end: submission
// through the target application, monitoring to a terminal state, metadata
// extraction and hand-off to the store.
package jobs

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/entrhq/deepdiver/pkg/extract"
	"github.com/entrhq/deepdiver/pkg/logging"
	"github.com/entrhq/deepdiver/pkg/monitor"
	"github.com/entrhq/deepdiver/pkg/store"
)

// Driver performs the application-specific parts of a job.
type Driver interface {
	// Submit configures and starts generation for d, registering d.Tag so
	// the probe can tell this job's artifact apart from others.
	Submit(ctx context.Context, d Descriptor) error

	// Probe inspects job state by correlation tag.
	Probe() monitor.Probe

	// Snapshot returns the HTML of the finished artifact's container.
	Snapshot(ctx context.Context, d Descriptor) (string, error)

	// Release forgets the correlation state of tag.
	Release(tag string)
}

// JobStatus is a live view of a running job.
type JobStatus struct {
	Tag        string
	Kind       Kind
	NotebookID string
	State      monitor.State
	Started    time.Time
}

type job struct {
	status JobStatus
	cancel context.CancelFunc
}

// Engine runs jobs. Each Submit call runs on the caller's goroutine; run
// several jobs concurrently by calling Submit from several goroutines.
type Engine struct {
	driver    Driver
	extractor *extract.Extractor
	store     store.Appender
	logger    *logging.Logger
	metrics   *Metrics
	clock     monitor.Clock
	interval  time.Duration
	budgets   map[Kind]time.Duration

	mu      sync.Mutex
	running map[string]*job
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the engine's logger.
func WithLogger(l *logging.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// WithMetrics sets the engine's collectors.
func WithMetrics(m *Metrics) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

// WithClock replaces the wall clock used for monitoring.
func WithClock(c monitor.Clock) EngineOption {
	return func(e *Engine) { e.clock = c }
}

// WithPollInterval sets the monitoring poll interval.
func WithPollInterval(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.interval = d
		}
	}
}

// WithBudgets overrides generation budgets for the given kinds.
func WithBudgets(budgets map[Kind]time.Duration) EngineOption {
	return func(e *Engine) {
		for k, v := range budgets {
			if v > 0 {
				e.budgets[k] = v
			}
		}
	}
}

// NewEngine creates an engine.
func NewEngine(driver Driver, extractor *extract.Extractor, appender store.Appender, opts ...EngineOption) *Engine {
	e := &Engine{
		driver:    driver,
		extractor: extractor,
		store:     appender,
		logger:    logging.Nop(),
		clock:     monitor.SystemClock,
		interval:  monitor.DefaultInterval,
		budgets:   make(map[Kind]time.Duration, len(DefaultBudgets)),
		running:   make(map[string]*job),
	}
	for k, v := range DefaultBudgets {
		e.budgets[k] = v
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.metrics == nil {
		e.metrics = NewMetrics(nil)
	}
	return e
}

// Budget returns the generation budget for kind.
func (e *Engine) Budget(kind Kind) time.Duration {
	return e.budgets[kind]
}

// Submit runs d to a terminal state. Submission, extraction and storage
// failures are returned as errors; cancelling ctx or calling Cancel at any
// point yields a Cancelled outcome. Otherwise the returned Outcome carries
// the terminal state; a Completed outcome has been appended to the store,
// and if that append fails the Outcome is returned together with the error.
func (e *Engine) Submit(ctx context.Context, d Descriptor) (Outcome, error) {
	if d.Tag == "" && d.Params != nil {
		d.Tag = NewDescriptor(d.NotebookID, d.Params).Tag
	}
	if d.Kind == "" && d.Params != nil {
		d.Kind = d.Params.Kind()
	}
	if err := d.Validate(); err != nil {
		return Outcome{}, fmt.Errorf("invalid job: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := e.register(d, cancel); err != nil {
		return Outcome{}, err
	}
	defer e.unregister(d.Tag)
	defer e.driver.Release(d.Tag)

	e.metrics.recordSubmit(d.Kind)
	defer e.metrics.recordDone()

	log := e.logger.With(string(d.Kind))
	log.Infof("submitting job %s for notebook %s", d.Tag, d.NotebookID)

	started := e.clock.Now()
	if err := e.driver.Submit(ctx, d); err != nil {
		if ctx.Err() != nil {
			log.Warnf("job %s cancelled during submission", d.Tag)
			e.metrics.recordCancel(d.Kind)
			return e.cancelled(d, started, ctx.Err()), nil
		}
		e.metrics.recordError(d.Kind, "submit")
		log.Errorf("job %s: submission failed: %v", d.Tag, err)
		return Outcome{}, fmt.Errorf("failed to submit %s job: %w", d.Kind, err)
	}

	m := monitor.New(e.driver.Probe(),
		monitor.WithClock(e.clock),
		monitor.WithInterval(e.interval),
		monitor.WithLogger(log),
		monitor.WithObserver(e.observe),
	)
	res := m.Watch(ctx, d.Tag, e.budgets[d.Kind])
	e.metrics.recordWatch(d.Kind, res)

	outcome := Outcome{
		Tag:     d.Tag,
		Kind:    d.Kind,
		State:   res.State,
		Reason:  res.Message,
		Elapsed: res.Elapsed,
		Polls:   res.Polls,
		Err:     classify(res.State, res.Message),
	}
	if res.State != monitor.Completed {
		log.Warnf("job %s ended %s: %s", d.Tag, res.State, res.Message)
		return outcome, nil
	}

	snapshot, err := e.driver.Snapshot(ctx, d)
	if err != nil {
		if ctx.Err() != nil {
			log.Warnf("job %s cancelled before its artifact was read", d.Tag)
			return e.cancelled(d, started, ctx.Err()), nil
		}
		e.metrics.recordError(d.Kind, "snapshot")
		return Outcome{}, fmt.Errorf("failed to read %s artifact: %w", d.Kind, err)
	}
	md, err := e.extractor.Extract(string(d.Kind), snapshot)
	if err != nil {
		e.metrics.recordError(d.Kind, "extract")
		log.Errorf("job %s: %v", d.Tag, err)
		return Outcome{}, err
	}
	outcome.Metadata = &md

	rec := store.ArtifactRecord{
		Kind:          string(d.Kind),
		Config:        d.Params.Settings(),
		Duration:      res.Elapsed,
		ArtifactID:    md.ArtifactID,
		Title:         md.Title,
		MediaDuration: md.MediaDuration,
		Thumbnail:     md.Thumbnail,
		ItemCount:     md.ItemCount,
		Tags:          md.Tags,
		CreatedAt:     e.clock.Now(),
		Tag:           d.Tag,
	}
	if err := e.store.Append(ctx, d.NotebookID, rec); err != nil {
		e.metrics.recordError(d.Kind, "store")
		log.Errorf("job %s: failed to store artifact %s: %v", d.Tag, md.ArtifactID, err)
		return outcome, fmt.Errorf("failed to store %s artifact %s: %w", d.Kind, md.ArtifactID, err)
	}

	log.Infof("job %s completed: artifact %s (%q)", d.Tag, md.ArtifactID, md.Title)
	return outcome, nil
}

// cancelled is the outcome of a job stopped outside the monitor, while it
// was being submitted or read back.
func (e *Engine) cancelled(d Descriptor, started time.Time, cause error) Outcome {
	return Outcome{
		Tag:     d.Tag,
		Kind:    d.Kind,
		State:   monitor.Cancelled,
		Reason:  cause.Error(),
		Elapsed: e.clock.Now().Sub(started),
		Err:     ErrCancelled,
	}
}

// Running lists jobs in flight, oldest first.
func (e *Engine) Running() []JobStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]JobStatus, 0, len(e.running))
	for _, j := range e.running {
		out = append(out, j.status)
	}
	sort.Slice(out, func(i, k int) bool {
		if out[i].Started.Equal(out[k].Started) {
			return out[i].Tag < out[k].Tag
		}
		return out[i].Started.Before(out[k].Started)
	})
	return out
}

// Cancel stops the job with tag. It reports whether such a job was running.
func (e *Engine) Cancel(tag string) bool {
	e.mu.Lock()
	j, ok := e.running[tag]
	e.mu.Unlock()
	if ok {
		j.cancel()
	}
	return ok
}

func (e *Engine) register(d Descriptor, cancel context.CancelFunc) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, dup := e.running[d.Tag]; dup {
		return fmt.Errorf("job %s is already running", d.Tag)
	}
	e.running[d.Tag] = &job{
		status: JobStatus{
			Tag:        d.Tag,
			Kind:       d.Kind,
			NotebookID: d.NotebookID,
			State:      monitor.Submitted,
			Started:    e.clock.Now(),
		},
		cancel: cancel,
	}
	return nil
}

func (e *Engine) unregister(tag string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.running, tag)
}

func (e *Engine) observe(tag string, s monitor.State) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if j, ok := e.running[tag]; ok {
		j.status.State = s
	}
}
