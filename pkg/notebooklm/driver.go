package notebooklm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/entrhq/deepdiver/pkg/browser"
	"github.com/entrhq/deepdiver/pkg/interaction"
	"github.com/entrhq/deepdiver/pkg/jobs"
	"github.com/entrhq/deepdiver/pkg/locator"
	"github.com/entrhq/deepdiver/pkg/logging"
	"github.com/entrhq/deepdiver/pkg/monitor"
)

// DefaultBaseURL is the application's address.
const DefaultBaseURL = "https://notebooklm.google.com"

// ErrNotebookBusy is returned when a submission would move the shared page
// to another notebook while jobs are still generating in the current one.
var ErrNotebookBusy = errors.New("notebooklm: notebook has jobs in flight")

// Driver runs NotebookLM workflows on the shared browser session. It
// implements jobs.Driver.
type Driver struct {
	manager   *browser.Manager
	layout    *Layout
	resolver  *locator.Resolver
	sequencer *interaction.Sequencer
	corr      *correlator
	logger    *logging.Logger

	baseURL     string
	navTimeout  time.Duration
	stepTimeout time.Duration
	backoff     time.Duration
}

var _ jobs.Driver = (*Driver)(nil)

// Option configures a Driver.
type Option func(*Driver)

// WithLogger sets the driver's logger.
func WithLogger(l *logging.Logger) Option {
	return func(d *Driver) { d.logger = l }
}

// WithBaseURL points the driver at another deployment of the application.
func WithBaseURL(u string) Option {
	return func(d *Driver) {
		if u != "" {
			d.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithNavigationTimeout bounds page loads.
func WithNavigationTimeout(t time.Duration) Option {
	return func(d *Driver) {
		if t > 0 {
			d.navTimeout = t
		}
	}
}

// WithStepTimeout sets the default timeout of protocol steps.
func WithStepTimeout(t time.Duration) Option {
	return func(d *Driver) {
		if t > 0 {
			d.stepTimeout = t
		}
	}
}

// WithBackoff sets the pause between element resolution passes.
func WithBackoff(t time.Duration) Option {
	return func(d *Driver) {
		if t > 0 {
			d.backoff = t
		}
	}
}

// NewDriver creates a driver using the pages of manager.
func NewDriver(manager *browser.Manager, layout *Layout, opts ...Option) *Driver {
	d := &Driver{
		manager:     manager,
		layout:      layout,
		logger:      logging.Nop(),
		baseURL:     DefaultBaseURL,
		navTimeout:  30 * time.Second,
		stepTimeout: interaction.DefaultStepTimeout,
		backoff:     locator.DefaultBackoff,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.resolver = locator.NewResolver(layout.Catalog,
		locator.WithLogger(d.logger.With("locator")),
		locator.WithBackoff(d.backoff),
	)
	d.sequencer = interaction.NewSequencer(d.resolver,
		interaction.WithLogger(d.logger.With("sequencer")),
		interaction.WithStepTimeout(d.stepTimeout),
	)
	d.corr = newCorrelator(layout, d.logger.With("correlator"))
	return d
}

// Layout returns the driver's layout.
func (d *Driver) Layout() *Layout {
	return d.layout
}

// NotebookURL returns the address of notebook id.
func (d *Driver) NotebookURL(id string) string {
	return d.baseURL + "/notebook/" + id
}

// Submit opens the job's notebook, applies its source selection and runs
// the generation protocol. The job is registered with the correlator before
// the protocol starts so its tile can be claimed as soon as it appears.
func (d *Driver) Submit(ctx context.Context, desc jobs.Descriptor) error {
	proto, err := BuildProtocol(desc.Params)
	if err != nil {
		return err
	}
	match, err := desc.SourceMatcher()
	if err != nil {
		return err
	}

	return d.manager.Exclusive(ctx, func(s *browser.Session) error {
		d.corr.mu.Lock()
		other, busy := d.corr.busyWith(desc.NotebookID)
		d.corr.mu.Unlock()
		if busy {
			return fmt.Errorf("%w: %s", ErrNotebookBusy, other)
		}

		if err := d.open(ctx, s, desc.NotebookID); err != nil {
			return err
		}
		page := s.Page()
		if len(desc.Sources) > 0 {
			if err := d.selectSources(ctx, page, match); err != nil {
				return err
			}
		}

		d.corr.mu.Lock()
		err := d.corr.claim(page, desc.NotebookID)
		if err == nil {
			err = d.corr.markSeen(page)
		}
		if err == nil {
			d.corr.expect(trackedJob{tag: desc.Tag, kind: desc.Kind, notebookID: desc.NotebookID})
		}
		d.corr.mu.Unlock()
		if err != nil {
			return err
		}

		d.logger.Infof("job %s: running %s", desc.Tag, proto.Name)
		if err := d.sequencer.Run(ctx, proto, page); err != nil {
			d.Release(desc.Tag)
			return err
		}
		return nil
	})
}

// Probe returns the Studio panel probe. Inspection reads the page without
// taking the navigation lock.
func (d *Driver) Probe() monitor.Probe {
	return monitor.ProbeFunc(d.inspect)
}

func (d *Driver) inspect(ctx context.Context, tag string) (monitor.Signal, error) {
	s, err := d.manager.Session(ctx)
	if err != nil {
		return monitor.Signal{}, err
	}
	page := s.Page()

	d.corr.mu.Lock()
	defer d.corr.mu.Unlock()

	job, _, ok := d.corr.job(tag)
	if !ok {
		return monitor.Signal{}, fmt.Errorf("job %s is not tracked", tag)
	}
	if current := NotebookIDFromURL(page.URL()); current != job.notebookID {
		return monitor.Signal{}, fmt.Errorf("page shows notebook %q, job %s belongs to %q", current, tag, job.notebookID)
	}
	if err := d.corr.claim(page, job.notebookID); err != nil {
		return monitor.Signal{}, err
	}

	tile, found, err := d.corr.tile(page, tag)
	if err != nil {
		return monitor.Signal{}, err
	}
	if !found {
		if _, claimed, _ := d.corr.job(tag); claimed {
			return monitor.Signal{}, fmt.Errorf("artifact tile of job %s left the page", tag)
		}
		return monitor.Signal{Kind: monitor.SignalNone, Message: "waiting for artifact tile"}, nil
	}
	html, err := tile.HTML()
	if err != nil {
		return monitor.Signal{}, fmt.Errorf("failed to read artifact tile: %w", err)
	}
	return d.corr.classify(html)
}

// Snapshot returns the outer HTML of the tile claimed by the job.
func (d *Driver) Snapshot(ctx context.Context, desc jobs.Descriptor) (string, error) {
	s, err := d.manager.Session(ctx)
	if err != nil {
		return "", err
	}
	d.corr.mu.Lock()
	defer d.corr.mu.Unlock()

	tile, found, err := d.corr.tile(s.Page(), desc.Tag)
	if err != nil {
		return "", err
	}
	if !found {
		return "", fmt.Errorf("no artifact tile for job %s", desc.Tag)
	}
	return tile.HTML()
}

// Release forgets the correlation state of tag.
func (d *Driver) Release(tag string) {
	d.corr.mu.Lock()
	defer d.corr.mu.Unlock()
	d.corr.forget(tag)
}

// open navigates to the notebook unless the page already shows it, then
// waits for the notebook view.
func (d *Driver) open(ctx context.Context, s *browser.Session, notebookID string) error {
	page := s.Page()
	if NotebookIDFromURL(page.URL()) != notebookID {
		d.logger.Debugf("opening notebook %s", notebookID)
		if err := s.Navigate(d.NotebookURL(notebookID), d.navTimeout); err != nil {
			return err
		}
	}
	if _, err := d.resolver.ResolveAll(ctx, locator.Q(targetNotebookReady), page, d.navTimeout); err != nil {
		return fmt.Errorf("notebook %s did not load: %w", notebookID, err)
	}
	return nil
}

// selectSources checks the sources whose title matches and unchecks the
// rest.
func (d *Driver) selectSources(ctx context.Context, page browser.Page, match func(string) bool) error {
	rows, err := d.resolver.ResolveAll(ctx, locator.Q(targetSourceRows), page, d.stepTimeout)
	if err != nil {
		return fmt.Errorf("failed to list sources: %w", err)
	}

	selected := 0
	for _, row := range rows {
		titleEl, err := d.resolver.ResolveAttached(ctx, locator.Q(targetSourceTitle), row, d.stepTimeout)
		if err != nil {
			return err
		}
		title, err := titleEl.Text()
		if err != nil {
			return err
		}
		title = strings.TrimSpace(title)

		box, err := d.resolver.Resolve(ctx, locator.Q(targetSourceCheckbox), row, d.stepTimeout)
		if err != nil {
			return fmt.Errorf("source %q: %w", title, err)
		}
		checked, err := interaction.IsSelected(box)
		if err != nil {
			return err
		}
		want := match(title)
		if want {
			selected++
		}
		if checked != want {
			if err := box.Click(d.stepTimeout); err != nil {
				return fmt.Errorf("failed to toggle source %q: %w", title, err)
			}
		}
	}
	if selected == 0 {
		return fmt.Errorf("no source matches the requested patterns")
	}
	d.logger.Debugf("selected %d of %d sources", selected, len(rows))
	return nil
}
