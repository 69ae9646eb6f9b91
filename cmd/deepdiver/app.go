package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/entrhq/deepdiver/pkg/browser"
	"github.com/entrhq/deepdiver/pkg/config"
	"github.com/entrhq/deepdiver/pkg/content"
	"github.com/entrhq/deepdiver/pkg/jobs"
	"github.com/entrhq/deepdiver/pkg/logging"
	"github.com/entrhq/deepdiver/pkg/notebooklm"
	"github.com/entrhq/deepdiver/pkg/podcast"
	"github.com/entrhq/deepdiver/pkg/store"
)

// app holds everything a command may need. The browser side is built on
// first use so that session commands never touch Chrome.
type app struct {
	cfg     *config.Resolved
	logger  *logging.Logger
	tracker *store.Tracker
	sqlite  *store.SQLiteStore

	registry *prometheus.Registry
	metrics  *jobs.Metrics

	manager *browser.Manager
	drv     *notebooklm.Driver
}

func newApp(cli *CLIConfig) (*app, error) {
	cfg, err := config.Resolve(config.Options{
		Path:        cli.ConfigPath,
		EnvFile:     cli.EnvFile,
		CDPOverride: cli.CDPURL,
	})
	if err != nil {
		return nil, err
	}

	// NewLogger falls back to stderr on error, so the error is only reported.
	logger, err := logging.NewLogger("deepdiver")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
	logger.SetDebug(cli.Debug || cfg.Logging.Debug)
	logger.Infof("deepdiver v%s, config files: %v", version, cfg.Files)

	tracker, err := store.NewTracker(cfg.Sessions.Dir, store.WithTrackerLogger(logger.With("sessions")))
	if err != nil {
		logger.Close()
		return nil, err
	}

	a := &app{
		cfg:      cfg,
		logger:   logger,
		tracker:  tracker,
		registry: prometheus.NewRegistry(),
	}
	a.metrics = jobs.NewMetrics(a.registry)

	if cfg.Sessions.Backend == config.BackendSQLite {
		a.sqlite, err = store.OpenSQLite(cfg.Sessions.SQLitePath)
		if err != nil {
			logger.Close()
			return nil, err
		}
	}
	return a, nil
}

// appender is where completed artifacts are recorded: the session tracker,
// followed by the SQLite index when that backend is configured.
func (a *app) appender() store.Appender {
	if a.sqlite != nil {
		return store.Tee(a.tracker, a.sqlite)
	}
	return a.tracker
}

// driver connects the browser side on first use.
func (a *app) driver() (*notebooklm.Driver, error) {
	if a.drv != nil {
		return a.drv, nil
	}
	layout, err := notebooklm.LoadLayout(a.cfg.Locators.Catalog)
	if err != nil {
		return nil, err
	}
	bc := a.cfg.Browser
	a.manager = browser.NewManager(
		browser.NewPlaywrightDialer(bc.InstallDriver),
		a.cfg.Endpoints,
		browser.WithConnectTimeout(bc.ConnectTimeout),
		browser.WithLogger(a.logger.With("browser")),
	)
	a.drv = notebooklm.NewDriver(a.manager, layout,
		notebooklm.WithLogger(a.logger.With("notebooklm")),
		notebooklm.WithBaseURL(bc.BaseURL),
		notebooklm.WithNavigationTimeout(bc.NavigationTimeout),
		notebooklm.WithStepTimeout(bc.StepTimeout),
		notebooklm.WithBackoff(a.cfg.Locators.Backoff),
	)
	a.logger.Infof("layout %s, endpoints %v", layout.Version, a.cfg.Endpoints)
	return a.drv, nil
}

func (a *app) engine(d *notebooklm.Driver) *jobs.Engine {
	return jobs.NewEngine(d, d.Layout().Extractor(), a.appender(),
		jobs.WithLogger(a.logger.With("jobs")),
		jobs.WithMetrics(a.metrics),
		jobs.WithPollInterval(a.cfg.Generation.PollInterval),
		jobs.WithBudgets(a.cfg.JobBudgets()),
	)
}

func (a *app) processor() (*content.Processor, error) {
	c := a.cfg.Content
	return content.NewProcessor(c.Formats, c.MaxFileSize, c.TempDir, a.logger.With("content"))
}

func (a *app) library() (*podcast.Library, error) {
	pc := a.cfg.Podcasts
	return podcast.NewLibrary(pc.Dir,
		podcast.WithPattern(pc.NamingPattern),
		podcast.WithLogger(a.logger.With("podcast")),
	)
}

// notebookID returns explicit, or the active notebook of the current
// session.
func (a *app) notebookID(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	nb, err := a.tracker.ActiveNotebook()
	if err != nil {
		return "", fmt.Errorf("no notebook given and no active notebook (%w); use -notebook", err)
	}
	return nb.ID, nil
}

// ensureSession starts a session when none is active, so that generated
// artifacts always have somewhere to go.
func (a *app) ensureSession() error {
	_, err := a.tracker.Current()
	if !errors.Is(err, store.ErrNoActiveSession) {
		return err
	}
	s, err := a.tracker.Start(store.StartOptions{Assistant: "deepdiver"})
	if err != nil {
		return err
	}
	printInfo("Started session %s", s.ID)
	return nil
}

// Close writes the metrics textfile and releases the browser and stores.
func (a *app) Close() error {
	var errs []error
	if path := a.cfg.Metrics.Textfile; path != "" {
		if err := prometheus.WriteToTextfile(path, a.registry); err != nil {
			errs = append(errs, fmt.Errorf("failed to write metrics: %w", err))
		}
	}
	if a.manager != nil {
		if err := a.manager.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.sqlite != nil {
		if err := a.sqlite.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := a.logger.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
