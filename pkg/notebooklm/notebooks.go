package notebooklm

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/entrhq/deepdiver/pkg/browser"
	"github.com/entrhq/deepdiver/pkg/interaction"
	"github.com/entrhq/deepdiver/pkg/locator"
)

// DefaultTitle is reported for notebooks whose title cannot be read.
const DefaultTitle = "Untitled Notebook"

const (
	urlPollInterval = 250 * time.Millisecond
	sourceTimeout   = 60 * time.Second
	optionalTimeout = 3 * time.Second
)

var notebookIDPattern = regexp.MustCompile(`/notebook/([A-Za-z0-9_-]+)`)

// NotebookIDFromURL extracts the notebook id from a notebook URL, or
// returns "" when u is not one.
func NotebookIDFromURL(u string) string {
	if m := notebookIDPattern.FindStringSubmatch(u); m != nil {
		return m[1]
	}
	return ""
}

// Notebook identifies a notebook in the application.
type Notebook struct {
	ID    string
	URL   string
	Title string
}

// AuthState is the result of an authentication check.
type AuthState string

const (
	Authenticated AuthState = "authenticated"
	SignedOut     AuthState = "signed_out"

	// AuthUnknown is reported when neither the account menu nor a sign-in
	// button is visible. Callers treat it as authenticated.
	AuthUnknown AuthState = "unknown"
)

// exclusive runs fn under the navigation lock unless jobs in another
// notebook are in flight. An empty notebookID conflicts with any job.
func (d *Driver) exclusive(ctx context.Context, notebookID string, fn func(*browser.Session) error) error {
	return d.manager.Exclusive(ctx, func(s *browser.Session) error {
		d.corr.mu.Lock()
		other, busy := d.corr.busyWith(notebookID)
		d.corr.mu.Unlock()
		if busy {
			return fmt.Errorf("%w: %s", ErrNotebookBusy, other)
		}
		return fn(s)
	})
}

// CreateNotebook creates an empty notebook from the home page.
func (d *Driver) CreateNotebook(ctx context.Context) (Notebook, error) {
	var nb Notebook
	err := d.exclusive(ctx, "", func(s *browser.Session) error {
		if err := s.Navigate(d.baseURL, d.navTimeout); err != nil {
			return err
		}
		page := s.Page()
		proto := interaction.Protocol{
			Name: "notebook.create",
			Steps: []interaction.Step{
				{Name: "create", Action: interaction.ActionClick, Target: locator.Q(targetHomeCreate)},
			},
		}
		if err := d.sequencer.Run(ctx, proto, page); err != nil {
			return err
		}

		id, err := d.waitForNotebookURL(ctx, page)
		if err != nil {
			return err
		}
		if _, err := d.resolver.ResolveAll(ctx, locator.Q(targetNotebookReady), page, d.navTimeout); err != nil {
			return fmt.Errorf("notebook %s did not load: %w", id, err)
		}
		nb = Notebook{ID: id, URL: d.NotebookURL(id), Title: d.title(page)}
		d.logger.Infof("created notebook %s", id)
		return nil
	})
	return nb, err
}

// OpenNotebook navigates to notebook id and reads its title.
func (d *Driver) OpenNotebook(ctx context.Context, id string) (Notebook, error) {
	if id == "" {
		return Notebook{}, fmt.Errorf("notebook id is required")
	}
	var nb Notebook
	err := d.exclusive(ctx, id, func(s *browser.Session) error {
		if err := d.open(ctx, s, id); err != nil {
			return err
		}
		nb = Notebook{ID: id, URL: d.NotebookURL(id), Title: d.title(s.Page())}
		return nil
	})
	return nb, err
}

// CheckAuthentication reports whether the browser is signed in to the
// application. The page is left on the home page.
func (d *Driver) CheckAuthentication(ctx context.Context) (AuthState, error) {
	state := AuthUnknown
	err := d.exclusive(ctx, "", func(s *browser.Session) error {
		if err := s.Navigate(d.baseURL, d.navTimeout); err != nil {
			return err
		}
		idx, err := d.waitAny(ctx, s.Page(), d.stepTimeout, locator.Q(targetAccountProfile), locator.Q(targetAccountSignIn))
		if err != nil {
			return err
		}
		switch idx {
		case 0:
			state = Authenticated
		case 1:
			state = SignedOut
		}
		return nil
	})
	return state, err
}

// UploadSource adds a local file to the notebook and waits until it shows
// in the source list.
func (d *Driver) UploadSource(ctx context.Context, notebookID, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	if _, err := os.Stat(abs); err != nil {
		return fmt.Errorf("source file: %w", err)
	}
	name := filepath.Base(abs)

	proto := interaction.Protocol{
		Name: "sources.upload",
		Steps: []interaction.Step{
			{Name: "add source", Action: interaction.ActionClick, Target: locator.Q(targetSourcesAdd), Optional: true, Timeout: optionalTimeout},
			{Name: "upload dialog", Action: interaction.ActionWait, Target: locator.Q(targetSourcesUpload), Optional: true, Timeout: optionalTimeout},
			{Name: "file", Action: interaction.ActionUpload, Target: locator.Q(targetFileInput), Files: []string{abs}},
			{Name: "listed", Action: interaction.ActionWait, Target: locator.Q(targetSourceItem, name), Timeout: sourceTimeout},
		},
	}
	return d.exclusive(ctx, notebookID, func(s *browser.Session) error {
		if err := d.open(ctx, s, notebookID); err != nil {
			return err
		}
		if err := d.sequencer.Run(ctx, proto, s.Page()); err != nil {
			return err
		}
		d.logger.Infof("uploaded %s to notebook %s", name, notebookID)
		return nil
	})
}

// AddSourceURL adds a website source to the notebook.
func (d *Driver) AddSourceURL(ctx context.Context, notebookID, sourceURL string) error {
	if !strings.HasPrefix(sourceURL, "http://") && !strings.HasPrefix(sourceURL, "https://") {
		return fmt.Errorf("invalid source URL %q", sourceURL)
	}
	proto := interaction.Protocol{
		Name: "sources.website",
		Steps: []interaction.Step{
			{Name: "add source", Action: interaction.ActionClick, Target: locator.Q(targetSourcesAdd), Optional: true, Timeout: optionalTimeout},
			{Name: "website", Action: interaction.ActionClick, Target: locator.Q(targetSourcesWebsite), Effect: interaction.Visible(locator.Q(targetURLInput))},
			{Name: "url", Action: interaction.ActionFill, Target: locator.Q(targetURLInput), Value: sourceURL},
			{Name: "insert", Action: interaction.ActionClick, Target: locator.Q(targetSourcesInsert), Timeout: sourceTimeout, Effect: interaction.Hidden()},
		},
	}
	return d.exclusive(ctx, notebookID, func(s *browser.Session) error {
		if err := d.open(ctx, s, notebookID); err != nil {
			return err
		}
		if err := d.sequencer.Run(ctx, proto, s.Page()); err != nil {
			return err
		}
		d.logger.Infof("added %s to notebook %s", sourceURL, notebookID)
		return nil
	})
}

// Share roles.
const (
	RoleViewer = "viewer"
	RoleEditor = "editor"
)

var roleLabels = map[string]string{
	RoleViewer: "Can view",
	RoleEditor: "Can edit",
}

// Share invites email to the notebook. An empty role keeps the
// application's default.
func (d *Driver) Share(ctx context.Context, notebookID, email, role string) error {
	if !strings.Contains(email, "@") {
		return fmt.Errorf("invalid email address %q", email)
	}
	steps := []interaction.Step{
		{Name: "share", Action: interaction.ActionClick, Target: locator.Q(targetShareButton), Effect: interaction.Visible(locator.Q(targetShareDialog))},
		{Name: "dialog", Action: interaction.ActionEnter, Target: locator.Q(targetShareDialog)},
		{Name: "email", Action: interaction.ActionFill, Target: locator.Q(targetShareEmail), Value: email},
	}
	if role != "" {
		label, ok := roleLabels[role]
		if !ok {
			return fmt.Errorf("invalid share role %q (must be %q or %q)", role, RoleViewer, RoleEditor)
		}
		steps = append(steps,
			interaction.Step{Name: "role", Action: interaction.ActionClick, Target: locator.Q(targetShareRole), Optional: true, Timeout: optionalTimeout},
			interaction.Step{Action: interaction.ActionLeave},
			interaction.Step{Name: "role option", Action: interaction.ActionSelect, Target: locator.Q(targetShareRoleOption, label), Optional: true, Timeout: optionalTimeout, CloseWith: "Escape"},
			interaction.Step{Name: "dialog", Action: interaction.ActionEnter, Target: locator.Q(targetShareDialog)},
		)
	}
	steps = append(steps,
		interaction.Step{Name: "send", Action: interaction.ActionClick, Target: locator.Q(targetShareSend), Effect: interaction.Hidden()},
		interaction.Step{Action: interaction.ActionLeave},
	)
	proto := interaction.Protocol{Name: "notebook.share", Steps: steps}

	return d.exclusive(ctx, notebookID, func(s *browser.Session) error {
		if err := d.open(ctx, s, notebookID); err != nil {
			return err
		}
		if err := d.sequencer.Run(ctx, proto, s.Page()); err != nil {
			return err
		}
		d.logger.Infof("shared notebook %s with %s", notebookID, email)
		return nil
	})
}

// DownloadAudio saves the audio artifact to dir and returns the file path.
func (d *Driver) DownloadAudio(ctx context.Context, notebookID, artifactID, dir string) (string, error) {
	if artifactID == "" {
		return "", fmt.Errorf("artifact id is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create download directory: %w", err)
	}
	proto := interaction.Protocol{
		Name: "artifact.menu",
		Steps: []interaction.Step{
			{Name: "more", Action: interaction.ActionClick, Target: locator.Q(targetArtifactMore, artifactID)},
		},
	}

	var saved string
	err := d.exclusive(ctx, notebookID, func(s *browser.Session) error {
		if err := d.open(ctx, s, notebookID); err != nil {
			return err
		}
		page := s.Page()
		if err := d.sequencer.Run(ctx, proto, page); err != nil {
			return err
		}
		path, err := page.Download(func() error {
			el, err := d.resolver.Resolve(ctx, locator.Q(targetArtifactDownload), page, d.stepTimeout)
			if err != nil {
				return err
			}
			return el.Click(d.stepTimeout)
		}, dir, d.navTimeout)
		if err != nil {
			return fmt.Errorf("failed to download artifact %s: %w", artifactID, err)
		}
		saved = path
		return nil
	})
	if err != nil {
		return "", err
	}
	d.logger.Infof("downloaded artifact %s to %s", artifactID, saved)
	return saved, nil
}

func (d *Driver) title(scope locator.Scope) string {
	els, err := findAll(d.layout.Catalog, locator.Q(targetNotebookTitle), scope)
	if err != nil || len(els) == 0 {
		return DefaultTitle
	}
	text, err := els[0].Text()
	if err != nil || strings.TrimSpace(text) == "" {
		return DefaultTitle
	}
	return strings.TrimSpace(text)
}

// waitForNotebookURL polls the page URL until it names a notebook.
func (d *Driver) waitForNotebookURL(ctx context.Context, page browser.Page) (string, error) {
	deadline := time.Now().Add(d.navTimeout)
	for {
		if id := NotebookIDFromURL(page.URL()); id != "" {
			return id, nil
		}
		if time.Now().After(deadline) {
			return "", fmt.Errorf("no notebook URL after %s (at %s)", d.navTimeout, page.URL())
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(urlPollInterval):
		}
	}
}

// waitAny returns the index of the first query with a visible match, or
// -1 when none appears within timeout.
func (d *Driver) waitAny(ctx context.Context, scope locator.Scope, timeout time.Duration, queries ...locator.Query) (int, error) {
	deadline := time.Now().Add(timeout)
	for {
		for i, q := range queries {
			ok, err := d.resolver.Present(q, scope)
			if err != nil {
				return -1, err
			}
			if ok {
				return i, nil
			}
		}
		if time.Now().After(deadline) {
			return -1, nil
		}
		select {
		case <-ctx.Done():
			return -1, ctx.Err()
		case <-time.After(d.backoff):
		}
	}
}
