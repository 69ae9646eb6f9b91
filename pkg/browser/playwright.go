package browser

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/deepdiver/pkg/locator"
)

// defaultActionTimeout replaces a zero timeout, which Playwright reads as
// "wait forever".
const defaultActionTimeout = 10 * time.Second

// PlaywrightDialer connects over CDP with playwright-go. The Playwright
// driver is installed and started on the first Dial.
type PlaywrightDialer struct {
	mu      sync.Mutex
	pw      *playwright.Playwright
	install bool
}

// NewPlaywrightDialer creates a dialer. When install is true the driver is
// downloaded if missing.
func NewPlaywrightDialer(install bool) *PlaywrightDialer {
	return &PlaywrightDialer{install: install}
}

func (d *PlaywrightDialer) start() (*playwright.Playwright, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pw != nil {
		return d.pw, nil
	}

	// Driver output would interfere with the terminal UI.
	opts := &playwright.RunOptions{
		SkipInstallBrowsers: true,
		Verbose:             false,
		Stdout:              io.Discard,
		Stderr:              io.Discard,
	}
	if d.install {
		if err := playwright.Install(opts); err != nil {
			return nil, fmt.Errorf("failed to install playwright: %w", err)
		}
	}
	pw, err := playwright.Run(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}
	d.pw = pw
	return pw, nil
}

// Dial connects to a running browser over CDP.
func (d *PlaywrightDialer) Dial(ctx context.Context, url string, timeout time.Duration) (Conn, error) {
	pw, err := d.start()
	if err != nil {
		return nil, err
	}

	type result struct {
		browser playwright.Browser
		err     error
	}
	done := make(chan result, 1)
	go func() {
		b, err := pw.Chromium.ConnectOverCDP(url, playwright.BrowserTypeConnectOverCDPOptions{
			Timeout: millis(timeout),
		})
		done <- result{browser: b, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return nil, fmt.Errorf("failed to connect to %s: %w", url, r.err)
		}
		return &pwConn{browser: r.browser}, nil
	case <-ctx.Done():
		// Playwright's own timeout finishes the attempt; drop the result.
		go func() {
			if r := <-done; r.err == nil {
				_ = r.browser.Close()
			}
		}()
		return nil, ctx.Err()
	}
}

// Close stops the Playwright driver.
func (d *PlaywrightDialer) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pw == nil {
		return nil
	}
	err := d.pw.Stop()
	d.pw = nil
	if err != nil {
		return fmt.Errorf("failed to stop playwright: %w", err)
	}
	return nil
}

type pwConn struct {
	browser playwright.Browser
}

func (c *pwConn) Page() (Page, error) {
	var bctx playwright.BrowserContext
	if contexts := c.browser.Contexts(); len(contexts) > 0 {
		bctx = contexts[0]
	} else {
		created, err := c.browser.NewContext()
		if err != nil {
			return nil, fmt.Errorf("failed to create context: %w", err)
		}
		bctx = created
	}

	if pages := bctx.Pages(); len(pages) > 0 {
		return &pwPage{page: pages[0]}, nil
	}
	page, err := bctx.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	return &pwPage{page: page}, nil
}

func (c *pwConn) Connected() bool {
	return c.browser.IsConnected()
}

func (c *pwConn) Close() error {
	return c.browser.Close()
}

type pwPage struct {
	page playwright.Page
}

func (p *pwPage) Find(selector string) ([]locator.Element, error) {
	return findAll(p.page.Locator(selector))
}

func (p *pwPage) URL() string {
	return p.page.URL()
}

func (p *pwPage) Closed() bool {
	return p.page.IsClosed()
}

func (p *pwPage) Goto(url string, timeout time.Duration) error {
	_, err := p.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateLoad,
		Timeout:   millis(timeout),
	})
	return err
}

func (p *pwPage) Download(trigger func() error, dir string, timeout time.Duration) (string, error) {
	download, err := p.page.ExpectDownload(trigger, playwright.PageExpectDownloadOptions{
		Timeout: millis(timeout),
	})
	if err != nil {
		return "", fmt.Errorf("download did not start: %w", err)
	}
	path := filepath.Join(dir, download.SuggestedFilename())
	if err := download.SaveAs(path); err != nil {
		return "", fmt.Errorf("failed to save download: %w", err)
	}
	return path, nil
}

func findAll(loc playwright.Locator) ([]locator.Element, error) {
	n, err := loc.Count()
	if err != nil {
		return nil, err
	}
	out := make([]locator.Element, n)
	for i := 0; i < n; i++ {
		out[i] = &pwElement{loc: loc.Nth(i)}
	}
	return out, nil
}

// pwElement is a lazily re-evaluated handle to the nth match of a locator.
type pwElement struct {
	loc playwright.Locator
}

// Probes must not block on a vanished element.
var probeTimeout = playwright.Float(1000)

func (e *pwElement) Find(selector string) ([]locator.Element, error) {
	return findAll(e.loc.Locator(selector))
}

func (e *pwElement) IsVisible() (bool, error) {
	return e.loc.IsVisible()
}

func (e *pwElement) IsEnabled() (bool, error) {
	return e.loc.IsEnabled(playwright.LocatorIsEnabledOptions{Timeout: probeTimeout})
}

const obscuredScript = `el => {
	const r = el.getBoundingClientRect();
	if (r.width === 0 || r.height === 0) return false;
	const hit = document.elementFromPoint(r.left + r.width / 2, r.top + r.height / 2);
	return hit !== null && hit !== el && !el.contains(hit);
}`

func (e *pwElement) IsObscured() (bool, error) {
	v, err := e.loc.Evaluate(obscuredScript, nil, playwright.LocatorEvaluateOptions{Timeout: probeTimeout})
	if err != nil {
		return false, err
	}
	obscured, _ := v.(bool)
	return obscured, nil
}

func (e *pwElement) Attribute(name string) (string, error) {
	return e.loc.GetAttribute(name, playwright.LocatorGetAttributeOptions{Timeout: probeTimeout})
}

func (e *pwElement) SetAttribute(name, value string) error {
	_, err := e.loc.Evaluate(`(el, [n, v]) => el.setAttribute(n, v)`, []string{name, value},
		playwright.LocatorEvaluateOptions{Timeout: probeTimeout})
	return err
}

func (e *pwElement) Text() (string, error) {
	return e.loc.InnerText(playwright.LocatorInnerTextOptions{Timeout: probeTimeout})
}

func (e *pwElement) HTML() (string, error) {
	v, err := e.loc.Evaluate(`el => el.outerHTML`, nil, playwright.LocatorEvaluateOptions{Timeout: probeTimeout})
	if err != nil {
		return "", err
	}
	html, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("unexpected outerHTML result %T", v)
	}
	return html, nil
}

func (e *pwElement) Click(timeout time.Duration) error {
	return e.loc.Click(playwright.LocatorClickOptions{Timeout: millis(timeout)})
}

func (e *pwElement) Fill(value string, timeout time.Duration) error {
	return e.loc.Fill(value, playwright.LocatorFillOptions{Timeout: millis(timeout)})
}

func (e *pwElement) Press(key string, timeout time.Duration) error {
	return e.loc.Press(key, playwright.LocatorPressOptions{Timeout: millis(timeout)})
}

func (e *pwElement) SetFiles(paths []string, timeout time.Duration) error {
	return e.loc.SetInputFiles(paths, playwright.LocatorSetInputFilesOptions{Timeout: millis(timeout)})
}

func millis(d time.Duration) *float64 {
	if d <= 0 {
		d = defaultActionTimeout
	}
	return playwright.Float(float64(d.Milliseconds()))
}
