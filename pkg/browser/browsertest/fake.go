// Package browsertest provides in-memory Dialer, Conn and Page fakes.
package browsertest

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/entrhq/deepdiver/pkg/browser"
	"github.com/entrhq/deepdiver/pkg/locator/locatortest"
)

// Page is a fake browser tab whose DOM is a locatortest tree.
type Page struct {
	*locatortest.Node

	mu       sync.Mutex
	url      string
	closed   bool
	visits   []string
	gotoErr  error
	onGoto   func(p *Page, url string)
	download string
}

// NewPage creates an open page at about:blank.
func NewPage() *Page {
	return &Page{Node: locatortest.NewPage(), url: "about:blank"}
}

// OnGoto registers a hook run after every navigation.
func (p *Page) OnGoto(fn func(p *Page, url string)) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onGoto = fn
	return p
}

// FailGoto makes navigation fail with err.
func (p *Page) FailGoto(err error) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gotoErr = err
	return p
}

// ServeDownload makes Download save a file with the given name.
func (p *Page) ServeDownload(name string) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.download = name
	return p
}

// SetURL changes the current URL, as an in-page navigation would.
func (p *Page) SetURL(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.url = url
}

// Close marks the page closed.
func (p *Page) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
}

// Visits returns the navigated URLs in order.
func (p *Page) Visits() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.visits...)
}

func (p *Page) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

func (p *Page) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *Page) Goto(url string, _ time.Duration) error {
	p.mu.Lock()
	if p.gotoErr != nil {
		err := p.gotoErr
		p.mu.Unlock()
		return err
	}
	p.url = url
	p.visits = append(p.visits, url)
	hook := p.onGoto
	p.mu.Unlock()

	if hook != nil {
		hook(p, url)
	}
	return nil
}

func (p *Page) Download(trigger func() error, dir string, _ time.Duration) (string, error) {
	if err := trigger(); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.download == "" {
		return "", errors.New("download did not start")
	}
	return filepath.Join(dir, p.download), nil
}

// Conn is a fake CDP connection serving one page.
type Conn struct {
	mu        sync.Mutex
	page      *Page
	pageErr   error
	connected bool
	closes    int
}

// NewConn creates a connected Conn serving page.
func NewConn(page *Page) *Conn {
	return &Conn{page: page, connected: true}
}

// FailPage makes Page fail with err, as a browser without usable contexts
// would.
func (c *Conn) FailPage(err error) *Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pageErr = err
	return c
}

// Disconnect simulates the browser going away.
func (c *Conn) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
}

// Closes returns how often Close was called.
func (c *Conn) Closes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}

func (c *Conn) Page() (browser.Page, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pageErr != nil {
		return nil, c.pageErr
	}
	return c.page, nil
}

func (c *Conn) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closes++
	c.connected = false
	return nil
}

// Dialer hands out fake connections per endpoint URL. Unknown URLs refuse
// the connection.
type Dialer struct {
	mu      sync.Mutex
	conns   map[string][]*Conn
	dials   []string
	closed  bool
	blockOn map[string]bool
}

// NewDialer creates a dialer with no reachable endpoints.
func NewDialer() *Dialer {
	return &Dialer{conns: make(map[string][]*Conn), blockOn: make(map[string]bool)}
}

// Serve queues conns for url; each Dial consumes one. The last one is
// reused once the queue is down to it.
func (d *Dialer) Serve(url string, conns ...*Conn) *Dialer {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.conns[url] = append(d.conns[url], conns...)
	return d
}

// Refuse removes url's connections so later dials fail.
func (d *Dialer) Refuse(url string) *Dialer {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.conns, url)
	return d
}

// Block makes dials to url hang until the context ends.
func (d *Dialer) Block(url string) *Dialer {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.blockOn[url] = true
	return d
}

// Dials returns the dialled URLs in order.
func (d *Dialer) Dials() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.dials...)
}

// Closed reports whether Close was called.
func (d *Dialer) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

func (d *Dialer) Dial(ctx context.Context, url string, _ time.Duration) (browser.Conn, error) {
	d.mu.Lock()
	d.dials = append(d.dials, url)
	block := d.blockOn[url]
	queue := d.conns[url]
	var conn *Conn
	if len(queue) > 0 {
		conn = queue[0]
		if len(queue) > 1 {
			d.conns[url] = queue[1:]
		}
	}
	d.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if conn == nil {
		return nil, fmt.Errorf("dial %s: connection refused", url)
	}
	conn.mu.Lock()
	conn.connected = true
	conn.mu.Unlock()
	return conn, nil
}

func (d *Dialer) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

var (
	_ browser.Dialer = (*Dialer)(nil)
	_ browser.Conn   = (*Conn)(nil)
	_ browser.Page   = (*Page)(nil)
)
