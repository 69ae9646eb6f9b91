package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/entrhq/deepdiver/pkg/locator"
)

// Dialer opens CDP connections.
type Dialer interface {
	// Dial connects to the CDP endpoint at url within timeout.
	Dial(ctx context.Context, url string, timeout time.Duration) (Conn, error)
	// Close releases the driver behind the dialer.
	Close() error
}

// Conn is a live CDP connection to a browser.
type Conn interface {
	// Page returns the first page of the first existing browsing context,
	// creating a context or page when there is none.
	Page() (Page, error)
	Connected() bool
	// Close disconnects without closing the user's browser.
	Close() error
}

// Page is a browser tab. It is also the root locator.Scope.
type Page interface {
	locator.Scope

	URL() string
	Closed() bool
	// Goto navigates and waits for the load event.
	Goto(url string, timeout time.Duration) error
	// Download runs trigger and saves the download it starts to dir,
	// returning the saved path.
	Download(trigger func() error, dir string, timeout time.Duration) (string, error)
}

// Session is the shared browsing context handed out by the Manager.
type Session struct {
	mu         sync.Mutex
	endpoint   Endpoint
	conn       Conn
	page       Page
	createdAt  time.Time
	lastUsedAt time.Time
}

func newSession(endpoint Endpoint, conn Conn, page Page, now time.Time) *Session {
	return &Session{
		endpoint:   endpoint,
		conn:       conn,
		page:       page,
		createdAt:  now,
		lastUsedAt: now,
	}
}

// Endpoint returns the endpoint the session is attached to.
func (s *Session) Endpoint() Endpoint {
	return s.endpoint
}

// Page returns the session's page and marks the session used.
func (s *Session) Page() Page {
	s.touch()
	return s.page
}

// Valid reports whether the connection is alive and the page still open.
func (s *Session) Valid() bool {
	return s.conn.Connected() && !s.page.Closed()
}

// Navigate loads url in the session's page. Callers serialize navigation
// through Manager.Exclusive.
func (s *Session) Navigate(url string, timeout time.Duration) error {
	s.touch()
	if err := s.page.Goto(url, timeout); err != nil {
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	return nil
}

// Info returns a snapshot of the session's metadata.
func (s *Session) Info() SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SessionInfo{
		Endpoint:   s.endpoint,
		CurrentURL: s.page.URL(),
		CreatedAt:  s.createdAt,
		LastUsedAt: s.lastUsedAt,
	}
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastUsedAt = time.Now()
	s.mu.Unlock()
}

// SessionInfo contains metadata about the browser session.
type SessionInfo struct {
	Endpoint   Endpoint
	CurrentURL string
	CreatedAt  time.Time
	LastUsedAt time.Time
}
