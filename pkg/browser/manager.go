package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/entrhq/deepdiver/pkg/logging"
)

// DefaultConnectTimeout bounds each connection attempt.
const DefaultConnectTimeout = 10 * time.Second

// Manager owns the process-wide browser session. The first endpoint that
// yields a usable page is kept for the rest of the process.
type Manager struct {
	mu             sync.Mutex
	dialer         Dialer
	candidates     []Endpoint
	connectTimeout time.Duration
	logger         *logging.Logger

	chosen  *Endpoint
	session *Session

	// exclusive is a one-slot semaphore so lock waits can observe ctx.
	exclusive chan struct{}
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithConnectTimeout bounds each connection attempt.
func WithConnectTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.connectTimeout = d
		}
	}
}

// WithLogger sets the manager's logger.
func WithLogger(l *logging.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = l
	}
}

// NewManager creates a manager that tries candidates in order.
func NewManager(dialer Dialer, candidates []Endpoint, opts ...ManagerOption) *Manager {
	m := &Manager{
		dialer:         dialer,
		candidates:     candidates,
		connectTimeout: DefaultConnectTimeout,
		logger:         logging.Nop(),
		exclusive:      make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Candidates returns the endpoint chain the manager walks.
func (m *Manager) Candidates() []Endpoint {
	out := make([]Endpoint, len(m.candidates))
	copy(out, m.candidates)
	return out
}

// Endpoint returns the chosen endpoint, if a connection has been made.
func (m *Manager) Endpoint() (Endpoint, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.chosen == nil {
		return Endpoint{}, false
	}
	return *m.chosen, true
}

// Acquire returns the cached session or connects through the candidate
// chain. It fails with a NoReachableEndpoint ConnectionError when every
// candidate fails.
func (m *Manager) Acquire(ctx context.Context) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session != nil && m.session.Valid() {
		return m.session, nil
	}
	if m.chosen != nil {
		return m.reacquire(ctx)
	}

	var tried []EndpointAttempt
	for _, ep := range m.candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s, err := m.connect(ctx, ep)
		if err != nil {
			m.logger.Debugf("endpoint %s unreachable: %v", ep, err)
			tried = append(tried, EndpointAttempt{Endpoint: ep, Err: err})
			continue
		}
		chosen := ep
		m.chosen = &chosen
		m.session = s
		m.logger.Infof("attached to browser at %s", ep)
		return s, nil
	}
	return nil, &ConnectionError{Kind: NoReachableEndpoint, Tried: tried}
}

// Session returns the shared session. A session whose browser disconnected
// or whose page closed is re-acquired exactly once against the chosen
// endpoint; if that fails the result is a SessionInvalidated ConnectionError.
func (m *Manager) Session(ctx context.Context) (*Session, error) {
	return m.Acquire(ctx)
}

func (m *Manager) reacquire(ctx context.Context) (*Session, error) {
	ep := *m.chosen
	if m.session != nil {
		_ = m.session.conn.Close()
		m.session = nil
	}
	m.logger.Warnf("browser session lost, reconnecting to %s", ep)

	s, err := m.connect(ctx, ep)
	if err != nil {
		m.logger.Errorf("reconnect to %s failed: %v", ep, err)
		return nil, &ConnectionError{
			Kind:  SessionInvalidated,
			Tried: []EndpointAttempt{{Endpoint: ep, Err: err}},
		}
	}
	m.session = s
	return s, nil
}

func (m *Manager) connect(ctx context.Context, ep Endpoint) (*Session, error) {
	dialCtx, cancel := context.WithTimeout(ctx, m.connectTimeout)
	defer cancel()

	conn, err := m.dialer.Dial(dialCtx, ep.URL, m.connectTimeout)
	if err != nil {
		return nil, err
	}
	page, err := conn.Page()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to obtain page: %w", err)
	}
	return newSession(ep, conn, page, time.Now()), nil
}

// Exclusive runs fn with the process-wide navigation lock held. Waiting for
// the lock is bounded by ctx.
func (m *Manager) Exclusive(ctx context.Context, fn func(*Session) error) error {
	select {
	case m.exclusive <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("waiting for browser lock: %w", ctx.Err())
	}
	defer func() { <-m.exclusive }()

	s, err := m.Session(ctx)
	if err != nil {
		return err
	}
	return fn(s)
}

// Close disconnects from the browser and stops the driver. The user's
// browser keeps running.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	if m.session != nil {
		if err := m.session.conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to disconnect: %w", err))
		}
		m.session = nil
	}
	if err := m.dialer.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to stop driver: %w", err))
	}
	return errors.Join(errs...)
}
