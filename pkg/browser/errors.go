package browser

import (
	"errors"
	"fmt"
	"strings"
)

// ConnectionErrorKind classifies a ConnectionError.
type ConnectionErrorKind string

const (
	// NoReachableEndpoint means every candidate failed to connect.
	NoReachableEndpoint ConnectionErrorKind = "no_reachable_endpoint"
	// SessionInvalidated means the cached session died and the single
	// re-acquire attempt failed.
	SessionInvalidated ConnectionErrorKind = "session_invalidated"
)

// EndpointAttempt is one failed connection attempt.
type EndpointAttempt struct {
	Endpoint Endpoint
	Err      error
}

// ConnectionError reports that no usable browsing context could be obtained.
type ConnectionError struct {
	Kind  ConnectionErrorKind
	Tried []EndpointAttempt
}

func (e *ConnectionError) Error() string {
	var b strings.Builder
	switch e.Kind {
	case SessionInvalidated:
		b.WriteString("browser session invalidated")
	default:
		b.WriteString("no reachable CDP endpoint")
	}
	if len(e.Tried) > 0 {
		parts := make([]string, len(e.Tried))
		for i, a := range e.Tried {
			parts[i] = fmt.Sprintf("%s (%v)", a.Endpoint, a.Err)
		}
		fmt.Fprintf(&b, ": tried %s", strings.Join(parts, ", "))
	}
	return b.String()
}

// Unwrap exposes the individual attempt errors.
func (e *ConnectionError) Unwrap() []error {
	errs := make([]error, 0, len(e.Tried))
	for _, a := range e.Tried {
		if a.Err != nil {
			errs = append(errs, a.Err)
		}
	}
	return errs
}

// IsConnectionError reports whether err is a ConnectionError of the given
// kind.
func IsConnectionError(err error, kind ConnectionErrorKind) bool {
	var ce *ConnectionError
	return errors.As(err, &ce) && ce.Kind == kind
}
