package browser

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrNoProvider    = errors.New("no session provider configured")
	ErrSessionClosed = errors.New("session is closed")
)

// SessionInitError means the automation runtime could not start. It is the
// only error the scrape entrypoints propagate.
type SessionInitError struct {
	Err error
}

func (e *SessionInitError) Error() string {
	return fmt.Errorf("session init: %w", e.Err).Error()
}

func (e *SessionInitError) Unwrap() error {
	return e.Err
}

// NavigationError means a single URL could not be loaded.
type NavigationError struct {
	URL        string
	StatusCode int
	Blocked    bool
	Err        error
}

func (e *NavigationError) Error() string {
	switch {
	case e.Blocked:
		return fmt.Sprintf("navigation to %s blocked by bot protection", e.URL)
	case e.StatusCode > 0:
		return fmt.Sprintf("navigation to %s failed with status %d", e.URL, e.StatusCode)
	default:
		return fmt.Errorf("navigation to %s failed: %w", e.URL, e.Err).Error()
	}
}

func (e *NavigationError) Unwrap() error {
	return e.Err
}

// ErrorKind maps an error to a short label for metrics and logs.
func ErrorKind(err error) string {
	if err == nil {
		return "none"
	}
	var initErr *SessionInitError
	if errors.As(err, &initErr) {
		return "session_init"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	var navErr *NavigationError
	if errors.As(err, &navErr) {
		if navErr.Blocked {
			return "blocked"
		}
		return "navigation"
	}
	return "other"
}
