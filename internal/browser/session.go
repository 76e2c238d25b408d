package browser

import (
	"context"
	"time"
)

// Session is one exclusively-owned page automation handle. Implementations
// are not safe for concurrent use.
type Session interface {
	// Navigate loads url. Failures are returned as *NavigationError.
	Navigate(ctx context.Context, url string) error
	// Content returns the current DOM serialized as HTML.
	Content(ctx context.Context) (string, error)
	// URL returns the address of the currently loaded document.
	URL() string
	// WaitFor polls until selector is present or timeout elapses.
	WaitFor(ctx context.Context, selector string, timeout time.Duration) bool
	// ScrollToBottom scrolls the page to trigger lazy loading.
	ScrollToBottom(ctx context.Context) error
	// FollowFirst activates the first element matching one of selectors,
	// typically a pagination link. It reports whether anything matched.
	FollowFirst(ctx context.Context, selectors []string) (bool, error)
	Close() error
}

// Provider opens new sessions. Failures are returned as *SessionInitError.
type Provider interface {
	Open(ctx context.Context, headless bool) (Session, error)
}

// Lease is a scoped handle on a session that is either owned (opened for
// this lease and closed on Release) or borrowed (closed by someone else).
type Lease struct {
	session  Session
	owned    bool
	released bool
}

// Acquire borrows shared when it is non-nil and otherwise opens and owns a
// new session from p.
func Acquire(ctx context.Context, p Provider, shared Session, headless bool) (*Lease, error) {
	if shared != nil {
		return &Lease{session: shared}, nil
	}
	if p == nil {
		return nil, &SessionInitError{Err: ErrNoProvider}
	}

	s, err := p.Open(ctx, headless)
	if err != nil {
		return nil, err
	}
	return &Lease{session: s, owned: true}, nil
}

func (l *Lease) Session() Session {
	return l.session
}

func (l *Lease) Owned() bool {
	return l.owned
}

// Release closes the session if the lease owns it. Safe to call more than once.
func (l *Lease) Release() error {
	if l == nil || !l.owned || l.released {
		return nil
	}
	l.released = true
	return l.session.Close()
}
