// Package browsertest provides in-memory sessions for tests.
package browsertest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/halc8312/esp/internal/browser"
)

// Site is a fake web: each URL maps to one or more HTML snapshots. Scrolling
// advances to the next snapshot of the current URL.
type Site struct {
	mu     sync.Mutex
	pages  map[string][]string
	fail   map[string]error
	next   map[string]string
	visits []string
}

func NewSite() *Site {
	return &Site{
		pages: make(map[string][]string),
		fail:  make(map[string]error),
		next:  make(map[string]string),
	}
}

// Page registers the snapshots served for url.
func (s *Site) Page(url string, snapshots ...string) *Site {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages[url] = snapshots
	return s
}

// Fail makes navigation to url fail with a NavigationError wrapping err.
func (s *Site) Fail(url string, err error) *Site {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail[url] = err
	return s
}

// Next links url to the page FollowFirst navigates to.
func (s *Site) Next(url, next string) *Site {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next[url] = next
	return s
}

// Visits returns every URL navigated to, in order.
func (s *Site) Visits() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.visits))
	copy(out, s.visits)
	return out
}

// Provider opens sessions against a Site.
type Provider struct {
	Site    *Site
	OpenErr error

	mu       sync.Mutex
	sessions []*Session
}

func NewProvider(site *Site) *Provider {
	return &Provider{Site: site}
}

func (p *Provider) Open(_ context.Context, _ bool) (browser.Session, error) {
	if p.OpenErr != nil {
		return nil, &browser.SessionInitError{Err: p.OpenErr}
	}
	s := &Session{site: p.Site}
	p.mu.Lock()
	p.sessions = append(p.sessions, s)
	p.mu.Unlock()
	return s, nil
}

// Opened is the number of sessions opened so far.
func (p *Provider) Opened() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sessions)
}

// Closed is the number of opened sessions that were closed.
func (p *Provider) Closed() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, s := range p.sessions {
		if s.Closes() > 0 {
			n++
		}
	}
	return n
}

// Session is a fake browser.Session.
type Session struct {
	site   *Site
	url    string
	index  int
	closes int
}

func NewSession(site *Site) *Session {
	return &Session{site: site}
}

func (s *Session) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return &browser.NavigationError{URL: url, Err: err}
	}
	s.site.mu.Lock()
	defer s.site.mu.Unlock()

	s.site.visits = append(s.site.visits, url)
	if err, ok := s.site.fail[url]; ok {
		return &browser.NavigationError{URL: url, Err: err}
	}
	if _, ok := s.site.pages[url]; !ok {
		return &browser.NavigationError{URL: url, StatusCode: 404}
	}
	s.url = url
	s.index = 0
	return nil
}

func (s *Session) Content(context.Context) (string, error) {
	s.site.mu.Lock()
	defer s.site.mu.Unlock()
	snaps, ok := s.site.pages[s.url]
	if !ok || len(snaps) == 0 {
		return "", fmt.Errorf("no document loaded")
	}
	return snaps[s.index], nil
}

func (s *Session) URL() string {
	return s.url
}

func (s *Session) WaitFor(ctx context.Context, selector string, _ time.Duration) bool {
	content, err := s.Content(ctx)
	if err != nil || selector == "" {
		return false
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	return err == nil && doc.Find(selector).Length() > 0
}

func (s *Session) ScrollToBottom(context.Context) error {
	s.site.mu.Lock()
	defer s.site.mu.Unlock()
	if s.index < len(s.site.pages[s.url])-1 {
		s.index++
	}
	return nil
}

func (s *Session) FollowFirst(ctx context.Context, _ []string) (bool, error) {
	s.site.mu.Lock()
	next, ok := s.site.next[s.url]
	s.site.mu.Unlock()
	if !ok {
		return false, nil
	}
	return true, s.Navigate(ctx, next)
}

func (s *Session) Close() error {
	s.closes++
	return nil
}

// Closes is how many times Close was called.
func (s *Session) Closes() int {
	return s.closes
}
