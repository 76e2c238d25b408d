package browser

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
)

// StaticProvider serves sessions that fetch raw HTML over HTTP without
// running scripts. Pages that render client-side yield sparse documents, so
// it suits sites whose listings are server-rendered or embed their data.
type StaticProvider struct {
	opts      Options
	transport http.RoundTripper
	logger    *slog.Logger
}

func NewStaticProvider(opts *Options, logger *slog.Logger) *StaticProvider {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &StaticProvider{
		opts:   *opts,
		logger: logger.With("component", "static_provider"),
	}
}

// WithTransport overrides the HTTP transport of every session opened later.
func (p *StaticProvider) WithTransport(t http.RoundTripper) *StaticProvider {
	p.transport = t
	return p
}

func (p *StaticProvider) Open(ctx context.Context, _ bool) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, &SessionInitError{Err: err}
	}

	c := colly.NewCollector(
		colly.UserAgent(p.opts.UserAgent),
		colly.AllowURLRevisit(),
	)
	c.SetRequestTimeout(p.opts.Timeout)
	if p.transport != nil {
		c.WithTransport(p.transport)
	}

	return &staticSession{
		collector: c,
		headers:   p.opts.ExtraHeaders,
		logger:    p.logger,
	}, nil
}

type staticSession struct {
	collector *colly.Collector
	headers   map[string]string
	logger    *slog.Logger

	current string
	body    []byte
	closed  bool
}

func (s *staticSession) Navigate(ctx context.Context, target string) error {
	if s.closed {
		return &NavigationError{URL: target, Err: ErrSessionClosed}
	}
	if err := ctx.Err(); err != nil {
		return &NavigationError{URL: target, Err: err}
	}

	c := s.collector.Clone()

	var (
		body     []byte
		status   int
		finalURL = target
	)
	c.OnRequest(func(r *colly.Request) {
		for k, v := range s.headers {
			r.Headers.Set(k, v)
		}
	})
	c.OnResponse(func(r *colly.Response) {
		body = r.Body
		status = r.StatusCode
		finalURL = r.Request.URL.String()
	})
	c.OnError(func(r *colly.Response, err error) {
		if r != nil {
			status = r.StatusCode
		}
	})

	if err := c.Visit(target); err != nil {
		if status >= 400 {
			return &NavigationError{URL: target, StatusCode: status, Err: err}
		}
		return &NavigationError{URL: target, Err: err}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err == nil && DetectBlock(doc.Find("title").First().Text(), string(body)) {
		return &NavigationError{URL: target, Blocked: true}
	}

	s.current = finalURL
	s.body = body
	return nil
}

func (s *staticSession) Content(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s.body == nil {
		return "", fmt.Errorf("no document loaded")
	}
	return string(s.body), nil
}

func (s *staticSession) URL() string {
	return s.current
}

func (s *staticSession) WaitFor(_ context.Context, selector string, _ time.Duration) bool {
	doc := s.document()
	return doc != nil && selector != "" && doc.Find(selector).Length() > 0
}

// ScrollToBottom is a no-op: static documents have no lazy loading.
func (s *staticSession) ScrollToBottom(ctx context.Context) error {
	return ctx.Err()
}

// FollowFirst navigates to the href of the first matching link.
func (s *staticSession) FollowFirst(ctx context.Context, selectors []string) (bool, error) {
	doc := s.document()
	if doc == nil {
		return false, nil
	}
	base, err := url.Parse(s.current)
	if err != nil {
		return false, fmt.Errorf("failed to parse current url: %w", err)
	}

	for _, selector := range selectors {
		href, ok := doc.Find(selector).First().Attr("href")
		href = strings.TrimSpace(href)
		if !ok || href == "" || strings.HasPrefix(href, "javascript:") {
			continue
		}
		ref, err := url.Parse(href)
		if err != nil {
			continue
		}
		if err := s.Navigate(ctx, base.ResolveReference(ref).String()); err != nil {
			return true, err
		}
		return true, nil
	}
	return false, nil
}

func (s *staticSession) Close() error {
	s.closed = true
	s.body = nil
	return nil
}

func (s *staticSession) document() *goquery.Document {
	if s.body == nil {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(s.body))
	if err != nil {
		s.logger.Debug("failed to parse document", "error", err)
		return nil
	}
	return doc
}
