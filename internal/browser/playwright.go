package browser

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/playwright-community/playwright-go"
)

// PlaywrightProvider launches an isolated Chromium per session.
type PlaywrightProvider struct {
	opts   Options
	logger *slog.Logger
}

func NewPlaywrightProvider(opts *Options, logger *slog.Logger) *PlaywrightProvider {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &PlaywrightProvider{
		opts:   *opts,
		logger: logger.With("component", "playwright_provider"),
	}
}

func (p *PlaywrightProvider) Open(ctx context.Context, headless bool) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, &SessionInitError{Err: err}
	}

	opts := p.opts
	opts.Headless = headless

	b, err := New(&opts)
	if err != nil {
		p.logger.Error("failed to start browser", "error", err)
		return nil, &SessionInitError{Err: err}
	}

	page, err := b.NewPage()
	if err != nil {
		b.Close()
		return nil, &SessionInitError{Err: err}
	}

	p.logger.Debug("session opened", "headless", headless)
	return &playwrightSession{
		browser: b,
		page:    page,
		opts:    opts,
		logger:  p.logger,
	}, nil
}

type playwrightSession struct {
	browser *Browser
	page    playwright.Page
	opts    Options
	logger  *slog.Logger
	closed  bool
}

func (s *playwrightSession) Navigate(ctx context.Context, url string) error {
	if s.closed {
		return &NavigationError{URL: url, Err: ErrSessionClosed}
	}

	retries := s.opts.MaxRetries
	if retries < 1 {
		retries = 1
	}

	var lastErr error
	for i := 0; i < retries; i++ {
		if err := ctx.Err(); err != nil {
			return &NavigationError{URL: url, Err: err}
		}
		if i > 0 {
			s.logger.Info("retrying navigation", "attempt", i+1, "url", url)
			if !sleepCtx(ctx, time.Duration(i+1)*time.Second) {
				return &NavigationError{URL: url, Err: ctx.Err()}
			}
		}

		resp, err := s.page.Goto(url, playwright.PageGotoOptions{
			WaitUntil: playwright.WaitUntilStateDomcontentloaded,
			Timeout:   playwright.Float(float64(s.opts.Timeout.Milliseconds())),
		})
		if err != nil {
			lastErr = &NavigationError{URL: url, Err: err}
			s.logger.Warn("navigation failed", "url", url, "attempt", i+1, "error", err)
			continue
		}

		if resp != nil && resp.Status() >= 400 {
			lastErr = &NavigationError{URL: url, StatusCode: resp.Status()}
			if resp.Status() == 404 || resp.Status() == 410 {
				return lastErr
			}
			continue
		}

		s.settle(ctx)

		blocked, err := s.checkBlocked(ctx)
		if err != nil {
			lastErr = &NavigationError{URL: url, Err: err}
			continue
		}
		if blocked {
			lastErr = &NavigationError{URL: url, Blocked: true}
			continue
		}

		return nil
	}

	return lastErr
}

// settle waits for the body element, falling back to a fixed delay.
func (s *playwrightSession) settle(ctx context.Context) {
	if s.WaitFor(ctx, "body", s.opts.ReadyTimeout) {
		return
	}
	sleepCtx(ctx, s.opts.SettleDelay)
}

// checkBlocked gives a challenge page one chance to clear itself.
func (s *playwrightSession) checkBlocked(ctx context.Context) (bool, error) {
	title, err := s.page.Title()
	if err != nil {
		return false, fmt.Errorf("failed to get page title: %w", err)
	}
	content, err := s.page.Content()
	if err != nil {
		return false, fmt.Errorf("failed to get page content: %w", err)
	}
	if !DetectBlock(title, content) {
		return false, nil
	}

	s.logger.Info("bot protection detected, waiting for challenge", "title", title)
	if !sleepCtx(ctx, 5*time.Second) {
		return true, nil
	}

	title, _ = s.page.Title()
	content, _ = s.page.Content()
	return DetectBlock(title, content), nil
}

func (s *playwrightSession) Content(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	content, err := s.page.Content()
	if err != nil {
		return "", fmt.Errorf("failed to get page content: %w", err)
	}
	return content, nil
}

func (s *playwrightSession) URL() string {
	return s.page.URL()
}

func (s *playwrightSession) WaitFor(ctx context.Context, selector string, timeout time.Duration) bool {
	if selector == "" || ctx.Err() != nil {
		return false
	}
	err := s.page.Locator(selector).First().WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateAttached,
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	})
	return err == nil
}

func (s *playwrightSession) ScrollToBottom(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := s.page.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`); err != nil {
		return fmt.Errorf("failed to scroll: %w", err)
	}
	return nil
}

func (s *playwrightSession) FollowFirst(ctx context.Context, selectors []string) (bool, error) {
	for _, selector := range selectors {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		link := s.page.Locator(selector).First()
		count, err := link.Count()
		if err != nil || count == 0 {
			continue
		}
		if err := link.Click(); err != nil {
			s.logger.Debug("failed to click", "selector", selector, "error", err)
			continue
		}
		if err := s.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
			State: playwright.LoadStateDomcontentloaded,
		}); err != nil {
			return true, fmt.Errorf("failed waiting for next page: %w", err)
		}
		s.settle(ctx)
		return true, nil
	}
	return false, nil
}

func (s *playwrightSession) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	if err := s.page.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close page: %w", err))
	}
	if err := s.browser.Close(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("errors during session close: %v", errs)
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
